// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"time"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
)

const (
	standaloneReconnectMinBackoff = 100 * time.Millisecond
	standaloneReconnectMaxBackoff = 5 * time.Second
)

// ReconnectStandalone redials addr with exponential backoff until it
// succeeds or ctx is done — the standalone recovery procedure of spec
// §4.7, where there is no second server to fail over to.
func ReconnectStandalone(ctx context.Context, addr address.Address, opts []connection.Option) (*connection.Session, error) {
	backoff := standaloneReconnectMinBackoff
	for {
		conn, _, err := connection.New(ctx, addr, append(append([]connection.Option{}, opts...), connection.WithHandshaker(connection.HandshakerFunc(Handshake)))...)
		if err == nil {
			return connection.NewSession(conn), nil
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.ConnectionNotAvailable, "standalone reconnect aborted", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > standaloneReconnectMaxBackoff {
			backoff = standaloneReconnectMaxBackoff
		}
	}
}

// ReconnectReplicaSet polls the cluster's tracked members, prodding the
// pinger for an immediate recheck each pass, until one reports writable
// or ctx's deadline passes. Spec §4.7 asks for poll-until-primary rather
// than a fixed backoff, since any member rejoining as primary resolves
// the outage immediately.
func ReconnectReplicaSet(ctx context.Context, cluster *Cluster, pinger *Pinger) (description.Server, error) {
	for {
		for _, s := range cluster.Records() {
			if s.Writable() {
				return s, nil
			}
		}

		pinger.RequestImmediateCheck()
		waitCh, waiterID := cluster.AwaitChange()
		select {
		case <-waitCh:
			continue
		case <-ctx.Done():
			cluster.RemoveWaiter(waiterID)
			return description.Server{}, errs.Wrap(errs.NoPrimary, "no primary rediscovered before deadline", ctx.Err())
		}
	}
}

// DropDeadRouter evicts addr from a sharded cluster's tracked set. A
// mongos that stops answering is simply not selected again; there is no
// election to wait for and no replacement to elect, per spec §4.7's
// sharded recovery procedure.
func DropDeadRouter(cluster *Cluster, addr address.Address) {
	cluster.Remove(addr)
}
