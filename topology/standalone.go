// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// StandaloneTopology is the simplest Topology variant of spec §4.6: one
// address, one Session, no read-preference routing. Loss of the session
// triggers ReconnectStandalone rather than a search for another server.
type StandaloneTopology struct {
	addr    address.Address
	cluster *Cluster
	pinger  *Pinger
	opts    []connection.Option

	mu      sync.Mutex
	session *connection.Session
}

// NewStandalone probes addr once to confirm reachability, starts a
// background pinger against it, and opens the Session used for traffic.
func NewStandalone(ctx context.Context, addr address.Address, opts ...connection.Option) (*StandaloneTopology, error) {
	cluster := NewCluster(description.KindStandalone)
	if _, err := ProbeOnce(ctx, cluster, addr, opts...); err != nil {
		return nil, err
	}

	t := &StandaloneTopology{addr: addr, cluster: cluster, opts: opts}

	t.pinger = NewPinger(cluster, defaultHeartbeatInterval, opts...)
	go t.pinger.Run(ctx)

	sess, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	t.session = sess
	return t, nil
}

func (t *StandaloneTopology) dial(ctx context.Context) (*connection.Session, error) {
	conn, _, err := connection.New(ctx, t.addr, append(append([]connection.Option{}, t.opts...), connection.WithHandshaker(connection.HandshakerFunc(Handshake)))...)
	if err != nil {
		return nil, err
	}
	return connection.NewSession(conn), nil
}

// Kind always reports KindStandalone.
func (t *StandaloneTopology) Kind() description.TopologyKind { return description.KindStandalone }

// Cluster exposes the single-member cluster backing this topology.
func (t *StandaloneTopology) Cluster() *Cluster { return t.cluster }

func (t *StandaloneTopology) currentSession(ctx context.Context) (*connection.Session, error) {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()

	if sess != nil && sess.State() == connection.StateOpen {
		return sess, nil
	}

	sess, err := ReconnectStandalone(ctx, t.addr, t.opts)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.session = sess
	t.mu.Unlock()
	return sess, nil
}

// Send forwards wm to the standalone server, read preference ignored —
// there is only ever one server to talk to.
func (t *StandaloneTopology) Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, _ *readpref.ReadPref) error {
	sess, err := t.currentSession(ctx)
	if err != nil {
		sink.Fail(err)
		return err
	}
	_, err = sess.Send(ctx, wm, sink)
	return err
}

// SendPair forwards the two-message pair to the standalone server.
func (t *StandaloneTopology) SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, _ *readpref.ReadPref) error {
	sess, err := t.currentSession(ctx)
	if err != nil {
		sink.Fail(err)
		return err
	}
	_, err = sess.SendPair(ctx, wm1, wm2, sink)
	return err
}

// Close releases the underlying session.
func (t *StandaloneTopology) Close() error {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()
	if sess != nil {
		return sess.Close()
	}
	return nil
}
