// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sort"
	"sync"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// ShardedTopology is the Topology variant backing a set of mongos
// routers: no primary, no election, round-robin selection among
// currently-live routers. A router that stops answering is simply
// dropped (DropDeadRouter); the next round-robin pass skips it, per
// spec §4.7's sharded recovery procedure.
type ShardedTopology struct {
	cluster *Cluster
	pinger  *Pinger
	opts    []connection.Option

	mu       sync.Mutex
	sessions map[address.Address]*connection.Session
	rrNext   int
}

// NewSharded seeds a Cluster with the given router addresses, probes
// them once synchronously, and starts the background pinger.
func NewSharded(ctx context.Context, routers []address.Address, opts ...connection.Option) (*ShardedTopology, error) {
	cluster := NewCluster(description.KindSharded)
	for _, r := range routers {
		cluster.Add(r)
	}

	t := &ShardedTopology{
		cluster:  cluster,
		opts:     opts,
		sessions: make(map[address.Address]*connection.Session),
	}
	t.pinger = NewPinger(cluster, defaultHeartbeatInterval, opts...)

	for _, r := range routers {
		t.pinger.probe(ctx, r)
	}
	go t.pinger.Run(ctx)
	go t.watchClusterEvents(ctx)

	return t, nil
}

// watchClusterEvents closes and evicts the cached session for any router
// the cluster drops, the sharded analogue of the replica-set dispatcher's
// same reaction to a ServerMembershipChanged removal.
func (t *ShardedTopology) watchClusterEvents(ctx context.Context) {
	events := t.cluster.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != ServerMembershipChanged {
				continue
			}
			for _, removed := range ev.Removed {
				t.evictSession(removed.Addr)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *ShardedTopology) evictSession(addr address.Address) {
	t.mu.Lock()
	sess, ok := t.sessions[addr]
	if ok {
		delete(t.sessions, addr)
	}
	t.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Kind always reports KindSharded.
func (t *ShardedTopology) Kind() description.TopologyKind { return description.KindSharded }

// Cluster exposes the tracked router set.
func (t *ShardedTopology) Cluster() *Cluster { return t.cluster }

// pickRouter returns the router to use for the next request: the pinned
// address from rp when one is set (a cursor's GET_MORE/KILL_CURSORS
// affinity to the mongos that opened it), or the next live mongos in
// round-robin order otherwise. readpref.ReadPref.Acceptable treats every
// server as acceptable under KindSharded regardless of role, so router
// liveness is checked directly against RoleMongos here rather than
// through Cluster.SelectServer.
func (t *ShardedTopology) pickRouter(ctx context.Context, rp *readpref.ReadPref) (address.Address, error) {
	if rp != nil && rp.Mode == readpref.ServerMode {
		return address.Address(rp.PinnedAddress), nil
	}
	for {
		live := liveMongosRouters(t.cluster.Records())
		if len(live) > 0 {
			sort.Slice(live, func(i, j int) bool { return live[i].Addr < live[j].Addr })
			t.mu.Lock()
			idx := t.rrNext % len(live)
			t.rrNext++
			t.mu.Unlock()
			return live[idx].Addr, nil
		}

		waitCh, waiterID := t.cluster.AwaitChange()
		select {
		case <-waitCh:
			continue
		case <-ctx.Done():
			t.cluster.RemoveWaiter(waiterID)
			return "", errs.Wrap(errs.NoSuitableServer, "no mongos router available", ctx.Err())
		}
	}
}

func liveMongosRouters(records []description.Server) []description.Server {
	live := make([]description.Server, 0, len(records))
	for _, s := range records {
		if s.Role == description.RoleMongos {
			live = append(live, s)
		}
	}
	return live
}

func (t *ShardedTopology) sessionFor(ctx context.Context, addr address.Address) (*connection.Session, error) {
	t.mu.Lock()
	sess, ok := t.sessions[addr]
	t.mu.Unlock()
	if ok && sess.State() == connection.StateOpen {
		return sess, nil
	}

	conn, _, err := connection.New(ctx, addr, append(append([]connection.Option{}, t.opts...), connection.WithHandshaker(connection.HandshakerFunc(Handshake)))...)
	if err != nil {
		return nil, err
	}
	sess = connection.NewSession(conn)

	t.mu.Lock()
	t.sessions[addr] = sess
	t.mu.Unlock()

	t.cluster.NotifySessionStateChanged(addr, true)

	return sess, nil
}

func (t *ShardedTopology) selectAndSend(ctx context.Context, rp *readpref.ReadPref, sink connection.Sink, do func(*connection.Session) error) error {
	addr, err := t.pickRouter(ctx, rp)
	if err != nil {
		if sink != nil {
			sink.Fail(err)
		}
		return err
	}
	sess, err := t.sessionFor(ctx, addr)
	if err != nil {
		DropDeadRouter(t.cluster, addr)
		if sink != nil {
			sink.Fail(err)
		}
		return err
	}
	return do(sess)
}

// Send picks a router and forwards wm to it: the pinned router named by
// rp, when given a ServerMode preference, otherwise the next live router
// in round-robin order.
func (t *ShardedTopology) Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	return t.selectAndSend(ctx, rp, sink, func(sess *connection.Session) error {
		_, sendErr := sess.Send(ctx, wm, sink)
		return sendErr
	})
}

// SendPair picks a router the same way Send does and forwards the
// message pair.
func (t *ShardedTopology) SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	return t.selectAndSend(ctx, rp, sink, func(sess *connection.Session) error {
		_, sendErr := sess.SendPair(ctx, wm1, wm2, sink)
		return sendErr
	})
}

// Close releases every cached per-router session.
func (t *ShardedTopology) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var first error
	for _, sess := range t.sessions {
		if err := sess.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
