// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// ReplicaSetTopology is the Topology variant backing a replica set: one
// Cluster tracking every known member, one cached Session per address,
// and primary failover driven by ReconnectReplicaSet when the current
// primary candidate turns out to be unreachable. Grounded on the
// teacher's cluster.go member tracking combined with its server pool
// reuse pattern.
type ReplicaSetTopology struct {
	cluster *Cluster
	pinger  *Pinger
	opts    []connection.Option

	// bgCtx bounds the cluster-event and per-session watcher goroutines
	// started by NewReplicaSet; it outlives any single Send/SendPair
	// call, the same way it already outlives the pinger's sweep loop.
	bgCtx context.Context

	mu       sync.Mutex
	sessions map[address.Address]*connection.Session
}

// bgContext returns the topology's background context, or
// context.Background() for a ReplicaSetTopology built directly as a
// struct literal (tests) rather than through NewReplicaSet.
func (t *ReplicaSetTopology) bgContext() context.Context {
	if t.bgCtx != nil {
		return t.bgCtx
	}
	return context.Background()
}

// NewReplicaSet seeds a Cluster with the given member addresses, probes
// them once synchronously, and starts the background pinger.
//
// expectedSetName, when non-empty, must match the setName every probed
// member reports; a member disagreeing fails construction outright
// rather than joining a cluster the caller never asked for (spec §6's
// replicaSet option: "topology must agree").
func NewReplicaSet(ctx context.Context, seeds []address.Address, expectedSetName string, opts ...connection.Option) (*ReplicaSetTopology, error) {
	cluster := NewCluster(description.KindReplicaSet)
	for _, s := range seeds {
		cluster.Add(s)
	}

	t := &ReplicaSetTopology{
		cluster:  cluster,
		opts:     opts,
		bgCtx:    ctx,
		sessions: make(map[address.Address]*connection.Session),
	}
	t.pinger = NewPinger(cluster, defaultHeartbeatInterval, opts...)

	for _, s := range seeds {
		t.pinger.probe(ctx, s)
	}

	if expectedSetName != "" {
		for _, rec := range cluster.Records() {
			if rec.SetName != "" && rec.SetName != expectedSetName {
				return nil, errs.New(errs.ReplyValidation, fmt.Sprintf(
					"replicaSet=%q was configured but %s reported set name %q", expectedSetName, rec.Addr, rec.SetName))
			}
		}
	}

	go t.pinger.Run(ctx)
	go t.watchClusterEvents(ctx)

	return t, nil
}

// watchClusterEvents reacts to cluster membership changes by closing and
// evicting the cached session for any address the cluster drops, per
// spec §4.6's "on cluster-model SERVER removal: close and evict the
// corresponding cached session."
func (t *ReplicaSetTopology) watchClusterEvents(ctx context.Context) {
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

func (t *ReplicaSetTopology) evictSession(addr address.Address) {
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

// watchSession reacts to one cached session's own lifecycle: once it
// transitions to CLOSED, the session is evicted immediately rather than
// discovered lazily on the next unrelated Send, and a closed primary
// triggers ReconnectReplicaSet right away instead of waiting for the
// next ping sweep or selection attempt to notice. Grounded on spec
// §4.6's "on underlying-session close" replica-set rule.
func (t *ReplicaSetTopology) watchSession(ctx context.Context, addr address.Address, sess *connection.Session) {
	ch := sess.Subscribe()
	for {
		select {
		case change, ok := <-ch:
			if !ok {
				return
			}
			if change.New != connection.StateClosed {
				continue
			}
			t.handleSessionClosed(ctx, addr, sess)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (t *ReplicaSetTopology) handleSessionClosed(ctx context.Context, addr address.Address, sess *connection.Session) {
	t.mu.Lock()
	if cur, ok := t.sessions[addr]; ok && cur == sess {
		delete(t.sessions, addr)
	}
	t.mu.Unlock()

	t.cluster.NotifySessionStateChanged(addr, false)

	rec, known := t.cluster.Get(addr)
	if !known || rec.Role != description.RolePrimary {
		return
	}
	t.cluster.Update(description.Server{Addr: addr, Role: description.RoleUnknown, LastUpdateTime: time.Now()})
	ReconnectReplicaSet(ctx, t.cluster, t.pinger)
}

// Kind always reports KindReplicaSet.
func (t *ReplicaSetTopology) Kind() description.TopologyKind { return description.KindReplicaSet }

// Cluster exposes the tracked membership and its candidate-selection API.
func (t *ReplicaSetTopology) Cluster() *Cluster { return t.cluster }

func (t *ReplicaSetTopology) sessionFor(ctx context.Context, addr address.Address) (*connection.Session, error) {
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
	go t.watchSession(t.bgContext(), addr, sess)

	return sess, nil
}

// dropAndMaybeFailover marks addr unreachable in the cluster and, if it
// was the primary candidate that just failed, blocks on
// ReconnectReplicaSet so the next selection attempt has somewhere to go.
func (t *ReplicaSetTopology) dropAndMaybeFailover(ctx context.Context, candidate description.Server, cause error) error {
	t.cluster.Update(description.Server{
		Addr:           candidate.Addr,
		Role:           description.RoleUnknown,
		LastError:      cause,
		LastUpdateTime: time.Now(),
	})
	if candidate.Role != description.RolePrimary {
		return cause
	}
	if _, err := ReconnectReplicaSet(ctx, t.cluster, t.pinger); err != nil {
		return err
	}
	return cause
}

// selectAndSend picks a candidate and hands it to do. Errors raised
// before a session exists (selection timeout, dial failure) are reported
// to sink directly here, since Session.Send/SendPair only fail sinks for
// errors that happen after a session was found.
func (t *ReplicaSetTopology) selectAndSend(ctx context.Context, rp *readpref.ReadPref, sink connection.Sink, do func(*connection.Session) error) error {
	srv, err := t.cluster.SelectServer(ctx, rp)
	if err != nil {
		if sink != nil {
			sink.Fail(err)
		}
		return err
	}
	sess, err := t.sessionFor(ctx, srv.Addr)
	if err != nil {
		err = t.dropAndMaybeFailover(ctx, srv, err)
		if sink != nil {
			sink.Fail(err)
		}
		return err
	}
	return do(sess)
}

// Send selects a server matching rp and forwards wm to its session.
func (t *ReplicaSetTopology) Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	return t.selectAndSend(ctx, rp, sink, func(sess *connection.Session) error {
		_, sendErr := sess.Send(ctx, wm, sink)
		return sendErr
	})
}

// SendPair selects a server matching rp and forwards the message pair.
func (t *ReplicaSetTopology) SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	return t.selectAndSend(ctx, rp, sink, func(sess *connection.Session) error {
		_, sendErr := sess.SendPair(ctx, wm1, wm2, sink)
		return sendErr
	})
}

// Close releases every cached per-address session. It does not stop the
// pinger, the cluster-event watcher or the per-session watchers; those
// run until the context passed to NewReplicaSet is done.
func (t *ReplicaSetTopology) Close() error {
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
