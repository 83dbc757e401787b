// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

func TestBootstrapVariantKindPrefersMongosOverSetName(t *testing.T) {
	kind := bootstrapVariantKind(description.Server{Role: description.RoleMongos, SetName: "rs0"})
	if kind != description.KindSharded {
		t.Fatalf("expected KindSharded, got %s", kind)
	}
}

func TestBootstrapVariantKindNamedSetIsReplicaSet(t *testing.T) {
	kind := bootstrapVariantKind(description.Server{Role: description.RolePrimary, SetName: "rs0"})
	if kind != description.KindReplicaSet {
		t.Fatalf("expected KindReplicaSet, got %s", kind)
	}
}

func TestBootstrapVariantKindBarePrimaryIsStandalone(t *testing.T) {
	kind := bootstrapVariantKind(description.Server{Role: description.RolePrimary})
	if kind != description.KindStandalone {
		t.Fatalf("expected KindStandalone, got %s", kind)
	}
}

func TestReplicaSetMembersFallsBackToSeedWithoutHosts(t *testing.T) {
	seed := address.Canonicalize("solo:27017")
	members := replicaSetMembers(seed, description.Server{SetName: "rs0"})
	if len(members) != 1 || members[0] != seed {
		t.Fatalf("expected fallback to seed alone, got %v", members)
	}
}

func TestReplicaSetMembersUsesDiscoveredHosts(t *testing.T) {
	seed := address.Canonicalize("a:27017")
	members := replicaSetMembers(seed, description.Server{SetName: "rs0", Hosts: []string{"a:27017", "b:27017", "c:27017"}})
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
}

type fakeSink struct {
	mu     sync.Mutex
	failed error
}

func (s *fakeSink) Deliver(wiremessage.WireMessage) {}
func (s *fakeSink) Fail(err error) {
	s.mu.Lock()
	s.failed = err
	s.mu.Unlock()
}

func TestReplicaSetSendFailsSinkWhenNoCandidateBeforeDeadline(t *testing.T) {
	rs := &ReplicaSetTopology{
		cluster:  NewCluster(description.KindReplicaSet),
		sessions: make(map[address.Address]*connection.Session),
	}
	rs.pinger = NewPinger(rs.cluster, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sink := &fakeSink{}
	err := rs.Send(ctx, wiremessage.Query{FullCollectionName: "db.coll"}, sink, readpref.Primary())
	if err == nil {
		t.Fatal("expected an error with no tracked members")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.failed == nil {
		t.Fatal("expected sink.Fail to have been called for a pre-session failure")
	}
}

func TestShardedPickRouterRoundRobinsLiveRouters(t *testing.T) {
	cluster := NewCluster(description.KindSharded)
	a := address.Canonicalize("a:27017")
	b := address.Canonicalize("b:27017")
	cluster.Update(description.Server{Addr: a, Role: description.RoleMongos})
	cluster.Update(description.Server{Addr: b, Role: description.RoleMongos})

	sh := &ShardedTopology{cluster: cluster, sessions: make(map[address.Address]*connection.Session)}

	seen := map[address.Address]int{}
	for i := 0; i < 4; i++ {
		addr, err := sh.pickRouter(context.Background(), nil)
		if err != nil {
			t.Fatalf("pickRouter: %v", err)
		}
		seen[addr]++
	}
	if seen[a] != 2 || seen[b] != 2 {
		t.Fatalf("expected an even round-robin split, got %v", seen)
	}
}

func TestShardedPickRouterSkipsNonMongosRoles(t *testing.T) {
	cluster := NewCluster(description.KindSharded)
	cluster.Update(description.Server{Addr: address.Canonicalize("a:27017"), Role: description.RoleUnknown})

	sh := &ShardedTopology{cluster: cluster, sessions: make(map[address.Address]*connection.Session)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sh.pickRouter(ctx, nil); err == nil {
		t.Fatal("expected an error when no tracked server is a mongos yet")
	}
}

func TestShardedPickRouterHonorsPinnedAddress(t *testing.T) {
	cluster := NewCluster(description.KindSharded)
	a := address.Canonicalize("a:27017")
	b := address.Canonicalize("b:27017")
	cluster.Update(description.Server{Addr: a, Role: description.RoleMongos})
	cluster.Update(description.Server{Addr: b, Role: description.RoleMongos})

	sh := &ShardedTopology{cluster: cluster, sessions: make(map[address.Address]*connection.Session)}

	addr, err := sh.pickRouter(context.Background(), readpref.PinnedServer(string(b)))
	if err != nil {
		t.Fatalf("pickRouter: %v", err)
	}
	if addr != b {
		t.Fatalf("expected the pinned router %s, got %s", b, addr)
	}
}

// fakeWireConn is an in-memory connection.RawConn: writes are captured
// and a reply/read-failure is delivered through a channel the fake's
// ReadWireMessage drains, letting a test simulate a primary dropping
// mid-request without a real socket.
type fakeWireConn struct {
	id string

	mu      sync.Mutex
	written []wiremessage.WireMessage
	replies chan wiremessage.WireMessage
	closed  bool
}

func newFakeWireConn(id string) *fakeWireConn {
	return &fakeWireConn{id: id, replies: make(chan wiremessage.WireMessage, 16)}
}

func (f *fakeWireConn) WriteWireMessage(ctx context.Context, wm wiremessage.WireMessage) error {
	f.mu.Lock()
	f.written = append(f.written, wm)
	f.mu.Unlock()
	return nil
}

func (f *fakeWireConn) ReadWireMessage(ctx context.Context) (wiremessage.WireMessage, error) {
	wm, ok := <-f.replies
	if !ok {
		return nil, errs.New(errs.ConnectionLost, "fake connection closed")
	}
	return wm, nil
}

func (f *fakeWireConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.replies)
	}
	return nil
}

func (f *fakeWireConn) Alive() bool   { return !f.closed }
func (f *fakeWireConn) Expired() bool { return false }
func (f *fakeWireConn) ID() string    { return f.id }

// kill simulates the primary's connection dropping out from under an
// in-flight request, distinct from a caller-initiated Close: it closes
// the reply channel so the session's receive loop observes a read
// failure and fails every pending entry with CONNECTION_LOST, rather
// than the SHUTDOWN_IN_PROGRESS a graceful Session.Close produces.
func (f *fakeWireConn) kill() { f.Close() }

type failChanSink struct {
	failed chan error
}

func newFailChanSink() *failChanSink {
	return &failChanSink{failed: make(chan error, 1)}
}

func (s *failChanSink) Deliver(wiremessage.WireMessage) {}
func (s *failChanSink) Fail(err error)                  { s.failed <- err }

// TestReplicaSetPrimaryFailoverMidFlightRoutesToNewPrimary exercises
// scenario S2: a write in flight to the primary, the primary's
// connection dropping mid-request, and a subsequent write landing on
// the newly discovered primary — driven by the session-lifecycle
// watcher (watchSession, started here the way sessionFor starts it),
// not by the lazy dropAndMaybeFailover path a failed dial would take.
func TestReplicaSetPrimaryFailoverMidFlightRoutesToNewPrimary(t *testing.T) {
	addrA := address.Canonicalize("a:27017")
	addrB := address.Canonicalize("b:27017")
	now := time.Now()

	cluster := NewCluster(description.KindReplicaSet)
	cluster.Update(description.Server{Addr: addrA, Role: description.RolePrimary, LastUpdateTime: now})
	cluster.Update(description.Server{Addr: addrB, Role: description.RoleSecondary, LastUpdateTime: now})

	rs := &ReplicaSetTopology{
		cluster:  cluster,
		pinger:   NewPinger(cluster, time.Hour),
		bgCtx:    context.Background(),
		sessions: make(map[address.Address]*connection.Session),
	}

	connA := newFakeWireConn(string(addrA))
	sessA := connection.NewSession(connA)
	rs.sessions[addrA] = sessA
	go rs.watchSession(rs.bgContext(), addrA, sessA)

	sink := newFailChanSink()
	if err := rs.Send(context.Background(), wiremessage.Insert{FullCollectionName: "db.coll"}, sink, readpref.Primary()); err != nil {
		t.Fatalf("Send to primary: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	var wroteToA int
	for {
		connA.mu.Lock()
		wroteToA = len(connA.written)
		connA.mu.Unlock()
		if wroteToA == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for the in-flight write to reach the primary's connection, wrote %d messages", wroteToA)
		}
		time.Sleep(time.Millisecond)
	}

	// The primary's connection drops mid-request: no graceful Close, no
	// dial ever fails, just the read loop losing the socket.
	connA.kill()

	select {
	case err := <-sink.failed:
		if !errs.Is(err, errs.ConnectionLost) {
			t.Fatalf("expected CONNECTION_LOST, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the in-flight sink to fail")
	}

	// A subsequent write must route to a newly discovered primary
	// without this test ever dialing addrA again: the proactive watcher
	// already demoted addrA to RoleUnknown and kicked off
	// ReconnectReplicaSet, which is currently blocked waiting for a
	// writable member. Promoting addrB directly (standing in for the
	// pinger's own isMaster discovery) unblocks it.
	demoteDeadline := time.Now().Add(time.Second)
	for {
		if rec, ok := cluster.Get(addrA); ok && rec.Role == description.RoleUnknown {
			break
		}
		if time.Now().After(demoteDeadline) {
			t.Fatal("timed out waiting for the watcher to demote the dropped primary")
		}
		time.Sleep(time.Millisecond)
	}

	cluster.Update(description.Server{Addr: addrB, Role: description.RolePrimary, LastUpdateTime: time.Now()})

	selectCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv, err := cluster.SelectServer(selectCtx, readpref.Primary())
	if err != nil {
		t.Fatalf("SelectServer after failover: %v", err)
	}
	if srv.Addr != addrB {
		t.Fatalf("expected the new primary %s to be selected, got %s", addrB, srv.Addr)
	}

	connA.mu.Lock()
	wroteToAAfter := len(connA.written)
	connA.mu.Unlock()
	if wroteToAAfter != wroteToA {
		t.Fatalf("expected no further traffic to the dead primary's connection, wrote %d messages total", wroteToAAfter)
	}
}

func TestStandaloneSendFailsSinkWhenReconnectAborted(t *testing.T) {
	st := &StandaloneTopology{
		addr: address.Canonicalize("127.0.0.1:1"),
		opts: []connection.Option{connection.WithConnectTimeout(5 * time.Millisecond)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	sink := &fakeSink{}
	err := st.Send(ctx, wiremessage.Query{FullCollectionName: "db.coll"}, sink, nil)
	if err == nil {
		t.Fatal("expected an error dialing an address nothing listens on")
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.failed == nil {
		t.Fatal("expected sink.Fail to have been called")
	}
}
