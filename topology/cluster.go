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
	"time"

	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/csot"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/logger"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// Cluster is the concurrent set of server records behind one Topology:
// add/remove by address, the single-writable invariant in replica-set
// mode, and read-preference-filtered, latency-ordered candidate
// selection. Grounded on the teacher's cluster.go Cluster type, in
// particular its waiter-channel broadcast and diff-style add/remove.
type Cluster struct {
	kind description.TopologyKind

	mu      sync.Mutex
	records map[address.Address]*ServerRecord

	waiterLock   sync.Mutex
	waiters      map[int64]chan struct{}
	lastWaiterID int64

	events chan Event

	selectionTimeout time.Duration
}

// NewCluster builds an empty Cluster for the given topology kind.
func NewCluster(kind description.TopologyKind) *Cluster {
	return &Cluster{
		kind:    kind,
		records: make(map[address.Address]*ServerRecord),
		waiters: make(map[int64]chan struct{}),
		events:  make(chan Event, 16),
	}
}

// SetSelectionTimeout bounds every subsequent SelectServer call with
// serverSelectionTimeoutMS, the minimum of it and ctx's own deadline
// applying per call. Zero leaves selection bounded by ctx alone.
func (c *Cluster) SetSelectionTimeout(d time.Duration) {
	c.selectionTimeout = d
}

// Kind reports the deployment shape this cluster tracks.
func (c *Cluster) Kind() description.TopologyKind { return c.kind }

// Events returns the channel ServerMembershipChanged and
// SessionOpenStateChanged notifications are published on. A slow reader
// misses events rather than blocking cluster updates.
func (c *Cluster) Events() <-chan Event { return c.events }

func (c *Cluster) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// NotifySessionStateChanged publishes a SessionOpenStateChanged event
// for addr. A dispatcher calls this around its own session cache so any
// Cluster observer can react to a session's lifecycle without the
// dispatcher exposing that cache directly.
func (c *Cluster) NotifySessionStateChanged(addr address.Address, open bool) {
	c.publish(Event{Kind: SessionOpenStateChanged, Address: string(addr), Open: open})
}

// Add registers addr if it is not already tracked, returning its record
// either way — add is a no-op for an address already in the set.
func (c *Cluster) Add(addr address.Address) *ServerRecord {
	c.mu.Lock()
	r, existed := c.records[addr]
	if !existed {
		r = newServerRecord(addr)
		c.records[addr] = r
	}
	c.mu.Unlock()

	if !existed {
		c.publish(Event{Kind: ServerMembershipChanged, Added: []description.Server{r.Snapshot()}})
		c.broadcast()
	}
	return r
}

// Remove drops addr from the tracked set.
func (c *Cluster) Remove(addr address.Address) {
	c.mu.Lock()
	r, existed := c.records[addr]
	if existed {
		delete(c.records, addr)
	}
	c.mu.Unlock()

	if existed {
		c.publish(Event{Kind: ServerMembershipChanged, Removed: []description.Server{r.Snapshot()}})
		c.broadcast()
	}
}

// Update applies a fresh probe result. In replica-set mode it also
// demotes any other record currently marked writable (the single-
// writable invariant of spec §4.5) and auto-discovers any host the new
// primary names that is not yet tracked.
func (c *Cluster) Update(desc description.Server) {
	c.mu.Lock()
	r, existed := c.records[desc.Addr]
	if !existed {
		r = newServerRecord(desc.Addr)
		c.records[desc.Addr] = r
	}
	r.update(desc)

	var toAdd []address.Address
	if c.kind == description.KindReplicaSet && desc.Writable() {
		for a, other := range c.records {
			if a == desc.Addr {
				continue
			}
			if snap := other.Snapshot(); snap.Writable() {
				other.update(description.Server{
					Addr:           a,
					Role:           description.RoleSecondary,
					Tags:           snap.Tags,
					SetName:        snap.SetName,
					LastUpdateTime: snap.LastUpdateTime,
				})
			}
		}
		for _, h := range desc.Hosts {
			ha := address.Canonicalize(h)
			if _, ok := c.records[ha]; !ok {
				toAdd = append(toAdd, ha)
			}
		}
	}
	c.mu.Unlock()

	if !existed {
		c.publish(Event{Kind: ServerMembershipChanged, Added: []description.Server{r.Snapshot()}})
	}
	for _, a := range toAdd {
		c.Add(a)
	}
	c.broadcast()
}

// Records returns a snapshot of every tracked server.
func (c *Cluster) Records() []description.Server {
	c.mu.Lock()
	out := make([]description.Server, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Snapshot())
	}
	c.mu.Unlock()
	return out
}

// Get looks up one tracked server's current snapshot.
func (c *Cluster) Get(addr address.Address) (description.Server, bool) {
	c.mu.Lock()
	r, ok := c.records[addr]
	c.mu.Unlock()
	if !ok {
		return description.Server{}, false
	}
	return r.Snapshot(), true
}

// Addresses returns every address currently tracked, for callers (the
// pinger) that need to iterate the set without a full snapshot.
func (c *Cluster) Addresses() []address.Address {
	c.mu.Lock()
	out := make([]address.Address, 0, len(c.records))
	for a := range c.records {
		out = append(out, a)
	}
	c.mu.Unlock()
	return out
}

// CandidateServers returns every tracked server rp accepts, sorted by
// ascending average RTT (spec §4.6's selection order).
func (c *Cluster) CandidateServers(rp *readpref.ReadPref) []description.Server {
	all := c.Records()
	out := make([]description.Server, 0, len(all))
	for _, s := range all {
		if rp.Acceptable(c.kind, s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AverageRTT < out[j].AverageRTT })
	return out
}

// AwaitChange returns a channel that closes once after the next
// membership or probe update, plus the waiter id to clean it up with
// RemoveWaiter if the caller abandons the wait first. Grounded on the
// teacher's cluster.go awaitUpdates/subscribeToMonitor waiter registry.
func (c *Cluster) AwaitChange() (<-chan struct{}, int64) {
	ch := make(chan struct{})
	c.waiterLock.Lock()
	c.lastWaiterID++
	id := c.lastWaiterID
	c.waiters[id] = ch
	c.waiterLock.Unlock()
	return ch, id
}

// RemoveWaiter discards a waiter registered by AwaitChange that never
// fired.
func (c *Cluster) RemoveWaiter(id int64) {
	c.waiterLock.Lock()
	delete(c.waiters, id)
	c.waiterLock.Unlock()
}

func (c *Cluster) broadcast() {
	c.waiterLock.Lock()
	for id, ch := range c.waiters {
		close(ch)
		delete(c.waiters, id)
	}
	c.waiterLock.Unlock()
}

// SelectServer blocks until a server matching rp is available, retrying
// on every cluster update, until ctx is done. This is the candidate-set-
// then-wait-for-update loop of spec §4.6, grounded directly on the
// teacher's cluster.go SelectServer.
func (c *Cluster) SelectServer(ctx context.Context, rp *readpref.ReadPref) (description.Server, error) {
	ctx, cancel := csot.WithServerSelectionTimeout(ctx, c.selectionTimeout)
	defer cancel()

	log := logger.FromContext(ctx)

	for {
		if candidates := c.CandidateServers(rp); len(candidates) > 0 {
			if log != nil {
				log.Print(logger.LevelDebug, &logger.Message{
					Comp: logger.ComponentServerSelection,
					Msg:  "server selected",
					KVs:  []interface{}{"address", string(candidates[0].Addr)},
				})
			}
			return candidates[0], nil
		}

		waitCh, waiterID := c.AwaitChange()
		select {
		case <-waitCh:
			continue
		case <-ctx.Done():
			c.RemoveWaiter(waiterID)
			return description.Server{}, errs.Wrap(errs.NoSuitableServer, "server selection timed out", ctx.Err())
		}
	}
}
