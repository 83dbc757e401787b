// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"testing"
	"time"

	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

func TestReplicaSetSingleWritableInvariant(t *testing.T) {
	c := NewCluster(description.KindReplicaSet)
	a := address.Canonicalize("a:27017")
	b := address.Canonicalize("b:27017")

	c.Update(description.Server{Addr: a, Role: description.RolePrimary, SetName: "rs0"})
	c.Update(description.Server{Addr: b, Role: description.RolePrimary, SetName: "rs0"})

	sa, _ := c.Get(a)
	sb, _ := c.Get(b)
	if sa.Writable() && sb.Writable() {
		t.Fatalf("both %s and %s report writable after a second primary was observed", a, b)
	}
	if !sb.Writable() {
		t.Fatalf("expected the most recently observed primary (%s) to remain writable", b)
	}
}

func TestCandidateServersOrderedByLatency(t *testing.T) {
	c := NewCluster(description.KindReplicaSet)
	fast := address.Canonicalize("fast:27017")
	slow := address.Canonicalize("slow:27017")

	c.Update(description.Server{Addr: slow, Role: description.RoleSecondary, AverageRTT: 50 * time.Millisecond, AverageRTTSet: true})
	c.Update(description.Server{Addr: fast, Role: description.RoleSecondary, AverageRTT: 5 * time.Millisecond, AverageRTTSet: true})

	candidates := c.CandidateServers(readpref.Secondary())
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Addr != fast {
		t.Fatalf("expected %s first, got %s", fast, candidates[0].Addr)
	}
}

func TestSelectServerWaitsForTopologyChange(t *testing.T) {
	c := NewCluster(description.KindReplicaSet)
	addr := address.Canonicalize("only:27017")

	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Update(description.Server{Addr: addr, Role: description.RolePrimary})
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	srv, err := c.SelectServer(ctx, readpref.Primary())
	if err != nil {
		t.Fatalf("SelectServer: %v", err)
	}
	if srv.Addr != addr {
		t.Fatalf("expected %s, got %s", addr, srv.Addr)
	}
	<-done
}

func TestSelectServerTimesOutWithNoSuitableServer(t *testing.T) {
	c := NewCluster(description.KindReplicaSet)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.SelectServer(ctx, readpref.Primary())
	if err == nil {
		t.Fatal("expected timeout error with no servers tracked")
	}
}
