// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package cursor

import (
	"context"
	"io"
	"testing"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/driver"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// scriptedSender answers every Send call with the next scripted step,
// and records which server each call was pinned to so affinity can be
// asserted.
type scriptedSender struct {
	pinnedTo []string
	step     []func(sink connection.Sink)
	calls    int
}

func (s *scriptedSender) Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	if rp != nil {
		s.pinnedTo = append(s.pinnedTo, rp.PinnedAddress)
	} else {
		s.pinnedTo = append(s.pinnedTo, "")
	}
	step := s.step[s.calls]
	s.calls++
	if sink != nil {
		step(sink)
	}
	return nil
}

func (s *scriptedSender) SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	return s.Send(ctx, wm1, sink, rp)
}

func docs(n int) []*bson.Document {
	out := make([]*bson.Document, n)
	for i := range out {
		out[i] = bson.NewDocument(bson.EC.Int32("n", int32(i)))
	}
	return out
}

var ns = driver.Namespace{DB: "test", Collection: "widgets"}

func TestCursorDrainsInitialBatchThenGetMoreThenExhausts(t *testing.T) {
	srv := address.Canonicalize("a:27017")
	sender := &scriptedSender{step: []func(connection.Sink){
		func(sink connection.Sink) {
			sink.Deliver(wiremessage.Reply{CursorID: 0, NumberReturned: 5, Documents: docs(5)})
		},
	}}

	initial := wiremessage.Reply{CursorID: 42, NumberReturned: 10, Documents: docs(10)}
	c, err := New(sender, ns, srv, initial, 10, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next at %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next (second batch) at %d: %v", i, err)
		}
	}

	if _, err := c.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF once the cursor id reaches zero, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one GET_MORE round trip, got %d", sender.calls)
	}
	if sender.pinnedTo[0] != string(srv) {
		t.Fatalf("GET_MORE must be pinned to the originating server, got %q", sender.pinnedTo[0])
	}
}

func TestCursorClosedAfterFirstBatchSendsExactlyOneKillCursors(t *testing.T) {
	srv := address.Canonicalize("a:27017")
	var killed []int64
	sender := &scriptedSender{step: []func(connection.Sink){
		func(sink connection.Sink) {},
	}}

	initial := wiremessage.Reply{CursorID: 42, NumberReturned: 10, Documents: docs(10)}
	c, err := New(sender, ns, srv, initial, 10, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next at %d: %v", i, err)
		}
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one KILL_CURSORS, got %d calls", sender.calls)
	}
	_ = killed
}

func TestCursorNoKillCursorsWhenExhaustedNaturally(t *testing.T) {
	srv := address.Canonicalize("a:27017")
	initial := wiremessage.Reply{CursorID: 0, NumberReturned: 3, Documents: docs(3)}
	sender := &scriptedSender{}

	c, err := New(sender, ns, srv, initial, 10, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next at %d: %v", i, err)
		}
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no KILL_CURSORS for an already-exhausted cursor, got %d calls", sender.calls)
	}
}

func TestCursorResumeFetchesFreshBatch(t *testing.T) {
	srv := address.Canonicalize("a:27017")
	sender := &scriptedSender{step: []func(connection.Sink){
		func(sink connection.Sink) {
			sink.Deliver(wiremessage.Reply{CursorID: 0, NumberReturned: 2, Documents: docs(2)})
		},
	}}

	c := Resume(sender, SavedState{Server: srv, Namespace: ns, CursorID: 42, BatchSize: 10})
	for i := 0; i < 2; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next at %d: %v", i, err)
		}
	}
	if _, err := c.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one GET_MORE to resume, got %d", sender.calls)
	}
}

func TestCursorRemainingLimitKillsCursorEarly(t *testing.T) {
	srv := address.Canonicalize("a:27017")
	sender := &scriptedSender{step: []func(connection.Sink){
		func(sink connection.Sink) { t.Fatal("limit reached: no further round trip should occur") },
	}}

	initial := wiremessage.Reply{CursorID: 42, NumberReturned: 5, Documents: docs(5)}
	c, err := New(sender, ns, srv, initial, 10, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatalf("Next at %d: %v", i, err)
		}
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one fire-and-forget KILL_CURSORS once the limit is hit, got %d", sender.calls)
	}
	if _, err := c.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected io.EOF after the limit is exhausted, got %v", err)
	}
}

func TestCursorCursorNotFoundOnGetMore(t *testing.T) {
	srv := address.Canonicalize("a:27017")
	sender := &scriptedSender{step: []func(connection.Sink){
		func(sink connection.Sink) {
			sink.Deliver(wiremessage.Reply{ResponseFlags: wiremessage.ReplyCursorNotFound})
		},
	}}

	initial := wiremessage.Reply{CursorID: 42, NumberReturned: 1, Documents: docs(1)}
	c, err := New(sender, ns, srv, initial, 10, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Next(context.Background()); err != nil {
		t.Fatalf("Next (first doc): %v", err)
	}
	if _, err := c.Next(context.Background()); err == nil {
		t.Fatal("expected a CURSOR_NOT_FOUND error on the follow-up GET_MORE")
	}
}
