// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// fakeRawConn is an in-memory RawConn: writes are captured, and replies
// are delivered by the test through a channel the fake's
// ReadWireMessage drains, letting a test simulate out-of-order REPLYs
// without a real socket.
type fakeRawConn struct {
	mu      sync.Mutex
	written []wiremessage.WireMessage
	replies chan wiremessage.WireMessage
	closed  bool
}

func newFakeRawConn() *fakeRawConn {
	return &fakeRawConn{replies: make(chan wiremessage.WireMessage, 16)}
}

func (f *fakeRawConn) WriteWireMessage(ctx context.Context, wm wiremessage.WireMessage) error {
	f.mu.Lock()
	f.written = append(f.written, wm)
	f.mu.Unlock()
	return nil
}

func (f *fakeRawConn) ReadWireMessage(ctx context.Context) (wiremessage.WireMessage, error) {
	wm, ok := <-f.replies
	if !ok {
		return nil, newErr("fake", "CONNECTION_LOST", "fake closed")
	}
	return wm, nil
}

func (f *fakeRawConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.replies)
	}
	return nil
}

func (f *fakeRawConn) Alive() bool   { return !f.closed }
func (f *fakeRawConn) Expired() bool { return false }
func (f *fakeRawConn) ID() string    { return "fake:27017[1]" }

type capturingSink struct {
	delivered chan wiremessage.WireMessage
	failed    chan error
}

func newCapturingSink() *capturingSink {
	return &capturingSink{delivered: make(chan wiremessage.WireMessage, 1), failed: make(chan error, 1)}
}

func (s *capturingSink) Deliver(reply wiremessage.WireMessage) { s.delivered <- reply }
func (s *capturingSink) Fail(err error)                        { s.failed <- err }

func TestSendAssignsStrictlyIncreasingRequestIDs(t *testing.T) {
	conn := newFakeRawConn()
	s := NewSession(conn)
	defer s.Close()

	var lastID int32
	for i := 0; i < 5; i++ {
		id, err := s.enqueue(context.Background(), []wiremessage.WireMessage{wiremessage.Query{FullCollectionName: "db.coll"}}, nil)
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if id <= lastID {
			t.Fatalf("expected strictly increasing ids, got %d after %d", id, lastID)
		}
		lastID = id
	}
}

func TestOutOfOrderRepliesDeliverToCorrectSink(t *testing.T) {
	conn := newFakeRawConn()
	s := NewSession(conn)
	defer s.Close()

	sinks := make([]*capturingSink, 3)
	ids := make([]int32, 3)
	for i := range sinks {
		sinks[i] = newCapturingSink()
		id, err := s.enqueue(context.Background(), []wiremessage.WireMessage{wiremessage.Query{FullCollectionName: "db.coll"}}, sinks[i])
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		ids[i] = id
	}

	// Deliver replies in reverse order of submission.
	for i := len(ids) - 1; i >= 0; i-- {
		conn.replies <- wiremessage.Reply{MsgHeader: wiremessage.Header{ResponseTo: ids[i]}, CursorID: int64(i)}
	}

	for i, sink := range sinks {
		select {
		case reply := <-sink.delivered:
			r := reply.(wiremessage.Reply)
			if r.CursorID != int64(i) {
				t.Fatalf("sink %d got reply meant for cursor %d", i, r.CursorID)
			}
		case <-time.After(time.Second):
			t.Fatalf("sink %d never received its reply", i)
		}
	}
}

func TestCloseFailsEveryPendingEntryExactlyOnce(t *testing.T) {
	conn := newFakeRawConn()
	s := NewSession(conn)

	sink := newCapturingSink()
	if _, err := s.enqueue(context.Background(), []wiremessage.WireMessage{wiremessage.Query{}}, sink); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s.Close()

	select {
	case <-sink.failed:
	case <-time.After(time.Second):
		t.Fatal("expected sink to be failed on close")
	}
	select {
	case err := <-sink.failed:
		t.Fatalf("sink failed a second time: %v", err)
	default:
	}

	if s.State() != StateClosed {
		t.Fatalf("expected state CLOSED, got %s", s.State())
	}
}

func TestSendAfterCloseFailsWithConnectionNotAvailable(t *testing.T) {
	conn := newFakeRawConn()
	s := NewSession(conn)
	s.Close()

	sink := newCapturingSink()
	_, err := s.enqueue(context.Background(), []wiremessage.WireMessage{wiremessage.Query{}}, sink)
	if err == nil {
		t.Fatal("expected error sending on a closed session")
	}
	if !errs.Is(err, errs.ConnectionNotAvailable) {
		t.Fatalf("expected CONNECTION_NOT_AVAILABLE, got %v", err)
	}
	select {
	case <-sink.failed:
	default:
		t.Fatal("expected sink.Fail to have been called synchronously")
	}
}
