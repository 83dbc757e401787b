// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// outboundFrame is one unit of work handed to the sender goroutine: one
// or two wire messages that must be written back-to-back (the
// send(message1, message2, sink) pair of spec §4.3), plus the flush
// acknowledgement channel for a Flush caller, if any.
type outboundFrame struct {
	messages []wiremessage.WireMessage
	flushAck chan<- struct{}
}

// Session multiplexes any number of concurrent logical requests over
// one RawConn: a pending table keyed by request id, a single sender
// goroutine preserving per-session FIFO writes, and a single receiver
// goroutine demultiplexing replies by response-to id.
type Session struct {
	conn RawConn

	state   int32 // atomic State
	nextID  int32 // atomic, process-wide monotonic per session
	pending *pendingTable

	outbound chan outboundFrame
	done     chan struct{} // closed once sender+receiver both exit

	mu        sync.Mutex
	listeners []chan StateChange

	closeOnce sync.Once
}

// NewSession wraps conn in a multiplexing Session and starts its sender
// and receiver goroutines. The session begins in StateOpening and moves
// to StateOpen once both goroutines are running.
func NewSession(conn RawConn) *Session {
	s := &Session{
		conn:     conn,
		pending:  newPendingTable(),
		outbound: make(chan outboundFrame, 64),
		done:     make(chan struct{}),
	}
	atomic.StoreInt32(&s.state, int32(StateOpening))

	go s.receiveLoop()
	go s.sendLoop()

	s.transition(StateOpen)
	return s
}

func (s *Session) State() State { return State(atomic.LoadInt32(&s.state)) }

func (s *Session) transition(to State) {
	from := State(atomic.SwapInt32(&s.state, int32(to)))
	if from == to {
		return
	}
	change := StateChange{Old: from, New: to}
	s.mu.Lock()
	for _, ch := range s.listeners {
		select {
		case ch <- change:
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe returns a channel notified on every state transition. The
// channel is buffered; a slow subscriber misses transitions rather than
// blocking the session.
func (s *Session) Subscribe() <-chan StateChange {
	ch := make(chan StateChange, 4)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}

// ServerName returns the canonical address of the underlying connection:
// its id with the trailing "[n]" connection number removed.
func (s *Session) ServerName() string {
	id := s.conn.ID()
	if i := strings.LastIndexByte(id, '['); i > 0 && strings.HasSuffix(id, "]") {
		return id[:i]
	}
	return id
}

// PendingCount returns the number of requests currently awaiting a reply.
func (s *Session) PendingCount() int { return s.pending.len() }

// IsIdle reports whether the session has no outstanding requests.
func (s *Session) IsIdle() bool { return s.PendingCount() == 0 }

// Send assigns a fresh request id to wm, enqueues it for the sender,
// registers sink in the pending table, and returns the canonical server
// name. It fails with CONNECTION_NOT_AVAILABLE if the session is not
// OPEN.
func (s *Session) Send(ctx context.Context, wm wiremessage.WireMessage, sink Sink) (string, error) {
	_, err := s.enqueue(ctx, []wiremessage.WireMessage{wm}, sink)
	return s.ServerName(), err
}

// SendPair enqueues two messages as an atomic pair sharing a single
// sender critical section; only the second message's id is tracked for
// reply correlation (the INSERT+GET_LAST_ERROR pattern of spec §4.3).
func (s *Session) SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink Sink) (string, error) {
	_, err := s.enqueue(ctx, []wiremessage.WireMessage{wm1, wm2}, sink)
	return s.ServerName(), err
}

func (s *Session) enqueue(ctx context.Context, msgs []wiremessage.WireMessage, sink Sink) (int32, error) {
	if s.State() != StateOpen {
		err := newErr(s.conn.ID(), errs.ConnectionNotAvailable, "session is not OPEN")
		if sink != nil {
			sink.Fail(err)
		}
		return 0, err
	}

	var trackID int32
	for i, m := range msgs {
		id := atomic.AddInt32(&s.nextID, 1)
		h := m.Header()
		h.RequestID = id
		msgs[i] = setHeader(m, h)
		trackID = id
	}

	if sink != nil {
		s.pending.register(&pendingEntry{requestID: trackID, sink: sink, enqueuedAt: time.Now()})
	}

	frame := outboundFrame{messages: msgs}
	select {
	case s.outbound <- frame:
		return trackID, nil
	case <-ctx.Done():
		if sink != nil {
			if e, ok := s.pending.pop(trackID); ok {
				e.sink.Fail(newErr(s.conn.ID(), errs.Cancelled, "send cancelled before queuing"))
			}
		}
		return 0, ctx.Err()
	case <-s.done:
		if sink != nil {
			if e, ok := s.pending.pop(trackID); ok {
				e.sink.Fail(newErr(s.conn.ID(), errs.ShutdownInProgress, "session closed before queuing"))
			}
		}
		return 0, newErr(s.conn.ID(), errs.ShutdownInProgress, "session is closing")
	}
}

// setHeader rebuilds a WireMessage with a mutated header. Wire message
// types are value types with an exported MsgHeader field, so a type
// switch is simpler and cheaper than reflection here.
func setHeader(wm wiremessage.WireMessage, h wiremessage.Header) wiremessage.WireMessage {
	switch m := wm.(type) {
	case wiremessage.Query:
		m.MsgHeader = h
		return m
	case wiremessage.Insert:
		m.MsgHeader = h
		return m
	case wiremessage.Update:
		m.MsgHeader = h
		return m
	case wiremessage.Delete:
		m.MsgHeader = h
		return m
	case wiremessage.GetMore:
		m.MsgHeader = h
		return m
	case wiremessage.KillCursors:
		m.MsgHeader = h
		return m
	default:
		return wm
	}
}

// Flush blocks until every frame enqueued before this call has drained
// out to the kernel.
func (s *Session) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case s.outbound <- outboundFrame{flushAck: ack}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return newErr(s.conn.ID(), errs.ShutdownInProgress, "session is closing")
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

func (s *Session) sendLoop() {
	for {
		select {
		case frame := <-s.outbound:
			if frame.flushAck != nil {
				close(frame.flushAck)
				continue
			}
			for _, m := range frame.messages {
				if err := s.conn.WriteWireMessage(context.Background(), m); err != nil {
					s.failAll(errs.ConnectionLost, "write failed", err)
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) receiveLoop() {
	for {
		wm, err := s.conn.ReadWireMessage(context.Background())
		if err != nil {
			s.failAll(errs.ConnectionLost, "read failed", err)
			return
		}
		reply, ok := wm.(wiremessage.Reply)
		if !ok {
			continue
		}
		if entry, ok := s.pending.pop(reply.Header().ResponseTo); ok {
			entry.sink.Deliver(reply)
		}
		// No pending entry: either fire-and-forget or a cancelled
		// caller — the reply is discarded silently per spec §5.
	}
}

// failAll transitions the session to CLOSED and fails every outstanding
// pending entry with the given kind.
func (s *Session) failAll(kind errs.Kind, message string, cause error) {
	s.closeOnce.Do(func() {
		s.transition(StateClosed)
		close(s.done)
		s.conn.Close()
	})
	for _, e := range s.pending.drain() {
		e.sink.Fail(wrapErr(s.conn.ID(), kind, message, cause))
	}
}

// Close transitions the session straight to CLOSED, failing every
// pending entry and releasing the underlying connection.
func (s *Session) Close() error {
	s.failAll(errs.ShutdownInProgress, "session closed by caller", nil)
	return nil
}

// Shutdown drains (force=false) or aborts (force=true) the session.
// force=false lets the sender flush its queued frames before closing;
// force=true fails every queued and pending entry immediately with
// SHUTDOWN_IN_PROGRESS.
func (s *Session) Shutdown(force bool) error {
	if force {
		return s.Close()
	}
	s.transition(StateShuttingDown)
	if err := s.Flush(context.Background()); err != nil {
		return err
	}
	return s.Close()
}
