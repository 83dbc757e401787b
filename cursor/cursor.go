// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package cursor

import (
	"context"
	"io"
	"runtime"
	"sync/atomic"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/driver"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// Cursor is a lazy sequence over the documents a QUERY reply started.
// Every GET_MORE it issues is pinned, via a ServerMode read preference,
// to the same server that returned the original reply — the affinity
// rule is enforced by construction, not by trusting the caller.
type Cursor struct {
	sender driver.Sender
	state  SavedState

	batch []*bson.Document
	pos   int

	closed int32 // atomic bool
}

// New wraps the documents and cursor id carried by a QUERY reply into an
// iterator. batchSize is the size requested for subsequent GET_MORE
// messages; it is not necessarily the length of the first batch, which
// the server may have rounded differently.
func New(sender driver.Sender, ns driver.Namespace, server address.Address, reply wiremessage.Reply, batchSize, remainingLimit int32) (*Cursor, error) {
	if err := validateReplyFlags(reply); err != nil {
		return nil, err
	}
	c := &Cursor{
		sender: sender,
		state: SavedState{
			Server:         server,
			Namespace:      ns,
			CursorID:       reply.CursorID,
			BatchSize:      batchSize,
			RemainingLimit: remainingLimit,
			Exhausted:      reply.CursorID == 0,
		},
		batch: reply.Documents,
	}
	c.armFinalizer()
	return c, nil
}

// Resume reconstructs an iterator from a previously saved state, with an
// empty local batch — the first Next call fetches a fresh batch with
// GET_MORE if the saved cursor id is still live.
func Resume(sender driver.Sender, state SavedState) *Cursor {
	c := &Cursor{sender: sender, state: state}
	c.armFinalizer()
	return c
}

func (c *Cursor) armFinalizer() {
	if c.state.CursorID != 0 {
		runtime.SetFinalizer(c, (*Cursor).finalize)
	}
}

// finalize is the drop guard spec §5 requires: a Cursor garbage
// collected while still holding a live cursor id fires KILL_CURSORS
// fire-and-forget, since there is no caller left to wait on a reply.
func (c *Cursor) finalize() {
	if atomic.LoadInt32(&c.closed) != 0 || c.state.CursorID == 0 {
		return
	}
	wm := driver.BuildKillCursors(c.state.CursorID)
	rp := readpref.PinnedServer(string(c.state.Server))
	_ = c.sender.Send(context.Background(), wm, nil, rp)
}

// State returns the iterator's current portable identity, suitable for
// persisting and later passing to Resume.
func (c *Cursor) State() SavedState { return c.state }

// Next returns the next document, fetching a new batch with GET_MORE
// from the cursor's server when the local batch is exhausted. It returns
// io.EOF once the cursor itself is exhausted, either because the server
// reported cursor id zero or because RemainingLimit (when positive) has
// been delivered in full. A RemainingLimit of zero means unlimited,
// matching the OP_QUERY numberToReturn convention it is seeded from.
func (c *Cursor) Next(ctx context.Context) (*bson.Document, error) {
	if atomic.LoadInt32(&c.closed) != 0 {
		return nil, errs.New(errs.CursorNotFound, "cursor is closed")
	}
	if c.pos >= len(c.batch) {
		if c.state.Exhausted || c.state.CursorID == 0 {
			return nil, io.EOF
		}
		if err := c.fetchMore(ctx); err != nil {
			return nil, err
		}
		if c.pos >= len(c.batch) {
			return nil, io.EOF
		}
	}

	doc := c.batch[c.pos]
	c.pos++
	c.accountForLimit(ctx)
	return doc, nil
}

// accountForLimit decrements a positive RemainingLimit and, once it
// reaches zero, drops the rest of the local batch, marks the cursor
// exhausted and, with documents still owed by the server, kills the
// now-unneeded cursor rather than let a later GET_MORE fetch them.
func (c *Cursor) accountForLimit(ctx context.Context) {
	if c.state.RemainingLimit <= 0 {
		return
	}
	c.state.RemainingLimit--
	if c.state.RemainingLimit != 0 {
		return
	}
	c.batch = c.batch[:c.pos]
	c.state.Exhausted = true
	if c.state.CursorID != 0 {
		wm := driver.BuildKillCursors(c.state.CursorID)
		rp := readpref.PinnedServer(string(c.state.Server))
		_ = c.sender.Send(ctx, wm, nil, rp)
		c.state.CursorID = 0
		c.state.Exhausted = true
		runtime.SetFinalizer(c, nil)
	}
}

func (c *Cursor) fetchMore(ctx context.Context) error {
	wm := driver.BuildGetMore(c.state.Namespace, c.state.CursorID, c.state.BatchSize)
	rp := readpref.PinnedServer(string(c.state.Server))

	sink := newResultSink()
	if err := c.sender.Send(ctx, wm, sink, rp); err != nil {
		return err
	}
	reply, err := sink.wait(ctx)
	if err != nil {
		if errs.Is(err, errs.CursorNotFound) {
			c.state.Exhausted = true
			c.state.CursorID = 0
			runtime.SetFinalizer(c, nil)
		}
		return err
	}
	if err := validateReplyFlags(reply); err != nil {
		if errs.Is(err, errs.CursorNotFound) {
			c.state.Exhausted = true
			c.state.CursorID = 0
			runtime.SetFinalizer(c, nil)
		}
		return err
	}

	c.batch = reply.Documents
	c.pos = 0
	c.state.CursorID = reply.CursorID
	if reply.CursorID == 0 {
		c.state.Exhausted = true
		runtime.SetFinalizer(c, nil)
	}
	return nil
}

// Close releases the cursor. If it still holds a live cursor id, it
// sends KILL_CURSORS to the owning server and does not wait for a reply
// — the wire protocol defines none. Close is idempotent.
func (c *Cursor) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	runtime.SetFinalizer(c, nil)
	if c.state.CursorID == 0 {
		return nil
	}
	wm := driver.BuildKillCursors(c.state.CursorID)
	rp := readpref.PinnedServer(string(c.state.Server))
	err := c.sender.Send(ctx, wm, nil, rp)
	c.state.CursorID = 0
	return err
}

// resultSink captures the single OP_REPLY a GET_MORE round trip
// produces. It is intentionally simpler than the layered
// ValidatingSink/ConvertingSink pair in the driver package: those assume
// a single decoded command document, but a GET_MORE reply's documents
// are the batch itself, not a command result to unwrap.
type resultSink struct {
	done  int32
	ready chan struct{}
	reply wiremessage.Reply
	err   error
}

func newResultSink() *resultSink {
	return &resultSink{ready: make(chan struct{})}
}

func (s *resultSink) Deliver(wm wiremessage.WireMessage) {
	if !atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		return
	}
	reply, ok := wm.(wiremessage.Reply)
	if !ok {
		s.err = errs.New(errs.ReplyValidation, "expected an OP_REPLY")
	} else {
		s.reply = reply
	}
	close(s.ready)
}

func (s *resultSink) Fail(err error) {
	if atomic.CompareAndSwapInt32(&s.done, 0, 1) {
		s.err = err
		close(s.ready)
	}
}

func (s *resultSink) wait(ctx context.Context) (wiremessage.Reply, error) {
	select {
	case <-s.ready:
		return s.reply, s.err
	case <-ctx.Done():
		return wiremessage.Reply{}, errs.Wrap(errs.OperationTimedOut, "get more wait cancelled", ctx.Err())
	}
}

// validateReplyFlags inspects the wire-level failure signals an OP_REPLY
// carries — it deliberately stops short of driver.ValidateReply's
// command-document "ok" field check, which does not apply to a plain
// result batch. Grounded on the same reference decode path as
// driver/errors.go.
func validateReplyFlags(reply wiremessage.Reply) error {
	if reply.ResponseFlags&wiremessage.ReplyQueryFailure != 0 {
		return errs.New(errs.QueryFailure, "query failed")
	}
	if reply.ResponseFlags&wiremessage.ReplyCursorNotFound != 0 {
		return errs.New(errs.CursorNotFound, "cursor not found")
	}
	if reply.ResponseFlags&wiremessage.ReplyShardConfigStale != 0 {
		return errs.New(errs.ShardConfigStale, "shard config stale")
	}
	return nil
}

var _ connection.Sink = (*resultSink)(nil)
