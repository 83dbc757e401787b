// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// futureSpinAttempts bounds how long wait busy-spins before parking on
// the ready channel. A healthy round trip over a local or LAN socket
// typically completes well within this many Gosched calls, which saves
// the channel-park/wake scheduler round trip on the common path without
// burning a core indefinitely on a slow one.
const futureSpinAttempts = 64

// future is the innermost completion sink: a one-shot box a dispatcher
// blocks on after handing a request to a Session.
type future struct {
	done  int32 // atomic bool, 0 until Deliver or Fail runs
	ready chan struct{}

	reply wiremessage.WireMessage
	err   error
}

func newFuture() *future {
	return &future{ready: make(chan struct{})}
}

// Deliver implements connection.Sink.
func (f *future) Deliver(reply wiremessage.WireMessage) {
	if atomic.CompareAndSwapInt32(&f.done, 0, 1) {
		f.reply = reply
		close(f.ready)
	}
}

// Fail implements connection.Sink.
func (f *future) Fail(err error) {
	if atomic.CompareAndSwapInt32(&f.done, 0, 1) {
		f.err = err
		close(f.ready)
	}
}

// wait blocks until Deliver or Fail runs or ctx is done.
func (f *future) wait(ctx context.Context) (wiremessage.WireMessage, error) {
	for i := 0; i < futureSpinAttempts; i++ {
		if atomic.LoadInt32(&f.done) == 1 {
			return f.reply, f.err
		}
		runtime.Gosched()
	}

	select {
	case <-f.ready:
		return f.reply, f.err
	case <-ctx.Done():
		return nil, errs.Wrap(errs.OperationTimedOut, "command wait cancelled", ctx.Err())
	}
}
