// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/logger"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

func logCommand(ctx context.Context, msg string, err error) {
	l := logger.FromContext(ctx)
	if l == nil {
		return
	}
	kvs := []interface{}{}
	if err != nil {
		kvs = append(kvs, "error", err.Error())
	}
	l.Print(logger.LevelDebug, &logger.Message{Comp: logger.ComponentCommand, Msg: msg, KVs: kvs})
}

// Sender is the slice of topology.Topology that Dispatch needs. Narrowing
// it to an interface here, rather than importing topology directly, keeps
// this package testable with a fake and free of a dependency edge back up
// to the routing layer.
type Sender interface {
	Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error
	SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error
}

// Dispatch routes wm through sender, decodes the resulting reply document
// with decode, and retries exactly once if the failure is one the topology
// layer already knows how to recover from (a dropped connection or a stale
// shard-routing table). Grounded on the reference driver's dispatch
// package, which applies the same single-retry policy at the same layer.
func Dispatch(ctx context.Context, sender Sender, rp *readpref.ReadPref, wm wiremessage.WireMessage, decode func(*bson.Document) error) error {
	logCommand(ctx, "command started", nil)
	err := dispatchOnce(ctx, sender, rp, wm, decode)
	if err != nil && isRetryable(err) {
		logCommand(ctx, "command retrying after retryable error", err)
		err = dispatchOnce(ctx, sender, rp, wm, decode)
	}
	logCommand(ctx, "command finished", err)
	return err
}

// DispatchPair is Dispatch for the legacy write-then-getLastError sequence:
// wm1 and wm2 travel on the same Session so the getLastError response is
// guaranteed to describe wm1's outcome.
func DispatchPair(ctx context.Context, sender Sender, rp *readpref.ReadPref, wm1, wm2 wiremessage.WireMessage, decode func(*bson.Document) error) error {
	logCommand(ctx, "command pair started", nil)
	err := dispatchPairOnce(ctx, sender, rp, wm1, wm2, decode)
	if err != nil && isRetryable(err) {
		logCommand(ctx, "command pair retrying after retryable error", err)
		err = dispatchPairOnce(ctx, sender, rp, wm1, wm2, decode)
	}
	logCommand(ctx, "command pair finished", err)
	return err
}

func dispatchOnce(ctx context.Context, sender Sender, rp *readpref.ReadPref, wm wiremessage.WireMessage, decode func(*bson.Document) error) error {
	f := newFuture()
	sink := &ValidatingSink{Inner: &ConvertingSink{Inner: f, Decode: decode}}
	if err := sender.Send(ctx, wm, sink, rp); err != nil {
		return err
	}
	_, err := f.wait(ctx)
	return err
}

func dispatchPairOnce(ctx context.Context, sender Sender, rp *readpref.ReadPref, wm1, wm2 wiremessage.WireMessage, decode func(*bson.Document) error) error {
	f := newFuture()
	sink := &ValidatingSink{Inner: &ConvertingSink{Inner: f, Decode: decode}}
	if err := sender.SendPair(ctx, wm1, wm2, sink, rp); err != nil {
		return err
	}
	_, err := f.wait(ctx)
	return err
}

// isRetryable reports whether err is one Dispatch should retry once
// rather than surface immediately: a connection the topology has since
// dropped, or a shard-routing table it has since refreshed.
func isRetryable(err error) bool {
	return errs.Is(err, errs.ConnectionLost) || errs.Is(err, errs.ShardConfigStale)
}
