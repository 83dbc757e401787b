// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"context"
	"testing"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// scriptedSender answers successive Send/SendPair calls from script, in
// order, so a test can drive a dispatcher through a scripted failure
// followed by a scripted success without a real topology.
type scriptedSender struct {
	calls  int
	script []func(sink connection.Sink)
}

func (s *scriptedSender) Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	step := s.script[s.calls]
	s.calls++
	step(sink)
	return nil
}

func (s *scriptedSender) SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error {
	return s.Send(ctx, wm1, sink, rp)
}

func okReply(doc *bson.Document) wiremessage.Reply {
	return wiremessage.Reply{NumberReturned: 1, Documents: []*bson.Document{doc}}
}

func TestDispatchRetriesOnceOnConnectionLost(t *testing.T) {
	sender := &scriptedSender{script: []func(connection.Sink){
		func(sink connection.Sink) { sink.Fail(errs.New(errs.ConnectionLost, "reset by peer")) },
		func(sink connection.Sink) { sink.Deliver(okReply(bson.NewDocument(bson.EC.Int32("ok", 1)))) },
	}}

	err := Dispatch(context.Background(), sender, readpref.Primary(), wiremessage.Query{}, func(*bson.Document) error { return nil })
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", sender.calls)
	}
}

func TestDispatchDoesNotRetryOnNonRetryableError(t *testing.T) {
	sender := &scriptedSender{script: []func(connection.Sink){
		func(sink connection.Sink) { sink.Fail(errs.New(errs.DuplicateKey, "E11000 duplicate key")) },
		func(sink connection.Sink) { t.Fatal("Dispatch must not retry a non-retryable error") },
	}}

	err := Dispatch(context.Background(), sender, readpref.Primary(), wiremessage.Query{}, func(*bson.Document) error { return nil })
	if !errs.Is(err, errs.DuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("expected exactly one call, got %d", sender.calls)
	}
}

func TestValidateReplyDuplicateKeyCode(t *testing.T) {
	reply := okReply(bson.NewDocument(
		bson.EC.Int32("ok", 0),
		bson.EC.String("errmsg", "E11000 duplicate key error"),
		bson.EC.Int32("code", duplicateKeyCode),
	))

	_, err := ValidateReply(reply)
	if !errs.Is(err, errs.DuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
}

func TestValidateReplySuccessReturnsDocument(t *testing.T) {
	doc := bson.NewDocument(bson.EC.Int32("ok", 1), bson.EC.Int32("n", 3))
	reply := okReply(doc)

	got, err := ValidateReply(reply)
	if err != nil {
		t.Fatalf("ValidateReply: %v", err)
	}
	if got != doc {
		t.Fatalf("expected the reply's own document back, got a different one")
	}
}

func TestBuildFindSetsSlaveOkForSecondaryPreference(t *testing.T) {
	ns := Namespace{DB: "test", Collection: "widgets"}

	primary := BuildFind(ns, bson.NewDocument(), nil, 0, 0, readpref.Primary())
	if primary.Flags&wiremessage.QuerySlaveOK != 0 {
		t.Fatalf("primary read preference must not set SlaveOK")
	}

	secondary := BuildFind(ns, bson.NewDocument(), nil, 0, 0, readpref.Secondary())
	if secondary.Flags&wiremessage.QuerySlaveOK == 0 {
		t.Fatalf("secondary read preference must set SlaveOK")
	}
}
