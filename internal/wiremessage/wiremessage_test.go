// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage_test

import (
	"testing"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

func TestQueryRoundTrip(t *testing.T) {
	q := wiremessage.Query{
		MsgHeader:          wiremessage.Header{RequestID: 7},
		Flags:              wiremessage.QuerySlaveOK,
		FullCollectionName: "test.coll",
		NumberToSkip:       0,
		NumberToReturn:     -1,
		Query:              bson.NewDocument(bson.EC.String("find", "coll")),
	}
	encoded, err := q.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}

	var decoded wiremessage.Query
	if err := decoded.UnmarshalWireMessage(encoded); err != nil {
		t.Fatalf("UnmarshalWireMessage: %v", err)
	}
	if decoded.FullCollectionName != q.FullCollectionName {
		t.Fatalf("namespace mismatch: got %q", decoded.FullCollectionName)
	}
	if decoded.MsgHeader.RequestID != 7 {
		t.Fatalf("request id not preserved: got %d", decoded.MsgHeader.RequestID)
	}
	if decoded.MsgHeader.MessageLength != int32(len(encoded)) {
		t.Fatalf("message length %d does not match encoded length %d", decoded.MsgHeader.MessageLength, len(encoded))
	}
	if !decoded.Query.Equal(q.Query) {
		t.Fatalf("query document mismatch")
	}
}

func TestReplyRoundTripOutOfOrderIsIrrelevantToCodec(t *testing.T) {
	r := wiremessage.Reply{
		MsgHeader:      wiremessage.Header{RequestID: 1, ResponseTo: 99},
		CursorID:       42,
		NumberReturned: 2,
		Documents: []*bson.Document{
			bson.NewDocument(bson.EC.Int32("n", 1)),
			bson.NewDocument(bson.EC.Int32("n", 2)),
		},
	}
	encoded, err := r.AppendWireMessage(nil)
	if err != nil {
		t.Fatalf("AppendWireMessage: %v", err)
	}

	var decoded wiremessage.Reply
	if err := decoded.UnmarshalWireMessage(encoded); err != nil {
		t.Fatalf("UnmarshalWireMessage: %v", err)
	}
	if decoded.MsgHeader.ResponseTo != 99 {
		t.Fatalf("response-to not preserved: got %d", decoded.MsgHeader.ResponseTo)
	}
	if decoded.CursorID != 42 {
		t.Fatalf("cursor id not preserved: got %d", decoded.CursorID)
	}
	if len(decoded.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(decoded.Documents))
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := wiremessage.Header{MessageLength: 16, RequestID: 5, ResponseTo: 0, OpCode: wiremessage.OpQuery}
	b := h.AppendHeader(nil)
	decoded, err := wiremessage.ReadHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != h {
		t.Fatalf("header round trip mismatch: got %+v, want %+v", decoded, h)
	}
}
