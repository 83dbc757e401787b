// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import (
	"fmt"

	"github.com/igreenfield/mongodb-async-driver/bson"
)

// ReplyFlags is the flags bitset carried on an OP_REPLY body.
type ReplyFlags int32

// Recognized OP_REPLY flags, per spec §4.2.
const (
	ReplyCursorNotFound   ReplyFlags = 1 << 0
	ReplyQueryFailure     ReplyFlags = 1 << 1
	ReplyShardConfigStale ReplyFlags = 1 << 2
	ReplyAwaitCapable     ReplyFlags = 1 << 3
)

// Reply is an OP_REPLY message.
type Reply struct {
	MsgHeader      Header
	ResponseFlags  ReplyFlags
	CursorID       int64
	StartingFrom   int32
	NumberReturned int32
	Documents      []*bson.Document
}

// Header returns the message header.
func (r Reply) Header() Header { return r.MsgHeader }

// AppendWireMessage appends r's wire bytes to dst.
func (r Reply) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := r.MsgHeader
	h.OpCode = OpReply
	dst = h.AppendHeader(dst)

	dst = appendInt32(dst, int32(r.ResponseFlags))
	dst = appendInt64(dst, r.CursorID)
	dst = appendInt32(dst, r.StartingFrom)
	dst = appendInt32(dst, int32(len(r.Documents)))

	var err error
	for _, doc := range r.Documents {
		dst, err = bson.MarshalAppend(dst, doc)
		if err != nil {
			return nil, err
		}
	}

	putLength(dst, start)
	return dst, nil
}

// UnmarshalWireMessage decodes an OP_REPLY body (including the header)
// from b into r.
func (r *Reply) UnmarshalWireMessage(b []byte) error {
	h, err := ReadHeader(b)
	if err != nil {
		return err
	}
	if h.OpCode != OpReply {
		return fmt.Errorf("wiremessage: expected OP_REPLY, got %s", h.OpCode)
	}
	r.MsgHeader = h
	pos := headerLen
	r.ResponseFlags = ReplyFlags(readInt32(b, pos))
	pos += 4
	r.CursorID = readInt64(b, pos)
	pos += 8
	r.StartingFrom = readInt32(b, pos)
	pos += 4
	r.NumberReturned = readInt32(b, pos)
	pos += 4

	r.Documents = r.Documents[:0]
	for i := int32(0); i < r.NumberReturned; i++ {
		if pos >= int(h.MessageLength) {
			return fmt.Errorf("wiremessage: OP_REPLY declares %d documents but ran out of bytes after %d", r.NumberReturned, i)
		}
		doc, consumed, err := bson.UnmarshalOne(b[pos:h.MessageLength])
		if err != nil {
			return err
		}
		r.Documents = append(r.Documents, doc)
		pos += consumed
	}
	return nil
}
