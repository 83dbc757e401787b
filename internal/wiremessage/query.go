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

// QueryFlags is the flags bitset carried on an OP_QUERY body.
type QueryFlags int32

// Recognized OP_QUERY flags, per spec §4.2.
const (
	QueryTailableCursor   QueryFlags = 1 << 1
	QuerySlaveOK          QueryFlags = 1 << 2
	QueryNoCursorTimeout  QueryFlags = 1 << 4
	QueryAwaitData        QueryFlags = 1 << 5
	QueryExhaust          QueryFlags = 1 << 6
	QueryPartial          QueryFlags = 1 << 7
)

// Query is an OP_QUERY message.
type Query struct {
	MsgHeader          Header
	Flags              QueryFlags
	FullCollectionName string
	NumberToSkip       int32
	NumberToReturn     int32
	Query              *bson.Document
	ReturnFieldsSelector *bson.Document
}

// Header returns the message header, with OpCode and MessageLength left
// for the caller to finalize via AppendWireMessage.
func (q Query) Header() Header { return q.MsgHeader }

// AppendWireMessage appends q's wire bytes, including a freshly computed
// header, to dst.
func (q Query) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := q.MsgHeader
	h.OpCode = OpQuery
	dst = h.AppendHeader(dst)

	dst = appendInt32(dst, int32(q.Flags))
	dst = appendCString(dst, q.FullCollectionName)
	dst = appendInt32(dst, q.NumberToSkip)
	dst = appendInt32(dst, q.NumberToReturn)

	var err error
	dst, err = bson.MarshalAppend(dst, q.Query)
	if err != nil {
		return nil, err
	}
	if q.ReturnFieldsSelector != nil {
		dst, err = bson.MarshalAppend(dst, q.ReturnFieldsSelector)
		if err != nil {
			return nil, err
		}
	}

	putLength(dst, start)
	return dst, nil
}

// UnmarshalWireMessage decodes an OP_QUERY body (including the header)
// from b into q.
func (q *Query) UnmarshalWireMessage(b []byte) error {
	h, err := ReadHeader(b)
	if err != nil {
		return err
	}
	if h.OpCode != OpQuery {
		return fmt.Errorf("wiremessage: expected OP_QUERY, got %s", h.OpCode)
	}
	q.MsgHeader = h
	pos := headerLen
	q.Flags = QueryFlags(readInt32(b, pos))
	pos += 4
	name, n, err := readCString(b, pos)
	if err != nil {
		return err
	}
	q.FullCollectionName = name
	pos = n
	q.NumberToSkip = readInt32(b, pos)
	pos += 4
	q.NumberToReturn = readInt32(b, pos)
	pos += 4

	query, consumed, err := bson.UnmarshalOne(b[pos:])
	if err != nil {
		return err
	}
	q.Query = query
	pos += consumed

	if pos < int(h.MessageLength) {
		selector, _, err := bson.UnmarshalOne(b[pos:h.MessageLength])
		if err != nil {
			return err
		}
		q.ReturnFieldsSelector = selector
	}
	return nil
}

func putLength(dst []byte, start int) {
	length := int32(len(dst) - start)
	dst[start], dst[start+1], dst[start+2], dst[start+3] =
		byte(length), byte(length>>8), byte(length>>16), byte(length>>24)
}
