// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import "github.com/igreenfield/mongodb-async-driver/bson"

// UpdateFlags is the flags bitset carried on an OP_UPDATE body.
type UpdateFlags int32

// Recognized OP_UPDATE flags.
const (
	UpdateUpsert UpdateFlags = 1 << 0
	UpdateMulti  UpdateFlags = 1 << 1
)

// Update is an OP_UPDATE message. The server never replies to an
// OP_UPDATE; acknowledgement, if requested, travels over a separate
// getLastError-style command.
type Update struct {
	MsgHeader          Header
	FullCollectionName string
	Flags              UpdateFlags
	Selector           *bson.Document
	Update             *bson.Document
}

func (u Update) Header() Header { return u.MsgHeader }

func (u Update) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := u.MsgHeader
	h.OpCode = OpUpdate
	dst = h.AppendHeader(dst)
	dst = appendInt32(dst, 0) // reserved
	dst = appendCString(dst, u.FullCollectionName)
	dst = appendInt32(dst, int32(u.Flags))

	var err error
	dst, err = bson.MarshalAppend(dst, u.Selector)
	if err != nil {
		return nil, err
	}
	dst, err = bson.MarshalAppend(dst, u.Update)
	if err != nil {
		return nil, err
	}
	putLength(dst, start)
	return dst, nil
}

// DeleteFlags is the flags bitset carried on an OP_DELETE body.
type DeleteFlags int32

// Recognized OP_DELETE flags.
const (
	DeleteSingleRemove DeleteFlags = 1 << 0
)

// Delete is an OP_DELETE message.
type Delete struct {
	MsgHeader          Header
	FullCollectionName string
	Flags              DeleteFlags
	Selector           *bson.Document
}

func (d Delete) Header() Header { return d.MsgHeader }

func (d Delete) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := d.MsgHeader
	h.OpCode = OpDelete
	dst = h.AppendHeader(dst)
	dst = appendInt32(dst, 0)
	dst = appendCString(dst, d.FullCollectionName)
	dst = appendInt32(dst, int32(d.Flags))

	var err error
	dst, err = bson.MarshalAppend(dst, d.Selector)
	if err != nil {
		return nil, err
	}
	putLength(dst, start)
	return dst, nil
}

// Insert is an OP_INSERT message carrying one or more documents.
type Insert struct {
	MsgHeader          Header
	ContinueOnError    bool
	FullCollectionName string
	Documents          []*bson.Document
}

func (i Insert) Header() Header { return i.MsgHeader }

func (i Insert) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := i.MsgHeader
	h.OpCode = OpInsert
	dst = h.AppendHeader(dst)

	var flags int32
	if i.ContinueOnError {
		flags |= 1
	}
	dst = appendInt32(dst, flags)
	dst = appendCString(dst, i.FullCollectionName)

	var err error
	for _, doc := range i.Documents {
		dst, err = bson.MarshalAppend(dst, doc)
		if err != nil {
			return nil, err
		}
	}
	putLength(dst, start)
	return dst, nil
}

// GetMore is an OP_GET_MORE message. The opcode defines no flags, so the
// struct carries none.
type GetMore struct {
	MsgHeader          Header
	FullCollectionName string
	NumberToReturn     int32
	CursorID           int64
}

func (g GetMore) Header() Header { return g.MsgHeader }

func (g GetMore) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := g.MsgHeader
	h.OpCode = OpGetMore
	dst = h.AppendHeader(dst)
	dst = appendInt32(dst, 0)
	dst = appendCString(dst, g.FullCollectionName)
	dst = appendInt32(dst, g.NumberToReturn)
	dst = appendInt64(dst, g.CursorID)
	putLength(dst, start)
	return dst, nil
}

// KillCursors is an OP_KILL_CURSORS message. It never receives a reply.
type KillCursors struct {
	MsgHeader Header
	CursorIDs []int64
}

func (k KillCursors) Header() Header { return k.MsgHeader }

func (k KillCursors) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := k.MsgHeader
	h.OpCode = OpKillCursors
	dst = h.AppendHeader(dst)
	dst = appendInt32(dst, 0)
	dst = appendInt32(dst, int32(len(k.CursorIDs)))
	for _, id := range k.CursorIDs {
		dst = appendInt64(dst, id)
	}
	putLength(dst, start)
	return dst, nil
}
