// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wiremessage implements the bit-exact 16-byte header and
// opcode-specific bodies of the wire protocol (spec §4.2, §6).
package wiremessage

import (
	"context"
	"encoding/binary"
	"fmt"
)

// OpCode identifies the shape of a message body.
type OpCode int32

// The opcodes this driver emits or consumes, bit-exact per spec §6.
const (
	OpReply       OpCode = 1
	OpUpdate      OpCode = 2001
	OpInsert      OpCode = 2002
	OpQuery       OpCode = 2004
	OpGetMore     OpCode = 2005
	OpDelete      OpCode = 2006
	OpKillCursors OpCode = 2007
	OpCompressed  OpCode = 2012
)

func (c OpCode) String() string {
	switch c {
	case OpReply:
		return "OP_REPLY"
	case OpUpdate:
		return "OP_UPDATE"
	case OpInsert:
		return "OP_INSERT"
	case OpQuery:
		return "OP_QUERY"
	case OpGetMore:
		return "OP_GET_MORE"
	case OpDelete:
		return "OP_DELETE"
	case OpKillCursors:
		return "OP_KILL_CURSORS"
	case OpCompressed:
		return "OP_COMPRESSED"
	default:
		return fmt.Sprintf("OpCode(%d)", int32(c))
	}
}

// Header is the 16-byte envelope in front of every wire message.
type Header struct {
	MessageLength int32
	RequestID     int32
	ResponseTo    int32
	OpCode        OpCode
}

const headerLen = 16

// AppendHeader appends h's wire representation to dst.
func (h Header) AppendHeader(dst []byte) []byte {
	dst = appendInt32(dst, h.MessageLength)
	dst = appendInt32(dst, h.RequestID)
	dst = appendInt32(dst, h.ResponseTo)
	return appendInt32(dst, int32(h.OpCode))
}

// ReadHeader parses a Header from the front of b.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < headerLen {
		return Header{}, fmt.Errorf("wiremessage: buffer too short for header: %d bytes", len(b))
	}
	return Header{
		MessageLength: readInt32(b, 0),
		RequestID:     readInt32(b, 4),
		ResponseTo:    readInt32(b, 8),
		OpCode:        OpCode(readInt32(b, 12)),
	}, nil
}

// WireMessage is any opcode-specific message body that knows how to frame
// itself with a header.
type WireMessage interface {
	Header() Header
	AppendWireMessage(dst []byte) ([]byte, error)
}

// ReadWriter is the minimal duplex byte-stream-of-messages abstraction the
// core demands from an underlying transport; it deliberately says nothing
// about TLS, pooling, or retries.
type ReadWriter interface {
	WriteWireMessage(ctx context.Context, wm WireMessage) error
	ReadWireMessage(ctx context.Context) (WireMessage, error)
}

func appendInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func appendInt64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

func appendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0x00)
}

func readInt32(b []byte, pos int) int32 {
	return int32(binary.LittleEndian.Uint32(b[pos : pos+4]))
}

func readInt64(b []byte, pos int) int64 {
	return int64(binary.LittleEndian.Uint64(b[pos : pos+8]))
}

func readCString(b []byte, pos int) (string, int, error) {
	for i := pos; i < len(b); i++ {
		if b[i] == 0x00 {
			return string(b[pos:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("wiremessage: unterminated cstring")
}
