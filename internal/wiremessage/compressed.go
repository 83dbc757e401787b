// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wiremessage

import "fmt"

// CompressorID identifies a negotiated wire compressor.
type CompressorID byte

// Recognized compressor ids, matching the server's own enumeration.
const (
	CompressorNoop   CompressorID = 0
	CompressorSnappy CompressorID = 1
	CompressorZlib   CompressorID = 2
	CompressorZstd   CompressorID = 3
)

// Compressed wraps an opcode-specific body whose bytes are compressed
// on the wire. The original opcode and uncompressed size are carried so
// the receiver can reconstruct and redispatch.
type Compressed struct {
	MsgHeader         Header
	OriginalOpCode    OpCode
	UncompressedSize  int32
	CompressorID      CompressorID
	CompressedMessage []byte
}

func (c Compressed) Header() Header { return c.MsgHeader }

func (c Compressed) AppendWireMessage(dst []byte) ([]byte, error) {
	start := len(dst)
	h := c.MsgHeader
	h.OpCode = OpCompressed
	dst = h.AppendHeader(dst)
	dst = appendInt32(dst, int32(c.OriginalOpCode))
	dst = appendInt32(dst, c.UncompressedSize)
	dst = append(dst, byte(c.CompressorID))
	dst = append(dst, c.CompressedMessage...)
	putLength(dst, start)
	return dst, nil
}

// UnmarshalWireMessage decodes an OP_COMPRESSED body (including the
// header) from b into c.
func (c *Compressed) UnmarshalWireMessage(b []byte) error {
	h, err := ReadHeader(b)
	if err != nil {
		return err
	}
	if h.OpCode != OpCompressed {
		return fmt.Errorf("wiremessage: expected OP_COMPRESSED, got %s", h.OpCode)
	}
	c.MsgHeader = h
	pos := headerLen
	c.OriginalOpCode = OpCode(readInt32(b, pos))
	pos += 4
	c.UncompressedSize = readInt32(b, pos)
	pos += 4
	c.CompressorID = CompressorID(b[pos])
	pos++
	c.CompressedMessage = append([]byte(nil), b[pos:h.MessageLength]...)
	return nil
}
