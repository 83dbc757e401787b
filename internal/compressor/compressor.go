// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package compressor implements the OP_COMPRESSED negotiation named in
// spec §4.2/§6: each connection picks the first compressor, in the
// client's preference order, that the server's handshake reply also
// advertises.
package compressor

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// Compressor compresses and decompresses the body of a wire message.
type Compressor interface {
	Name() string
	ID() wiremessage.CompressorID
	CompressBytes(src, dst []byte) ([]byte, error)
	UncompressBytes(src, dst []byte) ([]byte, error)
}

// Negotiate picks the first entry in preferred that also appears in
// serverSupported, returning nil if none match (the connection then
// simply does not compress).
func Negotiate(preferred []Compressor, serverSupported []string) Compressor {
	supported := make(map[string]struct{}, len(serverSupported))
	for _, s := range serverSupported {
		supported[s] = struct{}{}
	}
	for _, c := range preferred {
		if _, ok := supported[c.Name()]; ok {
			return c
		}
	}
	return nil
}

// Snappy wraps github.com/golang/snappy.
type snappyCompressor struct{}

// NewSnappy constructs the snappy Compressor.
func NewSnappy() Compressor { return snappyCompressor{} }

func (snappyCompressor) Name() string                   { return "snappy" }
func (snappyCompressor) ID() wiremessage.CompressorID   { return wiremessage.CompressorSnappy }
func (snappyCompressor) CompressBytes(src, dst []byte) ([]byte, error) {
	return snappy.Encode(dst[:0], src), nil
}
func (snappyCompressor) UncompressBytes(src, dst []byte) ([]byte, error) {
	out, err := snappy.Decode(dst[:0], src)
	if err != nil {
		return nil, fmt.Errorf("compressor: snappy decode: %w", err)
	}
	return out, nil
}

// Zlib wraps the standard library zlib codec at a configured level, kept
// alongside the klauspost/compress zstd path below as the second
// negotiable compressor in the teacher's compressor map.
type zlibCompressor struct{ level int }

// NewZlib constructs a zlib Compressor at the given compression level.
func NewZlib(level int) Compressor { return zlibCompressor{level: level} }

func (zlibCompressor) Name() string                 { return "zlib" }
func (zlibCompressor) ID() wiremessage.CompressorID { return wiremessage.CompressorZlib }

func (z zlibCompressor) CompressBytes(src, dst []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	w, err := zlib.NewWriterLevel(buf, z.level)
	if err != nil {
		return nil, fmt.Errorf("compressor: zlib writer: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("compressor: zlib write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressor: zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) UncompressBytes(src, dst []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("compressor: zlib reader: %w", err)
	}
	defer r.Close()
	buf := bytes.NewBuffer(dst[:0])
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("compressor: zlib read: %w", err)
	}
	return buf.Bytes(), nil
}

// Zstd wraps github.com/klauspost/compress/zstd, the teacher's
// higher-ratio compressor option.
type zstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd constructs a zstd Compressor, reusing one encoder/decoder pair
// across calls as the klauspost API recommends.
func NewZstd() (Compressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("compressor: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("compressor: zstd decoder: %w", err)
	}
	return &zstdCompressor{enc: enc, dec: dec}, nil
}

func (*zstdCompressor) Name() string                 { return "zstd" }
func (*zstdCompressor) ID() wiremessage.CompressorID { return wiremessage.CompressorZstd }

func (z *zstdCompressor) CompressBytes(src, dst []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z *zstdCompressor) UncompressBytes(src, dst []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("compressor: zstd decode: %w", err)
	}
	return out, nil
}
