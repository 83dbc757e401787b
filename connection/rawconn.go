// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connection is the C3 socket session layer: RawConn owns one
// TCP byte stream and speaks exactly one wire message at a time; Session
// wraps a RawConn with the pending-table/sender/receiver multiplexer
// described in spec §4.3.
package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/compressor"
	"github.com/igreenfield/mongodb-async-driver/internal/csot"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/logger"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

func logConnection(ctx context.Context, level logger.Level, msg string, kvs ...interface{}) {
	l := logger.FromContext(ctx)
	if l == nil {
		return
	}
	l.Print(level, &logger.Message{Comp: logger.ComponentConnection, Msg: msg, KVs: kvs})
}

// configureTLS wraps nc in a TLS client connection, racing the
// handshake against ctx so a stalled peer cannot hang the dial
// indefinitely.
func configureTLS(ctx context.Context, nc net.Conn, addr address.Address, tlsCfg *TLSConfig) (net.Conn, error) {
	cfg := tlsCfg.Config.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = addr.Host()
		if colon := strings.LastIndex(cfg.ServerName, ":"); colon != -1 {
			cfg.ServerName = cfg.ServerName[:colon]
		}
	}

	client := tls.Client(nc, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- client.Handshake() }()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, fmt.Errorf("connection: TLS handshake with %s: %w", addr, err)
		}
	case <-ctx.Done():
		return nil, errors.New("connection: TLS handshake cancelled or timed out")
	}
	return client, nil
}

var globalConnID uint64

func nextConnID() uint64 { return atomic.AddUint64(&globalConnID, 1) }

// RawConn reads and writes one wire message at a time over a single
// network connection. It performs no correlation or pipelining of its
// own — that is Session's job.
type RawConn interface {
	wiremessage.ReadWriter
	Close() error
	Alive() bool
	Expired() bool
	ID() string
}

type rawConn struct {
	id   string
	addr address.Address
	conn net.Conn
	dead int32 // atomic bool

	idleTimeout      time.Duration
	idleDeadline     time.Time
	lifetimeDeadline time.Time
	readTimeout      time.Duration
	writeTimeout     time.Duration

	outboundCompressor compressor.Compressor
	compressorsByID    map[wiremessage.CompressorID]compressor.Compressor

	readBuf  []byte
	writeBuf []byte
}

// New dials addr, optionally wraps the connection in TLS, and runs the
// configured Handshaker. The returned *description.Server is nil if no
// Handshaker was supplied.
func New(ctx context.Context, addr address.Address, opts ...Option) (RawConn, *description.Server, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	var cancel context.CancelFunc
	ctx, cancel = csot.WithConnectTimeout(ctx, cfg.connectTimeout)
	defer cancel()

	nc, err := cfg.dialer.DialContext(ctx, addr.Network(), addr.String())
	if err != nil {
		logConnection(ctx, logger.LevelDebug, "connection dial failed", "address", string(addr), "error", err.Error())
		return nil, nil, fmt.Errorf("connection: dial %s: %w", addr, err)
	}

	if cfg.tlsConfig != nil {
		nc, err = configureTLS(ctx, nc, addr, cfg.tlsConfig)
		if err != nil {
			return nil, nil, err
		}
	}

	var lifetimeDeadline time.Time
	if cfg.lifeTimeout > 0 {
		lifetimeDeadline = time.Now().Add(cfg.lifeTimeout)
	}

	compressorsByID := make(map[wiremessage.CompressorID]compressor.Compressor, len(cfg.compressors))
	for _, c := range cfg.compressors {
		compressorsByID[c.ID()] = c
	}

	c := &rawConn{
		id:               fmt.Sprintf("%s[%d]", addr, nextConnID()),
		addr:             addr,
		conn:             nc,
		idleTimeout:      cfg.idleTimeout,
		lifetimeDeadline: lifetimeDeadline,
		readTimeout:      cfg.readTimeout,
		writeTimeout:     cfg.writeTimeout,
		compressorsByID:  compressorsByID,
		readBuf:          make([]byte, 256),
		writeBuf:         make([]byte, 0, 256),
	}
	c.bumpIdleDeadline()

	var desc *description.Server
	var negotiated compressor.Compressor
	if cfg.handshaker != nil {
		d, err := cfg.handshaker.Handshake(ctx, addr, c)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		desc = &d

		if len(d.Compression) > 0 {
		pick:
			for _, comp := range cfg.compressors {
				for _, serverName := range d.Compression {
					if comp.Name() == serverName {
						negotiated = comp
						break pick
					}
				}
			}
		}
	}

	if cfg.credential != nil {
		if err := authenticate(ctx, c, cfg.credential); err != nil {
			nc.Close()
			return nil, nil, err
		}
	}
	// Compression starts only after the handshake and authentication
	// commands have gone out uncompressed.
	c.outboundCompressor = negotiated

	logConnection(ctx, logger.LevelDebug, "connection established", "address", string(addr), "id", c.id)
	return c, desc, nil
}

func (c *rawConn) bumpIdleDeadline() {
	if c.idleTimeout > 0 {
		c.idleDeadline = time.Now().Add(c.idleTimeout)
	}
}

func (c *rawConn) Alive() bool { return atomic.LoadInt32(&c.dead) == 0 }

func (c *rawConn) Expired() bool {
	now := time.Now()
	if !c.idleDeadline.IsZero() && now.After(c.idleDeadline) {
		return true
	}
	if !c.lifetimeDeadline.IsZero() && now.After(c.lifetimeDeadline) {
		return true
	}
	return !c.Alive()
}

func (c *rawConn) ID() string { return c.id }

func (c *rawConn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.dead, 0, 1) {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return wrapErr(c.id, errs.ConnectionLost, "failed to close network connection", err)
	}
	return nil
}

func (c *rawConn) WriteWireMessage(ctx context.Context, wm wiremessage.WireMessage) error {
	if !c.Alive() {
		return newErr(c.id, errs.ConnectionNotAvailable, "connection is dead")
	}

	deadline := time.Time{}
	if c.writeTimeout != 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return wrapErr(c.id, errs.ConnectionLost, "failed to set write deadline", err)
	}

	toWrite := wm
	if c.outboundCompressor != nil {
		compressed, err := c.compress(wm)
		if err != nil {
			return wrapErr(c.id, errs.Framing, "failed to compress wire message", err)
		}
		toWrite = compressed
	}

	c.writeBuf = c.writeBuf[:0]
	var err error
	c.writeBuf, err = toWrite.AppendWireMessage(c.writeBuf)
	if err != nil {
		return wrapErr(c.id, errs.Framing, "failed to encode wire message", err)
	}

	if _, err := c.conn.Write(c.writeBuf); err != nil {
		c.Close()
		return wrapErr(c.id, errs.ConnectionLost, "failed to write to network connection", err)
	}

	c.bumpIdleDeadline()
	return nil
}

func (c *rawConn) compress(wm wiremessage.WireMessage) (wiremessage.Compressed, error) {
	h := wm.Header()

	buf, err := wm.AppendWireMessage(nil)
	if err != nil {
		return wiremessage.Compressed{}, err
	}
	body := buf[16:]

	compressed, err := c.outboundCompressor.CompressBytes(body, nil)
	if err != nil {
		return wiremessage.Compressed{}, err
	}

	return wiremessage.Compressed{
		MsgHeader:         wiremessage.Header{RequestID: h.RequestID, ResponseTo: h.ResponseTo},
		OriginalOpCode:    h.OpCode,
		UncompressedSize:  int32(len(body)),
		CompressorID:      c.outboundCompressor.ID(),
		CompressedMessage: compressed,
	}, nil
}

func (c *rawConn) ReadWireMessage(ctx context.Context) (wiremessage.WireMessage, error) {
	if !c.Alive() {
		return nil, newErr(c.id, errs.ConnectionNotAvailable, "connection is dead")
	}

	deadline := time.Time{}
	if c.readTimeout != 0 {
		deadline = time.Now().Add(c.readTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, wrapErr(c.id, errs.ConnectionLost, "failed to set read deadline", err)
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		c.Close()
		return nil, wrapErr(c.id, errs.ConnectionLost, "failed to read message length", err)
	}
	size := int32(sizeBuf[0]) | int32(sizeBuf[1])<<8 | int32(sizeBuf[2])<<16 | int32(sizeBuf[3])<<24
	if size < 16 {
		c.Close()
		return nil, newErr(c.id, errs.Framing, "message length smaller than header")
	}

	if cap(c.readBuf) < int(size) {
		c.readBuf = make([]byte, size)
	} else {
		c.readBuf = c.readBuf[:size]
	}
	copy(c.readBuf, sizeBuf[:])

	if _, err := io.ReadFull(c.conn, c.readBuf[4:]); err != nil {
		c.Close()
		return nil, wrapErr(c.id, errs.ConnectionLost, "failed to read full message", err)
	}

	hdr, err := wiremessage.ReadHeader(c.readBuf)
	if err != nil {
		c.Close()
		return nil, wrapErr(c.id, errs.Framing, "failed to decode header", err)
	}

	body := c.readBuf
	opcode := hdr.OpCode

	if opcode == wiremessage.OpCompressed {
		var compressed wiremessage.Compressed
		if err := compressed.UnmarshalWireMessage(c.readBuf); err != nil {
			c.Close()
			return nil, wrapErr(c.id, errs.Framing, "failed to decode OP_COMPRESSED", err)
		}
		uncompressed, origOpcode, err := c.uncompress(compressed)
		if err != nil {
			c.Close()
			return nil, wrapErr(c.id, errs.Framing, "failed to uncompress message", err)
		}
		body = uncompressed
		opcode = origOpcode
	}

	var wm wiremessage.WireMessage
	switch opcode {
	case wiremessage.OpReply:
		var r wiremessage.Reply
		if err := r.UnmarshalWireMessage(body); err != nil {
			c.Close()
			return nil, wrapErr(c.id, errs.Framing, "failed to decode OP_REPLY", err)
		}
		wm = r
	default:
		c.Close()
		return nil, newErr(c.id, errs.Framing, fmt.Sprintf("opcode %s not implemented for inbound messages", hdr.OpCode))
	}

	c.bumpIdleDeadline()
	return wm, nil
}

func (c *rawConn) uncompress(compressed wiremessage.Compressed) ([]byte, wiremessage.OpCode, error) {
	dec, ok := c.compressorsByID[compressed.CompressorID]
	if !ok {
		return nil, 0, fmt.Errorf("connection: no compressor registered for id %d", compressed.CompressorID)
	}

	uncompressed, err := dec.UncompressBytes(compressed.CompressedMessage, nil)
	if err != nil {
		return nil, 0, err
	}

	switch compressed.OriginalOpCode {
	case wiremessage.OpReply:
		header := wiremessage.Header{
			MessageLength: int32(len(uncompressed)) + 16,
			RequestID:     compressed.MsgHeader.RequestID,
			ResponseTo:    compressed.MsgHeader.ResponseTo,
			OpCode:        wiremessage.OpReply,
		}
		full := header.AppendHeader(make([]byte, 0, len(uncompressed)+16))
		full = append(full, uncompressed...)
		return full, header.OpCode, nil
	default:
		return nil, 0, fmt.Errorf("connection: opcode %s not implemented for OP_COMPRESSED payloads", compressed.OriginalOpCode)
	}
}
