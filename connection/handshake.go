// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"

	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// Handshaker runs once, synchronously, right after a RawConn's byte
// stream (and optional TLS) is established. It is the one place a
// topology variant gets to turn the first reply off the wire into a
// description.Server, which is why RawConn.New returns it alongside the
// connection: the caller needs it to decide compressor negotiation and,
// at bootstrap, which topology variant applies.
type Handshaker interface {
	Handshake(ctx context.Context, addr address.Address, rw wiremessage.ReadWriter) (description.Server, error)
}

// HandshakerFunc adapts an ordinary function to a Handshaker.
type HandshakerFunc func(context.Context, address.Address, wiremessage.ReadWriter) (description.Server, error)

// Handshake implements Handshaker.
func (hf HandshakerFunc) Handshake(ctx context.Context, addr address.Address, rw wiremessage.ReadWriter) (description.Server, error) {
	return hf(ctx, addr, rw)
}
