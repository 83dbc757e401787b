// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package cursor implements the lazy, server-affine iterator over a
// QUERY/GET_MORE result stream.
package cursor

import (
	"github.com/igreenfield/mongodb-async-driver/driver"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
)

// SavedState is a cursor's portable identity: everything a caller needs
// to persist in order to resume iteration later, and nothing else.
// Identity survives a restart only as long as the named server still
// holds the cursor alive.
type SavedState struct {
	Server         address.Address
	Namespace      driver.Namespace
	CursorID       int64
	BatchSize      int32
	RemainingLimit int32
	Exhausted      bool
}
