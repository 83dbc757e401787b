// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"fmt"

	"github.com/igreenfield/mongodb-async-driver/internal/errs"
)

// Error decorates an *errs.Error with the id of the connection or
// session that produced it.
type Error struct {
	ConnectionID string
	*errs.Error
}

func (e Error) Error() string {
	return fmt.Sprintf("connection(%s): %s", e.ConnectionID, e.Error.Error())
}

// Unwrap exposes the wrapped *errs.Error so errors.As/errs.Is can see
// through the connection-id decoration to the underlying Kind.
func (e Error) Unwrap() error { return e.Error }

func wrapErr(connID string, kind errs.Kind, message string, cause error) error {
	return Error{ConnectionID: connID, Error: errs.Wrap(kind, message, cause)}
}

func newErr(connID string, kind errs.Kind, message string) error {
	return Error{ConnectionID: connID, Error: errs.New(kind, message)}
}
