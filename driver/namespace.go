// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver is the C9 command/dispatch layer: command builders that
// produce legacy-opcode wire messages, the layered completion sinks that
// turn a raw OP_REPLY into a decoded result or a typed error, and the
// dispatcher that ties a command to a topology and a read preference,
// retrying once on a retryable failure.
package driver

// Namespace identifies one collection within a database.
type Namespace struct {
	DB         string
	Collection string
}

// FullName returns the "db.collection" form the wire protocol expects.
func (ns Namespace) FullName() string { return ns.DB + "." + ns.Collection }
