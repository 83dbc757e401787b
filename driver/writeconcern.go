// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

// Durability is the acknowledgement level a write is performed with.
type Durability int

// The durability levels this core understands. Anything beyond
// Majority (custom tag-set write concerns) is out of scope.
const (
	Unacknowledged Durability = iota
	Acknowledged
	Majority
)

// WriteConcern pairs a Durability with an optional replication timeout,
// consulted when building the getLastError command that follows an
// acknowledged legacy write.
type WriteConcern struct {
	Durability Durability
	WTimeoutMS int32
}

// AckWrite reports whether wc requires waiting for a server response at
// all. A nil WriteConcern is acknowledged by default, matching the wire
// protocol's own default absent any write concern document.
func AckWrite(wc *WriteConcern) bool {
	return wc == nil || wc.Durability != Unacknowledged
}
