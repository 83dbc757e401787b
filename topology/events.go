// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import "github.com/igreenfield/mongodb-async-driver/description"

// EventKind is the closed set of observable changes a Topology
// publishes, replacing a generic property-change listener with the two
// concrete shapes callers actually need.
type EventKind int

// Recognized event kinds.
const (
	// ServerMembershipChanged fires when a server is added to or
	// removed from the tracked set, carrying whichever of Added/Removed
	// applies.
	ServerMembershipChanged EventKind = iota
	// SessionOpenStateChanged fires when a dispatcher's session to a
	// server transitions between open and closed.
	SessionOpenStateChanged
)

// Event is one notification published on a Cluster's event channel.
type Event struct {
	Kind    EventKind
	Added   []description.Server
	Removed []description.Server

	// Address and Open are populated for SessionOpenStateChanged.
	Address string
	Open    bool
}
