// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package description holds the immutable snapshots of server and
// topology state produced by the pinger (spec §3, §4.5): what a server
// reported about itself the last time it was asked.
package description

import (
	"time"

	"github.com/igreenfield/mongodb-async-driver/internal/address"
)

// Role is the closed set of roles a server can report.
type Role uint8

// Recognized roles.
const (
	RoleUnknown Role = iota
	RolePrimary
	RoleSecondary
	RoleMongos
	RoleStandalone
	RoleArbiter
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	case RoleMongos:
		return "mongos"
	case RoleStandalone:
		return "standalone"
	case RoleArbiter:
		return "arbiter"
	default:
		return "unknown"
	}
}

// Version is the server's reported build version, parsed into comparable
// parts.
type Version struct {
	Raw   string
	Major int
	Minor int
	Patch int
}

// Server is an immutable snapshot of one server's last-known state, as
// determined by the pinger. A new Server value replaces the old one
// wholesale on every successful or failed probe; nothing in this package
// mutates a Server in place, matching the value-type-record framing of
// spec §3.
type Server struct {
	Addr            address.Address
	Role            Role
	Tags            map[string]string
	AverageRTT      time.Duration
	AverageRTTSet   bool
	LastUpdateTime  time.Time
	LastError       error
	Version         Version
	MaxDocumentSize int64
	MaxMessageSize  int64
	MaxBatchCount   int64
	WireVersionMin  int32
	WireVersionMax  int32
	Compression     []string

	// SetName is the replica set name reported by this server, if any.
	SetName string
	// SetVersion is the replica-set config version reported by this
	// server. It is carried for completeness; the simplified cluster
	// model in this package does not consult it, and no election id is
	// tracked.
	SetVersion int64
	// Hosts/Passives are the members this server knows about, used to
	// auto-discover the rest of a replica set.
	Hosts    []string
	Passives []string
	Arbiters []string
	Me       string

	// IsWritablePrimary mirrors the field name newer servers use in
	// place of "ismaster"; the pinger accepts either.
	IsWritablePrimary bool
}

// Writable reports whether this server currently accepts writes.
func (s Server) Writable() bool {
	switch s.Role {
	case RolePrimary, RoleStandalone, RoleMongos:
		return true
	default:
		return false
	}
}

// MatchesTags reports whether s satisfies a single tag-predicate map: all
// key/value pairs in want must be present and equal in s.Tags. An empty
// want map matches any server.
func (s Server) MatchesTags(want map[string]string) bool {
	for k, v := range want {
		if s.Tags[k] != v {
			return false
		}
	}
	return true
}

// TopologyKind is the closed set of deployment shapes a Topology can be.
type TopologyKind uint8

// Recognized topology kinds.
const (
	KindUnknown TopologyKind = iota
	KindStandalone
	KindReplicaSet
	KindSharded
)

func (k TopologyKind) String() string {
	switch k {
	case KindStandalone:
		return "standalone"
	case KindReplicaSet:
		return "replica set"
	case KindSharded:
		return "sharded"
	default:
		return "unknown"
	}
}

// SelectedServer pairs a Server snapshot with the topology kind it was
// selected from, since encoding rules (e.g. batch size limits) can vary
// by deployment shape.
type SelectedServer struct {
	Server
	Kind TopologyKind
}
