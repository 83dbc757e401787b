// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package readpref implements the closed read-preference enumeration and
// candidate-filtering rule of spec §4.4.
package readpref

import "github.com/igreenfield/mongodb-async-driver/description"

// Mode is the closed set of read-preference policies.
type Mode uint8

// Recognized modes.
const (
	PrimaryMode Mode = iota
	PrimaryPreferredMode
	SecondaryMode
	SecondaryPreferredMode
	NearestMode
	ServerMode // hard-pinned to a single address
)

func (m Mode) String() string {
	switch m {
	case PrimaryMode:
		return "primary"
	case PrimaryPreferredMode:
		return "primaryPreferred"
	case SecondaryMode:
		return "secondary"
	case SecondaryPreferredMode:
		return "secondaryPreferred"
	case NearestMode:
		return "nearest"
	case ServerMode:
		return "server"
	default:
		return "unknown"
	}
}

// TagSet is one key→value predicate map; a server matches a TagSet if it
// carries every key/value pair the set names.
type TagSet map[string]string

// ReadPref describes a full read-preference: a mode, an ordered list of
// tag-set alternatives (the server must match at least one, "ANY"
// semantics per spec §4.4), and, for ServerMode, the pinned address.
type ReadPref struct {
	Mode          Mode
	TagSets       []TagSet
	PinnedAddress string
}

// Primary returns the PRIMARY read preference.
func Primary() *ReadPref { return &ReadPref{Mode: PrimaryMode} }

// PrimaryPreferred returns the PRIMARY_PREFERRED read preference with the
// given tag-set alternatives.
func PrimaryPreferred(tagSets ...TagSet) *ReadPref {
	return &ReadPref{Mode: PrimaryPreferredMode, TagSets: tagSets}
}

// Secondary returns the SECONDARY read preference with the given tag-set
// alternatives.
func Secondary(tagSets ...TagSet) *ReadPref {
	return &ReadPref{Mode: SecondaryMode, TagSets: tagSets}
}

// SecondaryPreferred returns the SECONDARY_PREFERRED read preference.
func SecondaryPreferred(tagSets ...TagSet) *ReadPref {
	return &ReadPref{Mode: SecondaryPreferredMode, TagSets: tagSets}
}

// Nearest returns the NEAREST read preference.
func Nearest(tagSets ...TagSet) *ReadPref {
	return &ReadPref{Mode: NearestMode, TagSets: tagSets}
}

// PinnedServer returns the SERVER (hard-pinned) read preference.
func PinnedServer(addr string) *ReadPref {
	return &ReadPref{Mode: ServerMode, PinnedAddress: addr}
}

// matchesTagSets reports whether srv matches any one of the tag-set
// alternatives ("ANY predicate matching accepts the server", spec §4.4).
// No tag sets at all means every server matches.
func (rp *ReadPref) matchesTagSets(srv description.Server) bool {
	if len(rp.TagSets) == 0 {
		return true
	}
	for _, ts := range rp.TagSets {
		if srv.MatchesTags(ts) {
			return true
		}
	}
	return false
}

// Acceptable reports whether srv's role and tags satisfy rp, for the
// given topology kind. Mongos and standalone servers satisfy every read
// preference (there being no secondaries to route reads away from),
// consistent with the reference driver's own preference-acceptability
// rules.
func (rp *ReadPref) Acceptable(kind description.TopologyKind, srv description.Server) bool {
	if kind == description.KindSharded || kind == description.KindStandalone {
		return true
	}
	switch rp.Mode {
	case PrimaryMode:
		return srv.Role == description.RolePrimary
	case PrimaryPreferredMode:
		return srv.Role == description.RolePrimary || (srv.Role == description.RoleSecondary && rp.matchesTagSets(srv))
	case SecondaryMode:
		return srv.Role == description.RoleSecondary && rp.matchesTagSets(srv)
	case SecondaryPreferredMode:
		if srv.Role == description.RoleSecondary {
			return rp.matchesTagSets(srv)
		}
		return srv.Role == description.RolePrimary
	case NearestMode:
		return (srv.Role == description.RolePrimary || srv.Role == description.RoleSecondary) && rp.matchesTagSets(srv)
	case ServerMode:
		return string(srv.Addr) == rp.PinnedAddress
	default:
		return false
	}
}
