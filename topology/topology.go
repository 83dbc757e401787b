// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"fmt"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// Topology is the routing contract exposed by all three deployment
// variants (spec §4.6): resolve a read preference to a server, forward
// through that server's Session, and recover per the variant's own
// rules when a candidate turns out to be unreachable.
type Topology interface {
	Kind() description.TopologyKind
	Cluster() *Cluster
	Send(ctx context.Context, wm wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error
	SendPair(ctx context.Context, wm1, wm2 wiremessage.WireMessage, sink connection.Sink, rp *readpref.ReadPref) error
	Close() error
}

var (
	_ Topology = (*StandaloneTopology)(nil)
	_ Topology = (*ReplicaSetTopology)(nil)
	_ Topology = (*ShardedTopology)(nil)
)

// Bootstrap probes the seed list one at a time until one answers, reads
// the deployment shape off that first reply, and constructs the matching
// Topology variant. Variant selection happens exactly once, at
// bootstrap, per spec §4.6 — a standalone that later joins a replica set
// is out of scope, matching the reference driver's own bootstrap model.
//
// expectedReplicaSetName, when non-empty, is the connection string's
// replicaSet option: the bootstrap reply must name a replica set with
// exactly this setName, or Bootstrap fails rather than silently
// connecting to whatever deployment answered first.
func Bootstrap(ctx context.Context, seeds []address.Address, expectedReplicaSetName string, opts ...connection.Option) (Topology, error) {
	if len(seeds) == 0 {
		return nil, errs.New(errs.NoSuitableServer, "no seed addresses given")
	}

	probeCluster := NewCluster(description.KindUnknown)
	var lastErr error
	for _, seed := range seeds {
		desc, err := ProbeOnce(ctx, probeCluster, seed, opts...)
		if err != nil {
			lastErr = err
			continue
		}

		kind := bootstrapVariantKind(desc)
		if expectedReplicaSetName != "" && (kind != description.KindReplicaSet || desc.SetName != expectedReplicaSetName) {
			return nil, errs.New(errs.ReplyValidation, fmt.Sprintf(
				"replicaSet=%q was configured but bootstrap seed %s reported set name %q", expectedReplicaSetName, seed, desc.SetName))
		}

		switch kind {
		case description.KindSharded:
			return NewSharded(ctx, seeds, opts...)
		case description.KindReplicaSet:
			return NewReplicaSet(ctx, replicaSetMembers(seed, desc), expectedReplicaSetName, opts...)
		default:
			return NewStandalone(ctx, seed, opts...)
		}
	}
	return nil, errs.Wrap(errs.NoSuitableServer, "no seed address answered the bootstrap probe", lastErr)
}

// bootstrapVariantKind reads the deployment shape off a single isMaster
// reply: a mongos reply wins outright, a named replica set wins next,
// and anything else is treated as a standalone.
func bootstrapVariantKind(desc description.Server) description.TopologyKind {
	switch {
	case desc.Role == description.RoleMongos:
		return description.KindSharded
	case desc.SetName != "":
		return description.KindReplicaSet
	default:
		return description.KindStandalone
	}
}

// replicaSetMembers returns the addresses to seed a ReplicaSetTopology
// with: the hosts the bootstrap reply names, or just the seed itself if
// the reply carried none (a secondary queried before it learned the
// set's full membership).
func replicaSetMembers(seed address.Address, desc description.Server) []address.Address {
	if len(desc.Hosts) == 0 {
		return []address.Address{seed}
	}
	members := make([]address.Address, 0, len(desc.Hosts))
	for _, h := range desc.Hosts {
		members = append(members, address.Canonicalize(h))
	}
	return members
}
