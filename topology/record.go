// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package topology is the C4/C5/C7/C8 cluster model and dispatcher
// layer: a concurrent set of server records, the pinger that keeps them
// current, and the standalone/replica-set/sharded variants that route
// requests to the right server.
package topology

import (
	"sync/atomic"
	"time"

	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
)

// rttAlpha is the EWMA smoothing weight given to a new RTT sample,
// matching the reference driver's moving-average constant.
const rttAlpha = 0.2

// ServerRecord holds the latest description.Server snapshot for one
// address. A new snapshot replaces the old one wholesale; nothing here
// mutates a description.Server in place, per spec §3's value-type
// framing of a server record.
type ServerRecord struct {
	addr address.Address
	desc atomic.Value // description.Server
}

func newServerRecord(addr address.Address) *ServerRecord {
	r := &ServerRecord{addr: addr}
	r.desc.Store(description.Server{Addr: addr, Role: description.RoleUnknown})
	return r
}

// Snapshot returns the record's current description.
func (r *ServerRecord) Snapshot() description.Server {
	return r.desc.Load().(description.Server)
}

// update replaces the stored snapshot, folding the new RTT sample into
// an exponentially weighted moving average against the previous value
// when both samples are set.
func (r *ServerRecord) update(next description.Server) description.Server {
	prev := r.Snapshot()
	if prev.AverageRTTSet && next.AverageRTTSet {
		next.AverageRTT = time.Duration(rttAlpha*float64(next.AverageRTT) + (1-rttAlpha)*float64(prev.AverageRTT))
	}
	r.desc.Store(next)
	return next
}

// markUnknown records a failed probe: UNKNOWN role, no RTT, the causing
// error retained for diagnostics.
func (r *ServerRecord) markUnknown(err error) description.Server {
	return r.update(description.Server{
		Addr:           r.addr,
		Role:           description.RoleUnknown,
		LastError:      err,
		LastUpdateTime: time.Now(),
	})
}
