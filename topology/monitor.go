// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"context"
	"time"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// defaultHeartbeatInterval is the pinger's steady-state sweep period,
// matching the reference driver's default heartbeatFrequencyMS.
const defaultHeartbeatInterval = 10 * time.Second

// minHeartbeatInterval bounds how often an explicit RequestImmediateCheck
// can re-trigger a probe, preventing a thundering herd of selection
// retries from saturating a down server with isMaster calls.
const minHeartbeatInterval = 500 * time.Millisecond

func isMasterCommand() *bson.Document {
	return bson.NewDocument(
		bson.EC.Int32("isMaster", 1),
		bson.EC.String("client", "mongodb-async-driver"),
	)
}

// runIsMaster sends one legacy OP_QUERY isMaster against admin.$cmd and
// returns the raw reply document. It is the one round trip both a
// connection Handshaker and the pinger's sweep need.
func runIsMaster(ctx context.Context, rw wiremessage.ReadWriter) (*bson.Document, error) {
	q := wiremessage.Query{
		MsgHeader:          wiremessage.Header{RequestID: 1},
		FullCollectionName: "admin.$cmd",
		NumberToReturn:     -1,
		Query:              isMasterCommand(),
	}
	if err := rw.WriteWireMessage(ctx, q); err != nil {
		return nil, err
	}
	wm, err := rw.ReadWireMessage(ctx)
	if err != nil {
		return nil, err
	}
	reply, ok := wm.(wiremessage.Reply)
	if !ok || len(reply.Documents) == 0 {
		return nil, errs.New(errs.ReplyValidation, "isMaster reply carried no document")
	}
	return reply.Documents[0], nil
}

// Handshake implements connection.Handshaker by running isMaster and
// translating the reply into a description.Server. Used both as the
// per-RawConn handshake and, via runIsMaster directly, by the pinger.
func Handshake(ctx context.Context, addr address.Address, rw wiremessage.ReadWriter) (description.Server, error) {
	start := time.Now()
	doc, err := runIsMaster(ctx, rw)
	if err != nil {
		return description.Server{}, err
	}
	return parseIsMasterReply(addr, time.Since(start), doc), nil
}

func lookupString(doc *bson.Document, key string) (string, bool) {
	el, ok := doc.Lookup(key)
	if !ok {
		return "", false
	}
	return el.Value().StringValueOK()
}

func lookupBool(doc *bson.Document, key string) bool {
	el, ok := doc.Lookup(key)
	if !ok {
		return false
	}
	b, _ := el.Value().BooleanOK()
	return b
}

func lookupInt64(doc *bson.Document, key string) (int64, bool) {
	el, ok := doc.Lookup(key)
	if !ok {
		return 0, false
	}
	return el.Value().AsInt64()
}

func lookupStringArray(doc *bson.Document, key string) []string {
	el, ok := doc.Lookup(key)
	if !ok {
		return nil
	}
	arr, ok := el.Value().DocumentOK()
	if !ok {
		return nil
	}
	out := make([]string, 0, arr.Len())
	for _, e := range arr.Elements() {
		if s, ok := e.Value().StringValueOK(); ok {
			out = append(out, s)
		}
	}
	return out
}

// parseIsMasterReply translates one isMaster reply document into a
// description.Server snapshot, per spec §4.5's role/tag/hosts extraction.
func parseIsMasterReply(addr address.Address, rtt time.Duration, doc *bson.Document) description.Server {
	s := description.Server{
		Addr:           addr,
		Tags:           map[string]string{},
		AverageRTT:     rtt,
		AverageRTTSet:  true,
		LastUpdateTime: time.Now(),
	}

	isPrimary := lookupBool(doc, "ismaster") || lookupBool(doc, "isWritablePrimary")
	isSecondary := lookupBool(doc, "secondary")
	isArbiter := lookupBool(doc, "arbiterOnly")
	msg, _ := lookupString(doc, "msg")
	setName, hasSetName := lookupString(doc, "setName")

	switch {
	case msg == "isdbgrid":
		s.Role = description.RoleMongos
	case isArbiter:
		s.Role = description.RoleArbiter
	case isPrimary:
		s.Role = description.RolePrimary
		s.IsWritablePrimary = true
	case isSecondary:
		s.Role = description.RoleSecondary
	case !hasSetName || setName == "":
		s.Role = description.RoleStandalone
	default:
		s.Role = description.RoleUnknown
	}

	s.SetName = setName
	if v, ok := lookupInt64(doc, "setVersion"); ok {
		s.SetVersion = v
	}
	if me, ok := lookupString(doc, "me"); ok {
		s.Me = me
	}
	if v, ok := lookupInt64(doc, "maxWireVersion"); ok {
		s.WireVersionMax = int32(v)
	}
	if v, ok := lookupInt64(doc, "minWireVersion"); ok {
		s.WireVersionMin = int32(v)
	}
	if v, ok := lookupInt64(doc, "maxMessageSizeBytes"); ok {
		s.MaxMessageSize = v
	}
	if v, ok := lookupInt64(doc, "maxBsonObjectSize"); ok {
		s.MaxDocumentSize = v
	}
	if v, ok := lookupInt64(doc, "maxWriteBatchSize"); ok {
		s.MaxBatchCount = v
	}
	s.Hosts = lookupStringArray(doc, "hosts")
	s.Passives = lookupStringArray(doc, "passives")
	s.Arbiters = lookupStringArray(doc, "arbiters")

	if tagsEl, ok := doc.Lookup("tags"); ok {
		if tagDoc, ok := tagsEl.Value().DocumentOK(); ok {
			for _, e := range tagDoc.Elements() {
				if sv, ok := e.Value().StringValueOK(); ok {
					s.Tags[e.Key()] = sv
				}
			}
		}
	}
	if compEl, ok := doc.Lookup("compression"); ok {
		if compArr, ok := compEl.Value().DocumentOK(); ok {
			for _, e := range compArr.Elements() {
				if sv, ok := e.Value().StringValueOK(); ok {
					s.Compression = append(s.Compression, sv)
				}
			}
		}
	}

	return s
}

// Pinger periodically probes every address a Cluster tracks and folds
// the result back in via Cluster.Update. Grounded on the teacher's
// x/mongo/driverlegacy/topology/server.go update loop and its
// checkNow-triggered immediate-recheck channel.
type Pinger struct {
	cluster  *Cluster
	interval time.Duration
	opts     []connection.Option

	checkNow chan struct{}
	done     chan struct{}
}

// NewPinger builds a Pinger that dials with opts (expected to include
// WithConnectTimeout; no Handshaker option is needed, the pinger always
// speaks isMaster itself).
func NewPinger(cluster *Cluster, interval time.Duration, opts ...connection.Option) *Pinger {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &Pinger{
		cluster:  cluster,
		interval: interval,
		opts:     opts,
		checkNow: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// RequestImmediateCheck wakes the sweep loop ahead of its next tick, used
// by server selection when no candidate is currently available.
func (p *Pinger) RequestImmediateCheck() {
	select {
	case p.checkNow <- struct{}{}:
	default:
	}
}

// Run sweeps every tracked address once synchronously (so a caller
// blocked in SelectServer has a chance of an immediate answer) and then
// loops on a ticker until ctx is done.
func (p *Pinger) Run(ctx context.Context) {
	p.sweepAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastCheck time.Time
	for {
		select {
		case <-ctx.Done():
			close(p.done)
			return
		case <-ticker.C:
			p.sweepAll(ctx)
		case <-p.checkNow:
			if time.Since(lastCheck) < minHeartbeatInterval {
				continue
			}
			lastCheck = time.Now()
			p.sweepAll(ctx)
		}
	}
}

func (p *Pinger) sweepAll(ctx context.Context) {
	for _, addr := range p.cluster.Addresses() {
		p.probe(ctx, addr)
	}
}

func (p *Pinger) probe(ctx context.Context, addr address.Address) {
	conn, _, err := connection.New(ctx, addr, p.opts...)
	if err != nil {
		p.cluster.Update(description.Server{Addr: addr, Role: description.RoleUnknown, LastError: err, LastUpdateTime: time.Now()})
		return
	}
	defer conn.Close()

	start := time.Now()
	doc, err := runIsMaster(ctx, conn)
	if err != nil {
		p.cluster.Update(description.Server{Addr: addr, Role: description.RoleUnknown, LastError: err, LastUpdateTime: time.Now()})
		return
	}
	p.cluster.Update(parseIsMasterReply(addr, time.Since(start), doc))
}

// ProbeOnce runs a single synchronous isMaster against addr and folds
// the result into cluster, used for bootstrap before any Pinger is
// running.
func ProbeOnce(ctx context.Context, cluster *Cluster, addr address.Address, opts ...connection.Option) (description.Server, error) {
	conn, desc, err := connection.New(ctx, addr, append(opts, connection.WithHandshaker(connection.HandshakerFunc(Handshake)))...)
	if err != nil {
		return description.Server{}, err
	}
	defer conn.Close()
	if desc == nil {
		return description.Server{}, errs.New(errs.ReplyValidation, "handshake produced no server description")
	}
	cluster.Update(*desc)
	return *desc, nil
}
