// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"testing"
	"time"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/description"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
)

func TestParseIsMasterReplyPrimaryWithHosts(t *testing.T) {
	addr := address.Canonicalize("a:27017")
	doc := bson.NewDocument(
		bson.EC.Boolean("ismaster", true),
		bson.EC.String("setName", "rs0"),
		bson.EC.Int64("setVersion", 3),
		bson.EC.ArrayFromElements("hosts", bson.VC.String("a:27017"), bson.VC.String("b:27017")),
		bson.EC.Int32("maxWireVersion", 13),
		bson.EC.SubDocument("tags", bson.NewDocument(bson.EC.String("dc", "east"))),
	)

	s := parseIsMasterReply(addr, 5*time.Millisecond, doc)
	if s.Role != description.RolePrimary {
		t.Fatalf("expected RolePrimary, got %s", s.Role)
	}
	if !s.Writable() {
		t.Fatal("expected primary to be writable")
	}
	if s.SetName != "rs0" || s.SetVersion != 3 {
		t.Fatalf("unexpected set identity: %+v", s)
	}
	if len(s.Hosts) != 2 || s.Hosts[0] != "a:27017" || s.Hosts[1] != "b:27017" {
		t.Fatalf("unexpected hosts: %v", s.Hosts)
	}
	if s.WireVersionMax != 13 {
		t.Fatalf("expected maxWireVersion 13, got %d", s.WireVersionMax)
	}
	if s.Tags["dc"] != "east" {
		t.Fatalf("expected tag dc=east, got %v", s.Tags)
	}
}

func TestParseIsMasterReplyWithoutSetNameReportsPrimary(t *testing.T) {
	addr := address.Canonicalize("solo:27017")
	doc := bson.NewDocument(bson.EC.Boolean("ismaster", true))

	s := parseIsMasterReply(addr, time.Millisecond, doc)
	if s.Role != description.RolePrimary {
		t.Fatalf("expected a bare ismaster:true reply (standalone or primary) to report RolePrimary, got %s", s.Role)
	}
	if s.SetName != "" {
		t.Fatalf("expected no set name, got %q", s.SetName)
	}
}

func TestParseIsMasterReplyMongos(t *testing.T) {
	addr := address.Canonicalize("router:27017")
	doc := bson.NewDocument(bson.EC.String("msg", "isdbgrid"))

	s := parseIsMasterReply(addr, time.Millisecond, doc)
	if s.Role != description.RoleMongos {
		t.Fatalf("expected RoleMongos, got %s", s.Role)
	}
	if !s.Writable() {
		t.Fatal("expected mongos to be writable")
	}
}

func TestParseIsMasterReplySecondary(t *testing.T) {
	addr := address.Canonicalize("sec:27017")
	doc := bson.NewDocument(
		bson.EC.Boolean("secondary", true),
		bson.EC.String("setName", "rs0"),
	)

	s := parseIsMasterReply(addr, time.Millisecond, doc)
	if s.Role != description.RoleSecondary {
		t.Fatalf("expected RoleSecondary, got %s", s.Role)
	}
	if s.Writable() {
		t.Fatal("secondary must not report writable")
	}
}
