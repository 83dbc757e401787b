// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connstring

import (
	"testing"

	"github.com/igreenfield/mongodb-async-driver/readpref"
)

func TestParseMultiHostWithCredentialsAndDatabase(t *testing.T) {
	cs, err := Parse("mongodb://user:p%40ss@a:27017,b:1234/mydb")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cs.Hosts) != 2 || cs.Hosts[0] != "a:27017" || cs.Hosts[1] != "b:1234" {
		t.Fatalf("unexpected hosts: %v", cs.Hosts)
	}
	if cs.Username != "user" || cs.Password != "p@ss" {
		t.Fatalf("unexpected credentials: %q/%q", cs.Username, cs.Password)
	}
	if cs.Database != "mydb" {
		t.Fatalf("unexpected database: %q", cs.Database)
	}
}

func TestParseOptionsTable(t *testing.T) {
	uri := "mongodb://a:27017/?replicaSet=rs0&ssl=true&readPreference=secondary" +
		"&readPreferenceTags=dc:ny,rack:1&readPreferenceTags=dc:sf" +
		"&w=majority&wtimeoutMS=5000&journal=true" +
		"&maxPoolSize=50&minPoolSize=2" +
		"&connectTimeoutMS=1000&socketTimeoutMS=2000&serverSelectionTimeoutMS=3000" +
		"&authSource=admin&authMechanism=SCRAM-SHA-256&appName=widgetapp"

	cs, err := Parse(uri)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cs.ReplicaSet != "rs0" {
		t.Errorf("ReplicaSet = %q, want rs0", cs.ReplicaSet)
	}
	if !cs.SSL {
		t.Error("SSL = false, want true")
	}
	if cs.ReadPreference != readpref.SecondaryMode {
		t.Errorf("ReadPreference = %v, want SecondaryMode", cs.ReadPreference)
	}
	if len(cs.ReadPreferenceTags) != 2 {
		t.Fatalf("expected 2 tag-set alternatives, got %d", len(cs.ReadPreferenceTags))
	}
	if cs.ReadPreferenceTags[0]["dc"] != "ny" || cs.ReadPreferenceTags[0]["rack"] != "1" {
		t.Errorf("unexpected first tag set: %v", cs.ReadPreferenceTags[0])
	}
	if cs.W != "majority" || cs.WTimeoutMS != 5000 || !cs.Journal {
		t.Errorf("unexpected write concern fields: w=%q wtimeout=%d journal=%v", cs.W, cs.WTimeoutMS, cs.Journal)
	}
	if cs.MaxPoolSize != 50 || cs.MinPoolSize != 2 {
		t.Errorf("unexpected pool bounds: max=%d min=%d", cs.MaxPoolSize, cs.MinPoolSize)
	}
	if cs.ConnectTimeoutMS != 1000 || cs.SocketTimeoutMS != 2000 || cs.ServerSelectionTimeoutMS != 3000 {
		t.Errorf("unexpected deadlines: connect=%d socket=%d selection=%d", cs.ConnectTimeoutMS, cs.SocketTimeoutMS, cs.ServerSelectionTimeoutMS)
	}
	if cs.AuthSource != "admin" || cs.AuthMechanism != "SCRAM-SHA-256" {
		t.Errorf("unexpected auth fields: source=%q mechanism=%q", cs.AuthSource, cs.AuthMechanism)
	}
	if cs.AppName != "widgetapp" {
		t.Errorf("AppName = %q, want widgetapp", cs.AppName)
	}
}

func TestParseRejectsMissingScheme(t *testing.T) {
	if _, err := Parse("a:27017/mydb"); err == nil {
		t.Fatal("expected an error for a uri without the mongodb:// scheme")
	}
}

func TestParseRejectsEmptyHostList(t *testing.T) {
	if _, err := Parse("mongodb:///mydb"); err == nil {
		t.Fatal("expected an error for a uri naming no host")
	}
}

func TestParseDefaultsWithNoOptions(t *testing.T) {
	cs, err := Parse("mongodb://localhost")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cs.Hosts) != 1 || cs.Hosts[0] != "localhost:27017" {
		t.Fatalf("expected the default port to be filled in, got %v", cs.Hosts)
	}
	if cs.ReadPreference != readpref.PrimaryMode {
		t.Errorf("ReadPreference = %v, want the zero value PrimaryMode", cs.ReadPreference)
	}
}
