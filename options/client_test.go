// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"testing"
	"time"

	"github.com/igreenfield/mongodb-async-driver/readpref"
)

func TestApplyURIDoesNotOverwritePreviousErrors(t *testing.T) {
	co := Client().ApplyURI("not-a-mongo-uri").ApplyURI("mongodb://localhost/")
	if err := co.Validate(); err == nil {
		t.Fatal("expected the first ApplyURI's error to survive the second call")
	}
}

func TestApplyURIPopulatesFromConnectionString(t *testing.T) {
	co := Client().ApplyURI("mongodb://a:27017,b:27017/?replicaSet=rs0&appName=widgetapp&connectTimeoutMS=500")
	if err := co.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(co.ClientOptions.Hosts) != 2 {
		t.Fatalf("expected 2 hosts, got %v", co.ClientOptions.Hosts)
	}
	if co.ClientOptions.ReplicaSetName != "rs0" {
		t.Errorf("ReplicaSetName = %q, want rs0", co.ClientOptions.ReplicaSetName)
	}
	if co.ClientOptions.AppName != "widgetapp" {
		t.Errorf("AppName = %q, want widgetapp", co.ClientOptions.AppName)
	}
	if co.ClientOptions.ConnectTimeout != 500*time.Millisecond {
		t.Errorf("ConnectTimeout = %v, want 500ms", co.ClientOptions.ConnectTimeout)
	}
}

func TestSetReadPreferenceOverridesApplyURI(t *testing.T) {
	co := Client().
		ApplyURI("mongodb://a:27017/?readPreference=secondary").
		SetReadPreference(readpref.Primary())
	if co.ClientOptions.ReadPreference.Mode != readpref.PrimaryMode {
		t.Fatalf("expected the explicit SetReadPreference call to win, got %v", co.ClientOptions.ReadPreference.Mode)
	}
}

func TestValidateRejectsNoHosts(t *testing.T) {
	if err := Client().Validate(); err == nil {
		t.Fatal("expected an error when no host was ever named")
	}
}

func TestConnectionOptionsOmitsUnsetFields(t *testing.T) {
	co := Client().ApplyURI("mongodb://a:27017/").ClientOptions
	if got := len(co.ConnectionOptions()); got != 0 {
		t.Fatalf("expected no connection.Option with nothing set, got %d", got)
	}

	co.AppName = "widgetapp"
	if got := len(co.ConnectionOptions()); got != 1 {
		t.Fatalf("expected exactly one connection.Option for AppName, got %d", got)
	}
}

func TestConnectionOptionsIncludesCredentialWhenUsernameSet(t *testing.T) {
	co := Client().ApplyURI("mongodb://user:pw@a:27017/?authSource=admin&authMechanism=SCRAM-SHA-256").ClientOptions
	if got := len(co.ConnectionOptions()); got != 1 {
		t.Fatalf("expected exactly one connection.Option for the credential, got %d", got)
	}
}

func TestSeedsCanonicalizesHosts(t *testing.T) {
	co := Client().ApplyURI("mongodb://A:27017/").ClientOptions
	seeds := co.Seeds()
	if len(seeds) != 1 || string(seeds[0]) != "a:27017" {
		t.Fatalf("expected a canonicalized seed, got %v", seeds)
	}
}
