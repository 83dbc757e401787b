// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/igreenfield/mongodb-async-driver/bson"
)

// failingServer fails every RunCommand call with a transport error,
// exercising the RunCommand error path of the SASL conversation without
// needing a real SCRAM handshake.
type failingServer struct{}

func (failingServer) RunCommand(ctx context.Context, db string, cmd *bson.Document) (*bson.Document, error) {
	return nil, errors.New("connection lost")
}

func TestCreateAuthenticatorDefaultsToSHA256(t *testing.T) {
	a, err := CreateAuthenticator(&Credential{Username: "user", Password: "pencil"})
	if err != nil {
		t.Fatalf("CreateAuthenticator: %v", err)
	}
	sa, ok := a.(*scramAuthenticator)
	if !ok {
		t.Fatalf("expected *scramAuthenticator, got %T", a)
	}
	if sa.mechanism != "SCRAM-SHA-256" {
		t.Fatalf("expected SCRAM-SHA-256 default, got %s", sa.mechanism)
	}
}

func TestCreateAuthenticatorUnsupportedMechanism(t *testing.T) {
	_, err := CreateAuthenticator(&Credential{Mechanism: "GSSAPI"})
	if err == nil {
		t.Fatal("expected error for unsupported mechanism")
	}
}

func TestScramAuthSurfacesRunCommandFailure(t *testing.T) {
	a, err := CreateAuthenticator(&Credential{Mechanism: "SCRAM-SHA-1", Username: "user", Password: "pencil"})
	if err != nil {
		t.Fatalf("CreateAuthenticator: %v", err)
	}

	err = a.Auth(context.Background(), failingServer{})
	if err == nil {
		t.Fatal("expected error when RunCommand fails")
	}
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if authErr.Mechanism != "SCRAM-SHA-1" {
		t.Fatalf("expected mechanism SCRAM-SHA-1, got %s", authErr.Mechanism)
	}
}
