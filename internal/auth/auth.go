// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package auth conducts the SASL handshake used to authenticate a
// connection after its handshake, per SPEC_FULL.md item C.2.
// CommandRunner abstracts the single "run one command, get one reply"
// primitive a connection needs to expose, so this package never depends
// on the connection package directly and no import cycle is possible.
package auth

import (
	"context"
	"fmt"

	"github.com/igreenfield/mongodb-async-driver/bson"
)

const defaultAuthDB = "admin"

// CommandRunner is the minimal capability auth needs from a connection:
// send a command document to db and return its reply.
type CommandRunner interface {
	RunCommand(ctx context.Context, db string, cmd *bson.Document) (*bson.Document, error)
}

// Credential names the identity and mechanism to authenticate with.
type Credential struct {
	Source      string
	Username    string
	Password    string
	PasswordSet bool
	Mechanism   string
	Props       map[string]string
}

// SaslClient is the client half of a SASL conversation: produce the
// initial payload, respond to each server challenge, and report
// completion.
type SaslClient interface {
	Start() (mechanism string, payload []byte, err error)
	Next(challenge []byte) ([]byte, error)
	Completed() bool
}

// Authenticator runs a credential's mechanism against a connection.
type Authenticator interface {
	Auth(ctx context.Context, runner CommandRunner) error
}

// Error wraps an authentication failure with the mechanism that
// produced it.
type Error struct {
	Mechanism string
	Cause     error
}

func (e *Error) Error() string {
	if e.Mechanism == "" {
		return fmt.Sprintf("auth error: %v", e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %v", e.Mechanism, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(mechanism string, cause error) error {
	return &Error{Mechanism: mechanism, Cause: cause}
}

// CreateAuthenticator selects the Authenticator for cred.Mechanism.
// SCRAM-SHA-256 is used when no mechanism is given, matching the
// negotiated default for servers that support it.
func CreateAuthenticator(cred *Credential) (Authenticator, error) {
	switch cred.Mechanism {
	case "", "SCRAM-SHA-256":
		return newScramSHA256Authenticator(cred)
	case "SCRAM-SHA-1":
		return newScramSHA1Authenticator(cred)
	default:
		return nil, fmt.Errorf("auth: unsupported mechanism %q", cred.Mechanism)
	}
}

// conductSaslConversation drives the saslStart/saslContinue command loop
// against runner until the mechanism reports completion.
func conductSaslConversation(ctx context.Context, runner CommandRunner, db string, client SaslClient) error {
	if db == "" {
		db = defaultAuthDB
	}

	mech, payload, err := client.Start()
	if err != nil {
		return newError(mech, err)
	}

	saslStart := bson.NewDocument(
		bson.EC.Int32("saslStart", 1),
		bson.EC.String("mechanism", mech),
		bson.EC.Binary("payload", bson.Binary{Data: payload}),
	)

	resp, err := runner.RunCommand(ctx, db, saslStart)
	if err != nil {
		return newError(mech, err)
	}

	for {
		done, convID, respPayload, err := parseSaslResponse(resp)
		if err != nil {
			return newError(mech, err)
		}
		if done && client.Completed() {
			return nil
		}

		payload, err = client.Next(respPayload)
		if err != nil {
			return newError(mech, err)
		}
		if done && client.Completed() {
			return nil
		}

		saslContinue := bson.NewDocument(
			bson.EC.Int32("saslContinue", 1),
			bson.EC.Int32("conversationId", convID),
			bson.EC.Binary("payload", bson.Binary{Data: payload}),
		)

		resp, err = runner.RunCommand(ctx, db, saslContinue)
		if err != nil {
			return newError(mech, err)
		}
	}
}

func parseSaslResponse(doc *bson.Document) (done bool, conversationID int32, payload []byte, err error) {
	if el, ok := doc.Lookup("ok"); ok {
		if n, _ := el.Value().AsInt64(); n == 0 {
			msg := "saslStart/saslContinue failed"
			if errEl, ok := doc.Lookup("errmsg"); ok {
				msg = errEl.Value().StringValue()
			}
			return false, 0, nil, fmt.Errorf("%s", msg)
		}
	}
	if el, ok := doc.Lookup("done"); ok {
		done = el.Value().Boolean()
	}
	if el, ok := doc.Lookup("conversationId"); ok {
		conversationID = el.Value().Int32()
	}
	if el, ok := doc.Lookup("payload"); ok {
		payload = el.Value().Binary().Data
	}
	return done, conversationID, payload, nil
}
