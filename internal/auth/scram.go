// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package auth

import (
	"context"

	"github.com/xdg-go/scram"
)

// scramAuthenticator drives SCRAM-SHA-1 or SCRAM-SHA-256 via
// github.com/xdg-go/scram, the same library the mechanism is built on
// in the rest of the pack's auth-adjacent code.
type scramAuthenticator struct {
	mechanism string
	cred      *Credential
	hash      scram.HashGeneratorFcn
}

func newScramSHA1Authenticator(cred *Credential) (Authenticator, error) {
	return &scramAuthenticator{mechanism: "SCRAM-SHA-1", cred: cred, hash: scram.SHA1}, nil
}

func newScramSHA256Authenticator(cred *Credential) (Authenticator, error) {
	return &scramAuthenticator{mechanism: "SCRAM-SHA-256", cred: cred, hash: scram.SHA256}, nil
}

func (a *scramAuthenticator) Auth(ctx context.Context, runner CommandRunner) error {
	client, err := a.hash.NewClient(a.cred.Username, a.cred.Password, "")
	if err != nil {
		return newError(a.mechanism, err)
	}

	conv := client.NewConversation()
	sc := &scramSaslClient{mechanism: a.mechanism, conv: conv}

	return conductSaslConversation(ctx, runner, a.cred.Source, sc)
}

// scramSaslClient adapts an *scram.ClientConversation to the SaslClient
// interface the handshake loop drives.
type scramSaslClient struct {
	mechanism string
	conv      *scram.ClientConversation
	started   bool
}

func (c *scramSaslClient) Start() (string, []byte, error) {
	c.started = true
	resp, err := c.conv.Step("")
	if err != nil {
		return c.mechanism, nil, err
	}
	return c.mechanism, []byte(resp), nil
}

func (c *scramSaslClient) Next(challenge []byte) ([]byte, error) {
	resp, err := c.conv.Step(string(challenge))
	if err != nil {
		return nil, err
	}
	return []byte(resp), nil
}

func (c *scramSaslClient) Completed() bool {
	return c.started && c.conv.Done()
}
