// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"

	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/internal/auth"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// commandRunner adapts a single RawConn's wiremessage.ReadWriter into the
// auth.CommandRunner one SASL round trip needs. It is only ever used
// during the handshake/auth phase of RawConn.New, before a Session
// starts multiplexing the connection, so one outstanding request at a
// time is the only case that ever arises.
type commandRunner struct {
	rw        wiremessage.ReadWriter
	requestID int32
}

func (r *commandRunner) RunCommand(ctx context.Context, db string, cmd *bson.Document) (*bson.Document, error) {
	r.requestID++
	q := wiremessage.Query{
		MsgHeader:          wiremessage.Header{RequestID: r.requestID},
		FullCollectionName: db + ".$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	}
	if err := r.rw.WriteWireMessage(ctx, q); err != nil {
		return nil, err
	}
	wm, err := r.rw.ReadWireMessage(ctx)
	if err != nil {
		return nil, err
	}
	reply, ok := wm.(wiremessage.Reply)
	if !ok || len(reply.Documents) == 0 {
		return nil, errs.New(errs.ReplyValidation, "command reply carried no document")
	}
	return reply.Documents[0], nil
}

// authenticate runs cred's mechanism over rw, immediately after the
// handshake and before Session takes over the connection.
func authenticate(ctx context.Context, rw wiremessage.ReadWriter, cred *auth.Credential) error {
	authenticator, err := auth.CreateAuthenticator(cred)
	if err != nil {
		return err
	}
	return authenticator.Auth(ctx, &commandRunner{rw: rw})
}
