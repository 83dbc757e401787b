// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// ValidatingSink is the outermost of the three layered completion sinks
// spec §4.8 names: it runs ValidateReply against every delivered reply
// before forwarding, so a wire-level or command-level failure reaches
// Inner as a Fail call rather than a Deliver the caller has to inspect
// itself.
type ValidatingSink struct {
	Inner connection.Sink
}

// Deliver implements connection.Sink.
func (v *ValidatingSink) Deliver(wm wiremessage.WireMessage) {
	reply, ok := wm.(wiremessage.Reply)
	if !ok {
		v.Inner.Fail(errs.New(errs.ReplyValidation, "expected an OP_REPLY"))
		return
	}
	if _, err := ValidateReply(reply); err != nil {
		v.Inner.Fail(err)
		return
	}
	v.Inner.Deliver(wm)
}

// Fail implements connection.Sink.
func (v *ValidatingSink) Fail(err error) { v.Inner.Fail(err) }

// ConvertingSink sits beneath ValidatingSink: once a reply has already
// been confirmed successful, it decodes the result document with Decode
// before forwarding, so the caller waiting on Inner gets a typed result
// rather than a raw document.
type ConvertingSink struct {
	Inner  connection.Sink
	Decode func(*bson.Document) error
}

// Deliver implements connection.Sink. It assumes wm is a validated,
// non-empty OP_REPLY — ConvertingSink is meant to sit behind
// ValidatingSink, not stand alone in front of the wire.
func (c *ConvertingSink) Deliver(wm wiremessage.WireMessage) {
	reply, ok := wm.(wiremessage.Reply)
	if !ok || len(reply.Documents) == 0 {
		c.Inner.Fail(errs.New(errs.ReplyValidation, "expected a populated OP_REPLY"))
		return
	}
	if err := c.Decode(reply.Documents[0]); err != nil {
		c.Inner.Fail(errs.Wrap(errs.ReplyValidation, "failed to decode command reply", err))
		return
	}
	c.Inner.Deliver(wm)
}

// Fail implements connection.Sink.
func (c *ConvertingSink) Fail(err error) { c.Inner.Fail(err) }
