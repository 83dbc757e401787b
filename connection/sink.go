// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import "github.com/igreenfield/mongodb-async-driver/internal/wiremessage"

// Sink is the completion-sink contract of spec §4.8: exactly one of
// Deliver or Fail is invoked exactly once per registered request id.
// The layered sinks in the driver package (future, validating,
// converting) all implement this so they can be registered directly
// with a Session.
type Sink interface {
	Deliver(reply wiremessage.WireMessage)
	Fail(err error)
}

// SinkFunc pair adapts two functions to a Sink, useful for tests and for
// simple fire-and-forget callers.
type SinkFunc struct {
	OnDeliver func(wiremessage.WireMessage)
	OnFail    func(error)
}

func (f SinkFunc) Deliver(reply wiremessage.WireMessage) {
	if f.OnDeliver != nil {
		f.OnDeliver(reply)
	}
}

func (f SinkFunc) Fail(err error) {
	if f.OnFail != nil {
		f.OnFail(err)
	}
}
