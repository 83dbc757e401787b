// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/internal/errs"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
)

// duplicateKeyCode is the server's error code for a unique index
// violation, the one "code" value this core distinguishes by number
// rather than by the generic QUERY_FAILURE kind.
const duplicateKeyCode = 11000

// ValidateReply inspects one OP_REPLY for the failure signals the wire
// protocol defines — the QueryFailure/CursorNotFound/ShardConfigStale
// response flags, and the command document's own ok/errmsg/code fields
// — returning the sole result document on success. Grounded on the
// reference driver's opreply.go decode path.
func ValidateReply(reply wiremessage.Reply) (*bson.Document, error) {
	if reply.ResponseFlags&wiremessage.ReplyQueryFailure != 0 {
		return nil, errs.New(errs.QueryFailure, queryFailureMessage(reply))
	}
	if reply.ResponseFlags&wiremessage.ReplyCursorNotFound != 0 {
		return nil, errs.New(errs.CursorNotFound, "cursor not found")
	}
	if reply.ResponseFlags&wiremessage.ReplyShardConfigStale != 0 {
		return nil, errs.New(errs.ShardConfigStale, "shard config stale")
	}
	if reply.NumberReturned == 0 || len(reply.Documents) == 0 {
		return nil, errs.New(errs.ReplyValidation, "OP_REPLY carried no document")
	}

	doc := reply.Documents[0]
	if !commandOK(doc) {
		return nil, commandError(doc)
	}
	return doc, nil
}

func queryFailureMessage(reply wiremessage.Reply) string {
	if len(reply.Documents) == 0 {
		return "command failure"
	}
	if el, ok := reply.Documents[0].Lookup("$err"); ok {
		if s, ok := el.Value().StringValueOK(); ok {
			return s
		}
	}
	return "command failure"
}

// commandOK reads a command reply's "ok" field, which the server is
// free to send as a double, int32, or int64 for the same logical
// meaning. A reply with no "ok" field at all (legacy getLastError on
// some servers) is treated as successful.
func commandOK(doc *bson.Document) bool {
	el, found := doc.Lookup("ok")
	if !found {
		return true
	}
	n, isNumeric := el.Value().AsInt64()
	return isNumeric && n == 1
}

func commandError(doc *bson.Document) error {
	errmsg := "command failed"
	if el, ok := doc.Lookup("errmsg"); ok {
		if s, ok := el.Value().StringValueOK(); ok {
			errmsg = s
		}
	}

	kind := errs.QueryFailure
	if el, ok := doc.Lookup("code"); ok {
		if code, isNumeric := el.Value().AsInt64(); isNumeric && code == duplicateKeyCode {
			kind = errs.DuplicateKey
		}
	}
	return errs.New(kind, errmsg)
}
