// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"github.com/igreenfield/mongodb-async-driver/bson"
	"github.com/igreenfield/mongodb-async-driver/internal/wiremessage"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

// BuildInsert constructs the OP_INSERT carrying docs into ns. An
// unordered insert sets ContinueOnError so a single failing document
// does not abort the rest of the batch.
func BuildInsert(ns Namespace, docs []*bson.Document, ordered bool) wiremessage.Insert {
	return wiremessage.Insert{
		FullCollectionName: ns.FullName(),
		ContinueOnError:    !ordered,
		Documents:          docs,
	}
}

// BuildGetLastError constructs the getLastError command that follows an
// acknowledged legacy write, honoring wc's durability and replication
// timeout.
func BuildGetLastError(db string, wc *WriteConcern) wiremessage.Query {
	cmd := bson.NewDocument(bson.EC.Int32("getLastError", 1))
	if wc != nil {
		if wc.Durability == Majority {
			cmd.Append(bson.EC.String("w", "majority"))
		}
		if wc.WTimeoutMS > 0 {
			cmd.Append(bson.EC.Int32("wtimeout", wc.WTimeoutMS))
		}
	}
	return wiremessage.Query{
		FullCollectionName: db + ".$cmd",
		NumberToReturn:     -1,
		Query:              cmd,
	}
}

// BuildUpdate constructs the OP_UPDATE applying update to every document
// matching selector (or just the first, unless multi is set).
func BuildUpdate(ns Namespace, selector, update *bson.Document, upsert, multi bool) wiremessage.Update {
	var flags wiremessage.UpdateFlags
	if upsert {
		flags |= wiremessage.UpdateUpsert
	}
	if multi {
		flags |= wiremessage.UpdateMulti
	}
	return wiremessage.Update{
		FullCollectionName: ns.FullName(),
		Flags:              flags,
		Selector:           selector,
		Update:             update,
	}
}

// BuildDelete constructs the OP_DELETE removing documents matching
// selector.
func BuildDelete(ns Namespace, selector *bson.Document, limitToOne bool) wiremessage.Delete {
	var flags wiremessage.DeleteFlags
	if limitToOne {
		flags |= wiremessage.DeleteSingleRemove
	}
	return wiremessage.Delete{
		FullCollectionName: ns.FullName(),
		Flags:              flags,
		Selector:           selector,
	}
}

// BuildFind constructs the OP_QUERY for a find. The SlaveOK flag is set
// whenever rp permits routing the read away from the primary — the
// signal a secondary or mongos uses under the legacy wire protocol to
// decide whether it may service the read at all.
func BuildFind(ns Namespace, filter, projection *bson.Document, skip, limit int32, rp *readpref.ReadPref) wiremessage.Query {
	var flags wiremessage.QueryFlags
	if rp != nil && rp.Mode != readpref.PrimaryMode {
		flags |= wiremessage.QuerySlaveOK
	}
	return wiremessage.Query{
		Flags:                flags,
		FullCollectionName:   ns.FullName(),
		NumberToSkip:         skip,
		NumberToReturn:       limit,
		Query:                filter,
		ReturnFieldsSelector: projection,
	}
}

// BuildGetMore constructs the OP_GET_MORE continuing cursorID.
func BuildGetMore(ns Namespace, cursorID int64, batchSize int32) wiremessage.GetMore {
	return wiremessage.GetMore{
		FullCollectionName: ns.FullName(),
		NumberToReturn:     batchSize,
		CursorID:           cursorID,
	}
}

// BuildKillCursors constructs the OP_KILL_CURSORS for the given ids.
func BuildKillCursors(ids ...int64) wiremessage.KillCursors {
	return wiremessage.KillCursors{CursorIDs: ids}
}
