// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package bson implements the self-describing binary document format used
// on the wire: an ordered sequence of named, type-tagged elements. Values
// are represented as a tagged union over the closed type set defined by the
// wire protocol; there is no reflection-based marshaling here, only the
// data model the wire format names.
package bson

import "fmt"

// Type is the closed set of element type tags carried on the wire.
type Type byte

// The type tags, in their wire-assigned byte values.
const (
	TypeDouble           Type = 0x01
	TypeString           Type = 0x02
	TypeEmbeddedDocument Type = 0x03
	TypeArray            Type = 0x04
	TypeBinary           Type = 0x05
	TypeUndefined        Type = 0x06
	TypeObjectID         Type = 0x07
	TypeBoolean          Type = 0x08
	TypeDateTime         Type = 0x09
	TypeNull             Type = 0x0A
	TypeRegex            Type = 0x0B
	TypeDBPointer        Type = 0x0C
	TypeJavaScript       Type = 0x0D
	TypeSymbol           Type = 0x0E
	TypeCodeWithScope    Type = 0x0F
	TypeInt32            Type = 0x10
	TypeTimestamp        Type = 0x11
	TypeInt64            Type = 0x12
	TypeMinKey           Type = 0xFF
	TypeMaxKey           Type = 0x7F
)

func (t Type) String() string {
	switch t {
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeEmbeddedDocument:
		return "embedded document"
	case TypeArray:
		return "array"
	case TypeBinary:
		return "binary"
	case TypeUndefined:
		return "undefined"
	case TypeObjectID:
		return "objectID"
	case TypeBoolean:
		return "boolean"
	case TypeDateTime:
		return "UTC datetime"
	case TypeNull:
		return "null"
	case TypeRegex:
		return "regex"
	case TypeDBPointer:
		return "dbPointer"
	case TypeJavaScript:
		return "javascript"
	case TypeSymbol:
		return "symbol"
	case TypeCodeWithScope:
		return "code with scope"
	case TypeInt32:
		return "32-bit integer"
	case TypeTimestamp:
		return "timestamp"
	case TypeInt64:
		return "64-bit integer"
	case TypeMinKey:
		return "min key"
	case TypeMaxKey:
		return "max key"
	default:
		return fmt.Sprintf("unknown type %#x", byte(t))
	}
}

// BinarySubtype is the byte tag on a TypeBinary value's subtype.
type BinarySubtype byte

// Recognized binary subtypes.
const (
	BinaryGeneric     BinarySubtype = 0x00
	BinaryFunction    BinarySubtype = 0x01
	BinaryOldBinary   BinarySubtype = 0x02
	BinaryOldUUID     BinarySubtype = 0x03
	BinaryUUID        BinarySubtype = 0x04
	BinaryMD5         BinarySubtype = 0x05
	BinaryEncrypted   BinarySubtype = 0x06
	BinaryUserDefined BinarySubtype = 0x80
)

// Regex carries a regular-expression value's pattern and options, kept
// distinct since options must stay lexicographically sorted on the wire.
type Regex struct {
	Pattern string
	Options string
}

// DBPointer is the legacy db-pointer value: a namespace plus an ObjectID.
type DBPointer struct {
	Namespace string
	Pointer   ObjectID
}

// CodeWithScope pairs a JavaScript code string with its captured scope.
type CodeWithScope struct {
	Code  string
	Scope *Document
}

// Timestamp is the internal MongoDB replication timestamp: a seconds
// component and an ordinal within that second.
type Timestamp struct {
	T uint32
	I uint32
}

// Binary is a tagged opaque byte string.
type Binary struct {
	Subtype BinarySubtype
	Data    []byte
}
