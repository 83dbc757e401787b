// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import "fmt"

// Value is a tagged union over the closed element type set. Exactly one
// field is meaningful for a given Type; operations on a Value pattern
// match on Type rather than going through virtual dispatch.
type Value struct {
	t Type

	double  float64
	str     string
	doc     *Document
	arr     *Document
	binary  Binary
	oid     ObjectID
	boolean bool
	dt      int64 // milliseconds since epoch
	regex   Regex
	dbptr   DBPointer
	code    string
	cws     CodeWithScope
	i32     int32
	ts      Timestamp
	i64     int64
}

// Type reports the value's wire type tag.
func (v Value) Type() Type { return v.t }

// Constructors. Each produces a Value with its Type set accordingly.

func Double(f float64) Value                 { return Value{t: TypeDouble, double: f} }
func String(s string) Value                  { return Value{t: TypeString, str: s} }
func EmbeddedDocument(d *Document) Value      { return Value{t: TypeEmbeddedDocument, doc: d} }
func Array(d *Document) Value                { return Value{t: TypeArray, arr: d} }
func BinaryValue(b Binary) Value             { return Value{t: TypeBinary, binary: b} }
func Undefined() Value                       { return Value{t: TypeUndefined} }
func ObjectIDValue(id ObjectID) Value         { return Value{t: TypeObjectID, oid: id} }
func Boolean(b bool) Value                   { return Value{t: TypeBoolean, boolean: b} }
func DateTime(millis int64) Value            { return Value{t: TypeDateTime, dt: millis} }
func Null() Value                            { return Value{t: TypeNull} }
func RegexValue(pattern, options string) Value {
	return Value{t: TypeRegex, regex: Regex{Pattern: pattern, Options: options}}
}
func DBPointerValue(ns string, ptr ObjectID) Value {
	return Value{t: TypeDBPointer, dbptr: DBPointer{Namespace: ns, Pointer: ptr}}
}
func JavaScript(code string) Value           { return Value{t: TypeJavaScript, str: code} }
func Symbol(s string) Value                  { return Value{t: TypeSymbol, str: s} }
func CodeWithScopeValue(code string, scope *Document) Value {
	return Value{t: TypeCodeWithScope, cws: CodeWithScope{Code: code, Scope: scope}}
}
func Int32(i int32) Value                    { return Value{t: TypeInt32, i32: i} }
func TimestampValue(ts Timestamp) Value       { return Value{t: TypeTimestamp, ts: ts} }
func Int64(i int64) Value                    { return Value{t: TypeInt64, i64: i} }
func MinKey() Value                          { return Value{t: TypeMinKey} }
func MaxKey() Value                          { return Value{t: TypeMaxKey} }

// Accessors panic if called against the wrong Type; the OK-suffixed
// variants report success instead, for callers handling heterogeneous
// server replies that may or may not carry a given field.

func (v Value) Double() float64 {
	if v.t != TypeDouble {
		panic(typeMismatch(TypeDouble, v.t))
	}
	return v.double
}

func (v Value) DoubleOK() (float64, bool) {
	if v.t != TypeDouble {
		return 0, false
	}
	return v.double, true
}

func (v Value) StringValue() string {
	if v.t != TypeString {
		panic(typeMismatch(TypeString, v.t))
	}
	return v.str
}

func (v Value) StringValueOK() (string, bool) {
	if v.t != TypeString {
		return "", false
	}
	return v.str, true
}

func (v Value) Document() *Document {
	switch v.t {
	case TypeEmbeddedDocument:
		return v.doc
	case TypeArray:
		return v.arr
	default:
		panic(typeMismatch(TypeEmbeddedDocument, v.t))
	}
}

func (v Value) DocumentOK() (*Document, bool) {
	switch v.t {
	case TypeEmbeddedDocument:
		return v.doc, true
	case TypeArray:
		return v.arr, true
	default:
		return nil, false
	}
}

func (v Value) Binary() Binary {
	if v.t != TypeBinary {
		panic(typeMismatch(TypeBinary, v.t))
	}
	return v.binary
}

func (v Value) ObjectID() ObjectID {
	if v.t != TypeObjectID {
		panic(typeMismatch(TypeObjectID, v.t))
	}
	return v.oid
}

func (v Value) ObjectIDOK() (ObjectID, bool) {
	if v.t != TypeObjectID {
		return ObjectID{}, false
	}
	return v.oid, true
}

func (v Value) Boolean() bool {
	if v.t != TypeBoolean {
		panic(typeMismatch(TypeBoolean, v.t))
	}
	return v.boolean
}

func (v Value) BooleanOK() (bool, bool) {
	if v.t != TypeBoolean {
		return false, false
	}
	return v.boolean, true
}

func (v Value) DateTime() int64 {
	if v.t != TypeDateTime {
		panic(typeMismatch(TypeDateTime, v.t))
	}
	return v.dt
}

func (v Value) Regex() Regex {
	if v.t != TypeRegex {
		panic(typeMismatch(TypeRegex, v.t))
	}
	return v.regex
}

func (v Value) DBPointer() DBPointer {
	if v.t != TypeDBPointer {
		panic(typeMismatch(TypeDBPointer, v.t))
	}
	return v.dbptr
}

func (v Value) JavaScript() string {
	if v.t != TypeJavaScript {
		panic(typeMismatch(TypeJavaScript, v.t))
	}
	return v.str
}

func (v Value) Symbol() string {
	if v.t != TypeSymbol {
		panic(typeMismatch(TypeSymbol, v.t))
	}
	return v.str
}

func (v Value) CodeWithScope() CodeWithScope {
	if v.t != TypeCodeWithScope {
		panic(typeMismatch(TypeCodeWithScope, v.t))
	}
	return v.cws
}

func (v Value) Int32() int32 {
	if v.t != TypeInt32 {
		panic(typeMismatch(TypeInt32, v.t))
	}
	return v.i32
}

func (v Value) Int32OK() (int32, bool) {
	if v.t != TypeInt32 {
		return 0, false
	}
	return v.i32, true
}

func (v Value) Timestamp() Timestamp {
	if v.t != TypeTimestamp {
		panic(typeMismatch(TypeTimestamp, v.t))
	}
	return v.ts
}

func (v Value) Int64() int64 {
	if v.t != TypeInt64 {
		panic(typeMismatch(TypeInt64, v.t))
	}
	return v.i64
}

func (v Value) Int64OK() (int64, bool) {
	if v.t != TypeInt64 {
		return 0, false
	}
	return v.i64, true
}

// AsInt64 widens any of the numeric types to an int64, which is useful
// when reading server replies that are free to pick any numeric wire
// representation for the same logical field (e.g. "ok": 1 vs 1.0).
func (v Value) AsInt64() (int64, bool) {
	switch v.t {
	case TypeInt32:
		return int64(v.i32), true
	case TypeInt64:
		return v.i64, true
	case TypeDouble:
		return int64(v.double), true
	default:
		return 0, false
	}
}

func typeMismatch(want, got Type) error {
	return fmt.Errorf("bson: value is type %s, not %s", got, want)
}
