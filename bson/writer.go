// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"math"
)

func doubleBits(f float64) uint64 { return math.Float64bits(f) }

// MarshalAppend encodes d and appends it to dst, returning the extended
// slice. This is the buffered write path: the length prefix is written
// as a placeholder and back-patched once the true length is known. It is
// the faster of the two write paths once the caller reuses dst across
// calls, since it never walks the document twice.
func MarshalAppend(dst []byte, d *Document) ([]byte, error) {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0) // length placeholder

	for _, e := range d.Elements() {
		var err error
		dst, err = appendElement(dst, e)
		if err != nil {
			return nil, err
		}
	}
	dst = append(dst, 0x00)

	binary.LittleEndian.PutUint32(dst[start:start+4], uint32(len(dst)-start))
	return dst, nil
}

// Marshal encodes d into a freshly allocated byte slice.
func Marshal(d *Document) ([]byte, error) {
	return MarshalAppend(make([]byte, 0, Size(d)), d)
}

// MarshalSized computes the exact encoded size first via Size and
// allocates one buffer of that size, then encodes into it through
// MarshalAppend, so length prefixes are still back-patched rather than
// written from the precomputed sizes. Equivalent output to MarshalAppend
// for the same document.
func MarshalSized(d *Document) ([]byte, error) {
	dst := make([]byte, 0, Size(d))
	return MarshalAppend(dst, d)
}

func appendElement(dst []byte, e Element) ([]byte, error) {
	dst = append(dst, byte(e.value.t))
	dst = appendCString(dst, e.key)
	return appendValue(dst, e.value)
}

func appendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0x00)
}

func appendString(dst []byte, s string) []byte {
	dst = appendInt32(dst, int32(len(s))+1)
	dst = append(dst, s...)
	return append(dst, 0x00)
}

func appendInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func appendInt64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

func appendValue(dst []byte, v Value) ([]byte, error) {
	switch v.t {
	case TypeDouble:
		return appendInt64(dst, int64(doubleBits(v.double))), nil
	case TypeString, TypeJavaScript, TypeSymbol:
		return appendString(dst, v.str), nil
	case TypeEmbeddedDocument:
		return MarshalAppend(dst, v.doc)
	case TypeArray:
		return MarshalAppend(dst, v.arr)
	case TypeBinary:
		dst = appendInt32(dst, int32(len(v.binary.Data)))
		dst = append(dst, byte(v.binary.Subtype))
		return append(dst, v.binary.Data...), nil
	case TypeUndefined, TypeNull, TypeMinKey, TypeMaxKey:
		return dst, nil
	case TypeObjectID:
		return append(dst, v.oid[:]...), nil
	case TypeBoolean:
		if v.boolean {
			return append(dst, 0x01), nil
		}
		return append(dst, 0x00), nil
	case TypeDateTime:
		return appendInt64(dst, v.dt), nil
	case TypeRegex:
		dst = appendCString(dst, v.regex.Pattern)
		return appendCString(dst, v.regex.Options), nil
	case TypeDBPointer:
		dst = appendString(dst, v.dbptr.Namespace)
		return append(dst, v.dbptr.Pointer[:]...), nil
	case TypeCodeWithScope:
		start := len(dst)
		dst = append(dst, 0, 0, 0, 0)
		dst = appendString(dst, v.cws.Code)
		var err error
		dst, err = MarshalAppend(dst, v.cws.Scope)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(dst[start:start+4], uint32(len(dst)-start))
		return dst, nil
	case TypeInt32:
		return appendInt32(dst, v.i32), nil
	case TypeTimestamp:
		packed := uint64(v.ts.T)<<32 | uint64(v.ts.I)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], packed)
		return append(dst, b[:]...), nil
	case TypeInt64:
		return appendInt64(dst, v.i64), nil
	default:
		return dst, nil
	}
}
