// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

// Size computes the encoded length of d, inclusive of the length prefix
// itself and the trailing zero byte, without writing any bytes. This is
// the size-visitor path named in spec §4.1: callers that already know the
// final size (for example, to allocate one exact buffer up front) use
// this instead of the buffered back-patching path in writer.go.
func Size(d *Document) int32 {
	var size int32 = 4 // length prefix
	for _, e := range d.Elements() {
		size += elementSize(e)
	}
	size++ // trailing 0x00
	return size
}

func elementSize(e Element) int32 {
	// tag byte + cstring key (len+1 for NUL)
	size := int32(1) + int32(len(e.key)) + 1
	size += valueSize(e.value)
	return size
}

func valueSize(v Value) int32 {
	switch v.t {
	case TypeDouble:
		return 8
	case TypeString, TypeJavaScript, TypeSymbol:
		return stringSize(v.str)
	case TypeEmbeddedDocument:
		return Size(v.doc)
	case TypeArray:
		return Size(v.arr)
	case TypeBinary:
		return 4 + 1 + int32(len(v.binary.Data))
	case TypeUndefined:
		return 0
	case TypeObjectID:
		return 12
	case TypeBoolean:
		return 1
	case TypeDateTime:
		return 8
	case TypeNull:
		return 0
	case TypeRegex:
		return int32(len(v.regex.Pattern)) + 1 + int32(len(v.regex.Options)) + 1
	case TypeDBPointer:
		return stringSize(v.dbptr.Namespace) + 12
	case TypeCodeWithScope:
		return 4 + stringSize(v.cws.Code) + Size(v.cws.Scope)
	case TypeInt32:
		return 4
	case TypeTimestamp:
		return 8
	case TypeInt64:
		return 8
	case TypeMinKey, TypeMaxKey:
		return 0
	default:
		return 0
	}
}

func stringSize(s string) int32 {
	return 4 + int32(len(s)) + 1
}
