// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DefaultMaxDocumentSize is 16 MiB plus a small amount of slack for
// command envelopes, matching the server's own document size ceiling.
const DefaultMaxDocumentSize int32 = 16*1024*1024 + 16*1024

// FramingError is returned by Unmarshal/Reader.Validate when the bytes do
// not describe a well-formed, appropriately sized document.
type FramingError struct {
	Reason string
}

func (e FramingError) Error() string { return "bson: framing error: " + e.Reason }

// Reader is a raw, undecoded document. It supports validating the framing
// without decoding, and looking up individual top-level keys; Lookup
// decodes the whole document to do so.
type Reader []byte

// NewReader wraps raw bytes as a Reader. It does not copy or validate.
func NewReader(b []byte) Reader { return Reader(b) }

// Validate checks that r is a well-formed document within maxSize and
// returns its declared length.
func (r Reader) Validate(maxSize int32) (int32, error) {
	if len(r) < 5 {
		return 0, FramingError{Reason: "document shorter than minimum 5 bytes"}
	}
	length := int32(binary.LittleEndian.Uint32(r[0:4]))
	if length > maxSize {
		return 0, FramingError{Reason: fmt.Sprintf("declared length %d exceeds maximum %d", length, maxSize)}
	}
	if int(length) != len(r) {
		return 0, FramingError{Reason: fmt.Sprintf("declared length %d does not match buffer length %d", length, len(r))}
	}
	if r[length-1] != 0x00 {
		return 0, FramingError{Reason: "missing trailing NUL byte"}
	}
	return length, nil
}

// Lookup decodes r with Unmarshal and returns the value of the first
// element with the given key. Matches the codec's first-wins semantics
// for duplicate keys.
func (r Reader) Lookup(key string) (Value, bool, error) {
	doc, err := Unmarshal(r)
	if err != nil {
		return Value{}, false, err
	}
	e, ok := doc.Lookup(key)
	if !ok {
		return Value{}, false, nil
	}
	return e.Value(), true, nil
}

// Unmarshal decodes b into a Document. It enforces DefaultMaxDocumentSize
// on the outermost document; embedded subdocuments are bounded by the
// outer document's own declared length and are not separately size
// checked.
func Unmarshal(b []byte) (*Document, error) {
	d, n, err := decodeDocument(b, DefaultMaxDocumentSize, true)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, FramingError{Reason: fmt.Sprintf("trailing %d bytes after document", len(b)-n)}
	}
	return d, nil
}

// UnmarshalOne decodes a single document from the front of b and reports
// how many bytes it consumed, leaving any trailing bytes (for example a
// second document packed into the same buffer) untouched. Used by the
// wire message codec, where several documents are concatenated in one
// message body.
func UnmarshalOne(b []byte) (*Document, int, error) {
	return decodeDocument(b, DefaultMaxDocumentSize, true)
}

func decodeDocument(b []byte, maxSize int32, enforceMax bool) (*Document, int, error) {
	if len(b) < 5 {
		return nil, 0, FramingError{Reason: "document shorter than minimum 5 bytes"}
	}
	length := int32(binary.LittleEndian.Uint32(b[0:4]))
	if enforceMax && length > maxSize {
		return nil, 0, FramingError{Reason: fmt.Sprintf("declared length %d exceeds maximum %d", length, maxSize)}
	}
	if length < 5 || int(length) > len(b) {
		return nil, 0, FramingError{Reason: fmt.Sprintf("declared length %d invalid for buffer of %d bytes", length, len(b))}
	}
	if b[length-1] != 0x00 {
		return nil, 0, FramingError{Reason: "missing trailing NUL byte"}
	}

	doc := &Document{index: make(map[string]int)}
	pos := 4
	end := int(length) - 1 // exclude trailing NUL
	for pos < end {
		tag := Type(b[pos])
		pos++

		nameStart := pos
		nameEnd, err := findCStringEnd(b, pos, end)
		if err != nil {
			return nil, 0, err
		}
		key := string(b[nameStart:nameEnd])
		pos = nameEnd + 1

		val, consumed, err := decodeValue(tag, b[pos:end])
		if err != nil {
			return nil, 0, err
		}
		pos += consumed

		if _, exists := doc.index[key]; !exists {
			doc.index[key] = len(doc.elements)
		}
		doc.elements = append(doc.elements, Element{key, val})
	}
	if pos != end {
		return nil, 0, FramingError{Reason: "element boundary mismatch"}
	}
	return doc, int(length), nil
}

func findCStringEnd(b []byte, start, limit int) (int, error) {
	for i := start; i < limit; i++ {
		if b[i] == 0x00 {
			return i, nil
		}
	}
	return 0, FramingError{Reason: "unterminated cstring"}
}

func decodeValue(tag Type, b []byte) (Value, int, error) {
	switch tag {
	case TypeDouble:
		if len(b) < 8 {
			return Value{}, 0, shortRead("double")
		}
		bits := binary.LittleEndian.Uint64(b[:8])
		return Double(math.Float64frombits(bits)), 8, nil
	case TypeString, TypeJavaScript, TypeSymbol:
		s, n, err := decodeString(b)
		if err != nil {
			return Value{}, 0, err
		}
		switch tag {
		case TypeJavaScript:
			return JavaScript(s), n, nil
		case TypeSymbol:
			return Symbol(s), n, nil
		default:
			return String(s), n, nil
		}
	case TypeEmbeddedDocument:
		d, n, err := decodeDocument(b, 0, false)
		if err != nil {
			return Value{}, 0, err
		}
		return EmbeddedDocument(d), n, nil
	case TypeArray:
		d, n, err := decodeDocument(b, 0, false)
		if err != nil {
			return Value{}, 0, err
		}
		return Array(d), n, nil
	case TypeBinary:
		if len(b) < 5 {
			return Value{}, 0, shortRead("binary")
		}
		length := int32(binary.LittleEndian.Uint32(b[0:4]))
		if length < 0 || int(length) > len(b)-5 {
			return Value{}, 0, shortRead("binary")
		}
		subtype := BinarySubtype(b[4])
		data := make([]byte, length)
		copy(data, b[5:5+length])
		return BinaryValue(Binary{Subtype: subtype, Data: data}), 5 + int(length), nil
	case TypeUndefined:
		return Undefined(), 0, nil
	case TypeObjectID:
		if len(b) < 12 {
			return Value{}, 0, shortRead("objectID")
		}
		var id ObjectID
		copy(id[:], b[:12])
		return ObjectIDValue(id), 12, nil
	case TypeBoolean:
		if len(b) < 1 {
			return Value{}, 0, shortRead("boolean")
		}
		return Boolean(b[0] != 0x00), 1, nil
	case TypeDateTime:
		if len(b) < 8 {
			return Value{}, 0, shortRead("datetime")
		}
		return DateTime(int64(binary.LittleEndian.Uint64(b[:8]))), 8, nil
	case TypeNull:
		return Null(), 0, nil
	case TypeRegex:
		patEnd, err := findCStringEnd(b, 0, len(b))
		if err != nil {
			return Value{}, 0, err
		}
		pattern := string(b[:patEnd])
		optStart := patEnd + 1
		optEnd, err := findCStringEnd(b, optStart, len(b))
		if err != nil {
			return Value{}, 0, err
		}
		options := string(b[optStart:optEnd])
		return RegexValue(pattern, options), optEnd + 1, nil
	case TypeDBPointer:
		ns, n, err := decodeString(b)
		if err != nil {
			return Value{}, 0, err
		}
		if len(b) < n+12 {
			return Value{}, 0, shortRead("dbPointer")
		}
		var id ObjectID
		copy(id[:], b[n:n+12])
		return DBPointerValue(ns, id), n + 12, nil
	case TypeCodeWithScope:
		if len(b) < 4 {
			return Value{}, 0, shortRead("codeWithScope")
		}
		total := int32(binary.LittleEndian.Uint32(b[0:4]))
		if total < 4 || int(total) > len(b) {
			return Value{}, 0, shortRead("codeWithScope")
		}
		code, n, err := decodeString(b[4:])
		if err != nil {
			return Value{}, 0, err
		}
		scope, m, err := decodeDocument(b[4+n:int(total)], 0, false)
		if err != nil {
			return Value{}, 0, err
		}
		_ = m
		return CodeWithScopeValue(code, scope), int(total), nil
	case TypeInt32:
		if len(b) < 4 {
			return Value{}, 0, shortRead("int32")
		}
		return Int32(int32(binary.LittleEndian.Uint32(b[:4]))), 4, nil
	case TypeTimestamp:
		if len(b) < 8 {
			return Value{}, 0, shortRead("timestamp")
		}
		packed := binary.LittleEndian.Uint64(b[:8])
		return TimestampValue(Timestamp{T: uint32(packed >> 32), I: uint32(packed)}), 8, nil
	case TypeInt64:
		if len(b) < 8 {
			return Value{}, 0, shortRead("int64")
		}
		return Int64(int64(binary.LittleEndian.Uint64(b[:8]))), 8, nil
	case TypeMinKey:
		return MinKey(), 0, nil
	case TypeMaxKey:
		return MaxKey(), 0, nil
	default:
		return Value{}, 0, FramingError{Reason: fmt.Sprintf("unknown element type tag %#x", byte(tag))}
	}
}

func decodeString(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, shortRead("string length")
	}
	length := int32(binary.LittleEndian.Uint32(b[0:4]))
	if length < 1 || int(length) > len(b)-4 {
		return "", 0, shortRead("string")
	}
	if b[4+length-1] != 0x00 {
		return "", 0, FramingError{Reason: "string missing trailing NUL"}
	}
	return string(b[4 : 4+length-1]), 4 + int(length), nil
}

func shortRead(what string) error {
	return FramingError{Reason: fmt.Sprintf("buffer too short decoding %s", what)}
}
