// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package bson

// Element is a single named, typed member of a Document: the C-string key
// and its Value.
type Element struct {
	key   string
	value Value
}

// Key returns the element's name.
func (e Element) Key() string { return e.key }

// Value returns the element's value.
func (e Element) Value() Value { return e.value }

// EC (element constructors) mirrors the teacher's bson.EC helper group:
// short, composable constructors for building documents without
// allocating an intermediate Value in the caller.
var EC elementConstructors

type elementConstructors struct{}

func (elementConstructors) Double(key string, f float64) Element { return Element{key, Double(f)} }
func (elementConstructors) String(key, s string) Element         { return Element{key, String(s)} }
func (elementConstructors) SubDocument(key string, d *Document) Element {
	return Element{key, EmbeddedDocument(d)}
}
func (elementConstructors) Array(key string, d *Document) Element { return Element{key, Array(d)} }
func (elementConstructors) ArrayFromElements(key string, values ...Value) Element {
	arr := NewDocument()
	for i, v := range values {
		arr.appendRaw(itoa(i), v)
	}
	return Element{key, Array(arr)}
}
func (elementConstructors) Binary(key string, b Binary) Element { return Element{key, BinaryValue(b)} }
func (elementConstructors) ObjectID(key string, id ObjectID) Element {
	return Element{key, ObjectIDValue(id)}
}
func (elementConstructors) Boolean(key string, b bool) Element { return Element{key, Boolean(b)} }
func (elementConstructors) DateTime(key string, millis int64) Element {
	return Element{key, DateTime(millis)}
}
func (elementConstructors) Null(key string) Element { return Element{key, Null()} }
func (elementConstructors) Regex(key, pattern, options string) Element {
	return Element{key, RegexValue(pattern, options)}
}
func (elementConstructors) Int32(key string, i int32) Element { return Element{key, Int32(i)} }
func (elementConstructors) Int64(key string, i int64) Element { return Element{key, Int64(i)} }
func (elementConstructors) Timestamp(key string, ts Timestamp) Element {
	return Element{key, TimestampValue(ts)}
}

// VC (value constructors) mirrors the teacher's bson.VC helper group, used
// when building array elements whose keys are index strings.
var VC valueConstructors

type valueConstructors struct{}

func (valueConstructors) Document(d *Document) Value { return EmbeddedDocument(d) }
func (valueConstructors) String(s string) Value      { return String(s) }
func (valueConstructors) Int32(i int32) Value        { return Int32(i) }
func (valueConstructors) Int64(i int64) Value        { return Int64(i) }

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	n := i
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}
