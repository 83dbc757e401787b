// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package address provides the canonical server-identity string used
// throughout the cluster model and topology dispatchers.
package address

import (
	"net"
	"strings"
)

// DefaultPort is used when an address names a host without a port.
const DefaultPort = "27017"

// Address is a canonical "host:port" server identity. The zero value is
// not a valid address.
type Address string

// Canonicalize lowercases the host, fills in DefaultPort if one is
// missing, and trims surrounding whitespace, so that two different
// spellings of the same endpoint compare equal.
func Canonicalize(s string) Address {
	s = strings.TrimSpace(s)
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		host, port = s, DefaultPort
	}
	if port == "" {
		port = DefaultPort
	}
	return Address(strings.ToLower(host) + ":" + port)
}

// Network reports the address family to dial; always "tcp" for this
// driver, which never speaks to a unix-domain-socket mongod.
func (a Address) Network() string { return "tcp" }

func (a Address) String() string { return string(a) }

// Host returns the host portion of the address.
func (a Address) Host() string {
	host, _, err := net.SplitHostPort(string(a))
	if err != nil {
		return string(a)
	}
	return host
}
