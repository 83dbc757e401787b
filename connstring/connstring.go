// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connstring parses the mongodb:// URI form into its component
// parts. No ecosystem library understands this connection-string
// dialect's comma-separated host list, so parsing is done directly
// against net/url's query decoder plus targeted string splitting,
// matching how the reference driver's own connstring package is built.
package connstring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/readpref"
)

const scheme = "mongodb://"

// ConnString is the parsed form of a mongodb:// URI, holding every
// option spec.md §6 names.
type ConnString struct {
	Hosts    []string
	Database string
	Username string
	Password string

	ReplicaSet string
	SSL        bool

	ReadPreference     readpref.Mode
	ReadPreferenceTags []readpref.TagSet

	W          string
	WTimeoutMS int32
	Journal    bool

	MaxPoolSize int
	MinPoolSize int

	ConnectTimeoutMS         int32
	SocketTimeoutMS          int32
	ServerSelectionTimeoutMS int32

	AuthSource    string
	AuthMechanism string

	AppName string
}

// Parse decodes uri into a ConnString. It accepts exactly the grammar
// spec.md §6 defines: mongodb://[user[:pass]@]host1[:port1][,host2[:port2]...][/database][?opt=val&...].
func Parse(uri string) (*ConnString, error) {
	if !strings.HasPrefix(uri, scheme) {
		return nil, fmt.Errorf("connstring: uri must start with %q", scheme)
	}
	rest := uri[len(scheme):]

	var rawQuery string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rawQuery = rest[i+1:]
		rest = rest[:i]
	}

	var database string
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		database = rest[i+1:]
		rest = rest[:i]
	}

	hostPart := rest
	var username, password string
	if i := strings.LastIndexByte(rest, '@'); i >= 0 {
		cred := rest[:i]
		hostPart = rest[i+1:]
		var err error
		username, password, err = splitCredentials(cred)
		if err != nil {
			return nil, err
		}
	}
	if hostPart == "" {
		return nil, fmt.Errorf("connstring: uri names no host")
	}

	rawHosts := strings.Split(hostPart, ",")
	hosts := make([]string, len(rawHosts))
	for i, h := range rawHosts {
		hosts[i] = string(address.Canonicalize(h))
	}

	cs := &ConnString{Hosts: hosts, Database: database, Username: username, Password: password}

	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("connstring: malformed query: %w", err)
		}
		if err := cs.applyOptions(values); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func splitCredentials(cred string) (username, password string, err error) {
	if i := strings.IndexByte(cred, ':'); i >= 0 {
		username, err = url.QueryUnescape(cred[:i])
		if err != nil {
			return "", "", fmt.Errorf("connstring: malformed username: %w", err)
		}
		password, err = url.QueryUnescape(cred[i+1:])
		if err != nil {
			return "", "", fmt.Errorf("connstring: malformed password: %w", err)
		}
		return username, password, nil
	}
	username, err = url.QueryUnescape(cred)
	if err != nil {
		return "", "", fmt.Errorf("connstring: malformed username: %w", err)
	}
	return username, "", nil
}

func (cs *ConnString) applyOptions(values url.Values) error {
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		v := vals[0]
		switch strings.ToLower(key) {
		case "replicaset":
			cs.ReplicaSet = v
		case "ssl":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("connstring: ssl: %w", err)
			}
			cs.SSL = b
		case "readpreference":
			mode, err := parseReadPreferenceMode(v)
			if err != nil {
				return err
			}
			cs.ReadPreference = mode
		case "readpreferencetags":
			for _, raw := range vals {
				cs.ReadPreferenceTags = append(cs.ReadPreferenceTags, parseTagSet(raw))
			}
		case "w":
			cs.W = v
		case "wtimeoutms":
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("connstring: wtimeoutMS: %w", err)
			}
			cs.WTimeoutMS = int32(n)
		case "journal":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("connstring: journal: %w", err)
			}
			cs.Journal = b
		case "maxpoolsize":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("connstring: maxPoolSize: %w", err)
			}
			cs.MaxPoolSize = n
		case "minpoolsize":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("connstring: minPoolSize: %w", err)
			}
			cs.MinPoolSize = n
		case "connecttimeoutms":
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("connstring: connectTimeoutMS: %w", err)
			}
			cs.ConnectTimeoutMS = int32(n)
		case "sockettimeoutms":
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("connstring: socketTimeoutMS: %w", err)
			}
			cs.SocketTimeoutMS = int32(n)
		case "serverselectiontimeoutms":
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("connstring: serverSelectionTimeoutMS: %w", err)
			}
			cs.ServerSelectionTimeoutMS = int32(n)
		case "authsource":
			cs.AuthSource = v
		case "authmechanism":
			cs.AuthMechanism = v
		case "appname":
			cs.AppName = v
		}
	}
	return nil
}

func parseReadPreferenceMode(v string) (readpref.Mode, error) {
	switch strings.ToLower(v) {
	case "primary":
		return readpref.PrimaryMode, nil
	case "primarypreferred":
		return readpref.PrimaryPreferredMode, nil
	case "secondary":
		return readpref.SecondaryMode, nil
	case "secondarypreferred":
		return readpref.SecondaryPreferredMode, nil
	case "nearest":
		return readpref.NearestMode, nil
	default:
		return 0, fmt.Errorf("connstring: unrecognized readPreference %q", v)
	}
}

// parseTagSet parses one "k1:v1,k2:v2" alternative. A malformed pair
// (missing ':') is skipped rather than rejecting the whole URI, since a
// tag set is an optional routing refinement, not a structural part of
// the connection string.
func parseTagSet(raw string) readpref.TagSet {
	ts := readpref.TagSet{}
	for _, pair := range strings.Split(raw, ",") {
		if i := strings.IndexByte(pair, ':'); i >= 0 {
			ts[pair[:i]] = pair[i+1:]
		}
	}
	return ts
}
