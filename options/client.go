// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package options provides the programmatic, chainable configuration
// surface for bootstrapping a Topology, mirroring the reference
// driver's own Client().ApplyURI().SetXxx().Validate() builder shape.
package options

import (
	"context"
	"fmt"
	"time"

	"github.com/igreenfield/mongodb-async-driver/connection"
	"github.com/igreenfield/mongodb-async-driver/connstring"
	"github.com/igreenfield/mongodb-async-driver/internal/address"
	"github.com/igreenfield/mongodb-async-driver/internal/auth"
	"github.com/igreenfield/mongodb-async-driver/readpref"
	"github.com/igreenfield/mongodb-async-driver/topology"
)

// ClientOptions is the accumulated, validated configuration a
// ClientOptionsBuilder produces.
type ClientOptions struct {
	Hosts          []string
	AppName        string
	ReplicaSetName string

	ReadPreference *readpref.ReadPref

	ConnectTimeout         time.Duration
	SocketTimeout          time.Duration
	ServerSelectionTimeout time.Duration

	AuthSource    string
	AuthMechanism string
	Username      string
	Password      string

	TLSConfig *connection.TLSConfig
}

// ClientOptionsBuilder accumulates settings from ApplyURI and the SetXxx
// methods, deferring any parse error to Validate so calls can be
// chained without checking an error after each one.
type ClientOptionsBuilder struct {
	ClientOptions *ClientOptions
	err           error
}

// Client returns an empty builder.
func Client() *ClientOptionsBuilder {
	return &ClientOptionsBuilder{ClientOptions: &ClientOptions{}}
}

// ApplyURI parses uri and merges every recognized option into the
// builder. A parse error is recorded and returned by a later Validate
// call rather than here, so ApplyURI stays chainable; a second ApplyURI
// call after a failed one is a no-op, matching the reference driver's
// own "don't overwrite previous errors" rule.
func (b *ClientOptionsBuilder) ApplyURI(uri string) *ClientOptionsBuilder {
	if b.err != nil {
		return b
	}
	cs, err := connstring.Parse(uri)
	if err != nil {
		b.err = fmt.Errorf("error parsing uri: %w", err)
		return b
	}

	co := b.ClientOptions
	co.Hosts = cs.Hosts
	co.ReplicaSetName = cs.ReplicaSet
	co.AppName = cs.AppName
	co.AuthSource = cs.AuthSource
	co.AuthMechanism = cs.AuthMechanism
	co.Username = cs.Username
	co.Password = cs.Password
	if cs.ConnectTimeoutMS > 0 {
		co.ConnectTimeout = time.Duration(cs.ConnectTimeoutMS) * time.Millisecond
	}
	if cs.SocketTimeoutMS > 0 {
		co.SocketTimeout = time.Duration(cs.SocketTimeoutMS) * time.Millisecond
	}
	if cs.ServerSelectionTimeoutMS > 0 {
		co.ServerSelectionTimeout = time.Duration(cs.ServerSelectionTimeoutMS) * time.Millisecond
	}
	if len(cs.ReadPreferenceTags) > 0 || cs.ReadPreference != readpref.PrimaryMode {
		co.ReadPreference = &readpref.ReadPref{Mode: cs.ReadPreference, TagSets: cs.ReadPreferenceTags}
	}
	return b
}

// SetAppName overrides the application name reported during the
// handshake.
func (b *ClientOptionsBuilder) SetAppName(name string) *ClientOptionsBuilder {
	b.ClientOptions.AppName = name
	return b
}

// SetReplicaSetName overrides the expected replica-set name.
func (b *ClientOptionsBuilder) SetReplicaSetName(name string) *ClientOptionsBuilder {
	b.ClientOptions.ReplicaSetName = name
	return b
}

// SetReadPreference overrides the default read preference.
func (b *ClientOptionsBuilder) SetReadPreference(rp *readpref.ReadPref) *ClientOptionsBuilder {
	b.ClientOptions.ReadPreference = rp
	return b
}

// SetConnectTimeout overrides connectTimeoutMS.
func (b *ClientOptionsBuilder) SetConnectTimeout(d time.Duration) *ClientOptionsBuilder {
	b.ClientOptions.ConnectTimeout = d
	return b
}

// SetSocketTimeout overrides socketTimeoutMS.
func (b *ClientOptionsBuilder) SetSocketTimeout(d time.Duration) *ClientOptionsBuilder {
	b.ClientOptions.SocketTimeout = d
	return b
}

// SetServerSelectionTimeout overrides serverSelectionTimeoutMS.
func (b *ClientOptionsBuilder) SetServerSelectionTimeout(d time.Duration) *ClientOptionsBuilder {
	b.ClientOptions.ServerSelectionTimeout = d
	return b
}

// SetAuth overrides the authentication target and credentials.
func (b *ClientOptionsBuilder) SetAuth(source, mechanism, username, password string) *ClientOptionsBuilder {
	co := b.ClientOptions
	co.AuthSource, co.AuthMechanism, co.Username, co.Password = source, mechanism, username, password
	return b
}

// SetTLSConfig enables TLS using cfg.
func (b *ClientOptionsBuilder) SetTLSConfig(cfg *connection.TLSConfig) *ClientOptionsBuilder {
	b.ClientOptions.TLSConfig = cfg
	return b
}

// Validate returns any error recorded by ApplyURI, or reports that no
// host was ever named.
func (b *ClientOptionsBuilder) Validate() error {
	if b.err != nil {
		return b.err
	}
	if len(b.ClientOptions.Hosts) == 0 {
		return fmt.Errorf("options: at least one host is required")
	}
	return nil
}

// Seeds returns the bootstrap seed addresses named by Hosts.
func (co *ClientOptions) Seeds() []address.Address {
	seeds := make([]address.Address, len(co.Hosts))
	for i, h := range co.Hosts {
		seeds[i] = address.Canonicalize(h)
	}
	return seeds
}

// Connect bootstraps a Topology from the accumulated options, passing
// ReplicaSetName through to Bootstrap so a connection string's
// replicaSet option is actually enforced rather than merely recorded.
func (co *ClientOptions) Connect(ctx context.Context) (topology.Topology, error) {
	return topology.Bootstrap(ctx, co.Seeds(), co.ReplicaSetName, co.ConnectionOptions()...)
}

// ConnectionOptions translates the accumulated settings into the
// connection.Option slice topology.Bootstrap consumes.
func (co *ClientOptions) ConnectionOptions() []connection.Option {
	var opts []connection.Option
	if co.AppName != "" {
		opts = append(opts, connection.WithAppName(co.AppName))
	}
	if co.ConnectTimeout > 0 {
		opts = append(opts, connection.WithConnectTimeout(co.ConnectTimeout))
	}
	if co.SocketTimeout > 0 {
		opts = append(opts, connection.WithReadTimeout(co.SocketTimeout), connection.WithWriteTimeout(co.SocketTimeout))
	}
	if co.TLSConfig != nil {
		opts = append(opts, connection.WithTLSConfig(co.TLSConfig))
	}
	if co.Username != "" {
		opts = append(opts, connection.WithCredential(&auth.Credential{
			Source:      co.AuthSource,
			Username:    co.Username,
			Password:    co.Password,
			PasswordSet: co.Password != "",
			Mechanism:   co.AuthMechanism,
		}))
	}
	return opts
}
