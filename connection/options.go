// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"time"

	"github.com/igreenfield/mongodb-async-driver/internal/auth"
	"github.com/igreenfield/mongodb-async-driver/internal/compressor"
)

type config struct {
	appName        string
	dialer         Dialer
	tlsConfig      *TLSConfig
	handshaker     Handshaker
	credential     *auth.Credential
	idleTimeout    time.Duration
	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	lifeTimeout    time.Duration
	compressors    []compressor.Compressor
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{dialer: DefaultDialer}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Option configures a RawConn or Session at construction time.
type Option func(*config) error

// WithAppName sets the application name reported during the handshake.
func WithAppName(name string) Option {
	return func(c *config) error { c.appName = name; return nil }
}

// WithDialer overrides the Dialer used to establish the byte stream.
func WithDialer(d Dialer) Option {
	return func(c *config) error { c.dialer = d; return nil }
}

// WithTLSConfig enables TLS using cfg.
func WithTLSConfig(cfg *TLSConfig) Option {
	return func(c *config) error { c.tlsConfig = cfg; return nil }
}

// WithHandshaker sets the handshake run immediately after the byte
// stream (and optional TLS) is established.
func WithHandshaker(h Handshaker) Option {
	return func(c *config) error { c.handshaker = h; return nil }
}

// WithCredential authenticates the connection with cred immediately
// after the handshake, before Session starts multiplexing it.
func WithCredential(cred *auth.Credential) Option {
	return func(c *config) error { c.credential = cred; return nil }
}

// WithIdleTimeout sets the duration of inactivity after which a
// connection reports itself Expired.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error { c.idleTimeout = d; return nil }
}

// WithConnectTimeout bounds dialing and the handshake (connectTimeoutMS).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *config) error { c.connectTimeout = d; return nil }
}

// WithReadTimeout bounds a single ReadWireMessage call (socketTimeoutMS).
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) error { c.readTimeout = d; return nil }
}

// WithWriteTimeout bounds a single WriteWireMessage call (socketTimeoutMS).
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) error { c.writeTimeout = d; return nil }
}

// WithLifetimeTimeout caps the total lifetime of a connection regardless
// of activity.
func WithLifetimeTimeout(d time.Duration) Option {
	return func(c *config) error { c.lifeTimeout = d; return nil }
}

// WithCompressors sets the client's compressor preference order,
// negotiated against the server's advertised list during the handshake.
func WithCompressors(compressors ...compressor.Compressor) Option {
	return func(c *config) error { c.compressors = compressors; return nil }
}
