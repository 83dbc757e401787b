// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"

	"github.com/youmark/pkcs8"
)

// Dialer is used to make network connections. The core demands only a
// duplex byte stream, never a TLS implementation of its own — TLS is
// one Dialer/TLSConfig combination among others.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc adapts an ordinary function to a Dialer.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext implements Dialer.
func (df DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return df(ctx, network, address)
}

// DefaultDialer is the Dialer used when no WithDialer option is given.
var DefaultDialer Dialer = &net.Dialer{}

// TLSConfig wraps a *tls.Config plus the loader used to build one from PEM
// material, including client certificates whose private key is encrypted
// (PKCS#8) — the one piece of TLS setup this package takes on, since the
// standard library has no such loader and the byte stream underneath is
// otherwise opaque to the core.
type TLSConfig struct {
	*tls.Config
}

// NewTLSConfig returns an empty TLSConfig ready for AddCACertFromFile/
// AddClientCertFromFile calls.
func NewTLSConfig() *TLSConfig {
	return &TLSConfig{Config: &tls.Config{MinVersion: tls.VersionTLS12}}
}

// AddCACertFromFile adds a root CA certificate from a PEM file to cfg.
func (cfg *TLSConfig) AddCACertFromFile(caFile string) error {
	data, err := os.ReadFile(caFile)
	if err != nil {
		return fmt.Errorf("connection: read CA file: %w", err)
	}
	pool := cfg.RootCAs
	if pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(data) {
		return fmt.Errorf("connection: no certificates found in %s", caFile)
	}
	cfg.RootCAs = pool
	return nil
}

// AddClientCertFromFile loads a client certificate and key pair from a
// combined PEM file. If the private key is encrypted, keyPassword decrypts
// it via github.com/youmark/pkcs8.
func (cfg *TLSConfig) AddClientCertFromFile(certKeyFile, keyPassword string) error {
	data, err := os.ReadFile(certKeyFile)
	if err != nil {
		return fmt.Errorf("connection: read client cert file: %w", err)
	}

	var certBlocks, keyBlocks [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			certBlocks = append(certBlocks, pem.EncodeToMemory(block))
		default:
			keyBlocks = append(keyBlocks, pem.EncodeToMemory(block))
		}
	}
	if len(certBlocks) == 0 || len(keyBlocks) == 0 {
		return fmt.Errorf("connection: %s must contain a certificate and a private key", certKeyFile)
	}

	var certPEM []byte
	for _, b := range certBlocks {
		certPEM = append(certPEM, b...)
	}

	keyDER, _ := pem.Decode(keyBlocks[0])
	if keyPassword != "" {
		key, err := pkcs8.ParsePrivateKey(keyDER.Bytes, []byte(keyPassword))
		if err != nil {
			return fmt.Errorf("connection: decrypt private key: %w", err)
		}
		keyDERBytes, err := pkcs8.ConvertPrivateKeyToPKCS8(key)
		if err != nil {
			return fmt.Errorf("connection: re-encode private key: %w", err)
		}
		keyBlocks[0] = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDERBytes})
	}

	var keyPEM []byte
	for _, b := range keyBlocks {
		keyPEM = append(keyPEM, b...)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("connection: build client key pair: %w", err)
	}
	cfg.Certificates = append(cfg.Certificates, cert)
	return nil
}
