/**
 * Copyright 2026 Mia srl
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"mtls-gateway/entities"
	"mtls-gateway/services/credentials"
)

type TransportErrorKind string

const (
	HandshakeFailed TransportErrorKind = "HandshakeFailed"
	Unreachable     TransportErrorKind = "Unreachable"
)

type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var (
	ErrMissingKeyPair = errors.New("client certificate is required to build an mTLS client")
	ErrInvalidRootCAs = errors.New("no certificate found in upstream CA bundle")
)

type Options struct {
	Timeout time.Duration
	// RootCAs replaces the system pool when set.
	RootCAs *x509.CertPool
	// WithoutClientCertificate builds a plain TLS client, used by the basic
	// auth token flow.
	WithoutClientCertificate bool
}

// NewClient returns an HTTPS client presenting the material key pair. Server
// certificate verification is always enabled.
func NewClient(material entities.CredentialMaterial, opts Options) (*http.Client, error) {
	tlsConfig := &tls.Config{
		RootCAs:    opts.RootCAs,
		MinVersion: tls.VersionTLS12,
	}

	if !opts.WithoutClientCertificate {
		if !material.HasKeyPair() {
			return nil, ErrMissingKeyPair
		}
		tlsConfig.Certificates = []tls.Certificate{material.KeyPair}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	if opts.Timeout > 0 {
		transport.TLSHandshakeTimeout = opts.Timeout
		transport.ResponseHeaderTimeout = opts.Timeout
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// RootCAsFromPEM builds a pool with the system roots plus the given bundle,
// which may be PEM text or base64 encoded PEM.
func RootCAsFromPEM(raw string) (*x509.CertPool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	bundle, err := credentials.DecodePEM(raw)
	if err != nil {
		return nil, fmt.Errorf("upstream CA bundle: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM([]byte(bundle)) {
		return nil, ErrInvalidRootCAs
	}
	return pool, nil
}

// ClassifyError maps an error returned by http.Client.Do to a TransportError.
func ClassifyError(err error) *TransportError {
	if err == nil {
		return nil
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	if IsHandshakeFailure(err) {
		return &TransportError{Kind: HandshakeFailed, Err: err}
	}
	return &TransportError{Kind: Unreachable, Err: err}
}

func IsHandshakeFailure(err error) bool {
	var (
		verificationErr *tls.CertificateVerificationError
		unknownAuthErr  x509.UnknownAuthorityError
		hostnameErr     x509.HostnameError
		invalidCertErr  x509.CertificateInvalidError
		recordHeaderErr tls.RecordHeaderError
		opErr           *net.OpError
	)

	switch {
	case errors.As(err, &verificationErr),
		errors.As(err, &unknownAuthErr),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidCertErr),
		errors.As(err, &recordHeaderErr):
		return true
	case errors.As(err, &opErr) && opErr.Op == "remote error":
		// alert sent by the server, e.g. bad or missing client certificate
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}

// IsConnectionFailure reports failures happening before the request reached
// the upstream, which are safe to retry for idempotent methods.
func IsConnectionFailure(err error) bool {
	if err == nil || IsHandshakeFailure(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}

	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "server closed idle connection")
}
