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

package entities

import (
	"crypto/tls"
	"crypto/x509"
	"time"
)

// CredentialMaterial is the client identity presented to the upstream API.
// It is built once at startup and never mutated afterwards.
type CredentialMaterial struct {
	CertificatePEM string
	PrivateKeyPEM  string
	ClientID       string

	// KeyPair is the parsed form of CertificatePEM and PrivateKeyPEM.
	KeyPair tls.Certificate
}

// HasKeyPair reports whether the material carries a parsed certificate chain.
func (c CredentialMaterial) HasKeyPair() bool {
	return len(c.KeyPair.Certificate) > 0
}

// ValidAt reports whether the client certificate can be presented at now,
// that is it is loaded and within its validity window.
func (c CredentialMaterial) ValidAt(now time.Time) bool {
	if !c.HasKeyPair() {
		return false
	}

	leaf := c.KeyPair.Leaf
	if leaf == nil {
		var err error
		if leaf, err = x509.ParseCertificate(c.KeyPair.Certificate[0]); err != nil {
			return false
		}
	}
	return !now.Before(leaf.NotBefore) && !now.After(leaf.NotAfter)
}

type UpstreamEndpoint struct {
	BaseURL  string
	TokenURL string
}
