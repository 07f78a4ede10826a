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

package credentials

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"mtls-gateway/entities"
	"mtls-gateway/internal/config"

	"github.com/sirupsen/logrus"
)

type ConfigErrorKind string

const (
	MissingCertificate ConfigErrorKind = "MissingCertificate"
	MissingKey         ConfigErrorKind = "MissingKey"
	MissingClientId    ConfigErrorKind = "MissingClientId"
	InvalidPemFormat   ConfigErrorKind = "InvalidPemFormat"
)

// ConfigError never embeds secret material in its message.
type ConfigError struct {
	Kind  ConfigErrorKind
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingCertificate = &ConfigError{Kind: MissingCertificate}
	ErrMissingKey         = &ConfigError{Kind: MissingKey}
	ErrMissingClientId    = &ConfigError{Kind: MissingClientId}
	ErrInvalidPemFormat   = &ConfigError{Kind: InvalidPemFormat}
)

const (
	certificateField = "CLIENT_CERTIFICATE"
	privateKeyField  = "CLIENT_PRIVATE_KEY"
	clientIDField    = "CLIENT_ID"
)

var (
	certificateMarkers = regexp.MustCompile(`(?s)-----BEGIN CERTIFICATE-----.+-----END CERTIFICATE-----`)
	privateKeyMarkers  = regexp.MustCompile(`(?s)-----BEGIN ((?:RSA|EC) )?PRIVATE KEY-----.+-----END ((?:RSA|EC) )?PRIVATE KEY-----`)
)

// LoadCredentials reads the client identity from the environment. Certificate
// and key may be stored either as PEM text or as base64 encoded PEM.
func LoadCredentials(env config.EnvironmentVariables) (entities.CredentialMaterial, error) {
	clientID := strings.TrimSpace(env.ClientID)

	if strings.TrimSpace(env.ClientCertificate) == "" {
		return entities.CredentialMaterial{}, &ConfigError{Kind: MissingCertificate, Field: certificateField}
	}
	if strings.TrimSpace(env.ClientPrivateKey) == "" {
		return entities.CredentialMaterial{}, &ConfigError{Kind: MissingKey, Field: privateKeyField}
	}
	if clientID == "" {
		return entities.CredentialMaterial{}, &ConfigError{Kind: MissingClientId, Field: clientIDField}
	}

	certificatePEM, err := DecodePEM(env.ClientCertificate)
	if err != nil {
		return entities.CredentialMaterial{}, &ConfigError{Kind: InvalidPemFormat, Field: certificateField, Err: err}
	}
	if !certificateMarkers.MatchString(certificatePEM) {
		return entities.CredentialMaterial{}, &ConfigError{Kind: InvalidPemFormat, Field: certificateField}
	}

	privateKeyPEM, err := DecodePEM(env.ClientPrivateKey)
	if err != nil {
		return entities.CredentialMaterial{}, &ConfigError{Kind: InvalidPemFormat, Field: privateKeyField, Err: err}
	}
	if !privateKeyMarkers.MatchString(privateKeyPEM) {
		return entities.CredentialMaterial{}, &ConfigError{Kind: InvalidPemFormat, Field: privateKeyField}
	}

	keyPair, err := tls.X509KeyPair([]byte(certificatePEM), []byte(privateKeyPEM))
	if err != nil {
		// tls errors only describe the failure, never the key bytes
		return entities.CredentialMaterial{}, &ConfigError{Kind: InvalidPemFormat, Field: certificateField + "/" + privateKeyField, Err: err}
	}

	return entities.CredentialMaterial{
		CertificatePEM: certificatePEM,
		PrivateKeyPEM:  privateKeyPEM,
		ClientID:       clientID,
		KeyPair:        keyPair,
	}, nil
}

// DecodePEM returns raw unchanged when it already holds PEM text, otherwise
// it base64 decodes it.
func DecodePEM(raw string) (string, error) {
	if strings.Contains(raw, "BEGIN") {
		return raw, nil
	}

	compact := strings.Join(strings.Fields(raw), "")
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "="))
		if err != nil {
			return "", fmt.Errorf("value is neither PEM nor valid base64")
		}
	}
	return string(decoded), nil
}

// Diagnostics describes the configured credentials with presence flags and
// lengths only.
func Diagnostics(env config.EnvironmentVariables) logrus.Fields {
	return logrus.Fields{
		"clientIdPresent":     strings.TrimSpace(env.ClientID) != "",
		"certificatePresent":  env.ClientCertificate != "",
		"certificateLength":   len(env.ClientCertificate),
		"certificateIsPEM":    strings.Contains(env.ClientCertificate, "BEGIN"),
		"privateKeyPresent":   env.ClientPrivateKey != "",
		"privateKeyLength":    len(env.ClientPrivateKey),
		"privateKeyIsPEM":     strings.Contains(env.ClientPrivateKey, "BEGIN"),
		"upstreamCAPresent":   env.UpstreamCA != "",
		"upstreamEnvironment": env.UpstreamEnvironment,
	}
}
