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

package auth

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mtls-gateway/entities"
	"mtls-gateway/internal/config"
	"mtls-gateway/internal/metrics"
	"mtls-gateway/services/transport"

	"github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed token.schema.json
var tokenResponseSchema string

const accessTokenContentType = "application/x-www-form-urlencoded"

const tokenOperation = "token"

type UpstreamErrorKind string

const Unreachable UpstreamErrorKind = "Unreachable"

// UpstreamError is returned only when the token endpoint could not be
// reached. Completed calls are relayed whatever their status code.
type UpstreamError struct {
	Kind UpstreamErrorKind
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

var ErrInvalidTokenResponse = errors.New("invalid token response")

type AccessToken struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   json.RawMessage `json:"expires_in"`
	Scope       string          `json:"scope,omitempty"`
	TokenType   string          `json:"token_type,omitempty"`
	ObtainedAt  time.Time       `json:"-"`
	ExpiresAt   time.Time       `json:"-"`
}

type BrokerOptions struct {
	AuthMode          string
	BasicClientID     string
	BasicClientSecret string
	ExtraFields       map[string]string
	// Cache is optional; without it every call performs a fresh grant.
	Cache *TokensCache
}

type Broker struct {
	client *http.Client
	opts   BrokerOptions
}

func NewBroker(client *http.Client, opts BrokerOptions) *Broker {
	if opts.AuthMode == "" {
		opts.AuthMode = config.TokenAuthModeTLSClientAuth
	}
	return &Broker{client: client, opts: opts}
}

// FetchToken performs a client credentials grant against endpoint.TokenURL
// and returns the upstream answer untouched.
func (b *Broker) FetchToken(
	ctx context.Context,
	logger *logrus.Entry,
	endpoint entities.UpstreamEndpoint,
	material entities.CredentialMaterial,
) (entities.ProxyResponse, error) {
	clientID := material.ClientID
	if b.opts.AuthMode == config.TokenAuthModeClientSecretBasic {
		clientID = b.opts.BasicClientID
	}
	scope := b.opts.ExtraFields["scope"]

	if b.opts.Cache != nil {
		if response, ok := b.opts.Cache.GetCachedResponse(clientID, scope); ok {
			logger.Debug("access token served from local cache")
			return response, nil
		}
	}

	req, err := b.newTokenRequest(ctx, endpoint.TokenURL, material.ClientID)
	if err != nil {
		return entities.ProxyResponse{}, fmt.Errorf("failed request creation: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"tokenHost": req.URL.Host,
		"authMode":  b.opts.AuthMode,
	}).Info("requesting new access token from token issuer")

	obtainedAt := time.Now().UTC()
	res, err := b.client.Do(req)
	if err != nil {
		metrics.ObserveUpstream(tokenOperation, 0, time.Since(obtainedAt))
		classified := transport.ClassifyError(err)
		logger.WithField("kind", classified.Kind).WithError(err).Error("failed token request")
		return entities.ProxyResponse{}, &UpstreamError{Kind: Unreachable, Err: classified}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	metrics.ObserveUpstream(tokenOperation, res.StatusCode, time.Since(obtainedAt))
	if err != nil {
		logger.WithError(err).Error("failed token response read")
		return entities.ProxyResponse{}, &UpstreamError{Kind: Unreachable, Err: err}
	}

	response := entities.ProxyResponse{
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Body:        body,
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		logger.WithField("statusCode", res.StatusCode).Warn("token issuer answered with an error, relaying it")
		return response, nil
	}

	if b.opts.Cache != nil {
		token, err := ParseAccessToken(body, obtainedAt)
		if err != nil {
			logger.WithError(err).Warn("token response not cached")
			return response, nil
		}
		b.opts.Cache.SetCachedToken(clientID, scope, token, response)
		logger.WithField("tokenExpiration", token.ExpiresAt).Debug("access token cached")
	}

	return response, nil
}

func (b *Broker) newTokenRequest(ctx context.Context, tokenURL, clientID string) (*http.Request, error) {
	data := url.Values{}
	for field, value := range b.opts.ExtraFields {
		data.Set(field, value)
	}
	data.Set("grant_type", "client_credentials")

	basicAuth := b.opts.AuthMode == config.TokenAuthModeClientSecretBasic
	if basicAuth {
		data.Del("client_id")
	} else {
		data.Set("client_id", clientID)
	}
	data.Del("client_secret")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", accessTokenContentType)
	req.Header.Set("Accept", "application/json")

	if basicAuth {
		req.SetBasicAuth(b.opts.BasicClientID, b.opts.BasicClientSecret)
	}
	return req, nil
}

// ParseAccessToken validates a successful token response and computes its
// expiration from obtainedAt.
func ParseAccessToken(body []byte, obtainedAt time.Time) (AccessToken, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(tokenResponseSchema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %s", ErrInvalidTokenResponse, err.Error())
	}
	if !result.Valid() {
		return AccessToken{}, fmt.Errorf("%w: %s", ErrInvalidTokenResponse, result.Errors())
	}

	accessToken := AccessToken{}
	if err := json.Unmarshal(body, &accessToken); err != nil {
		return accessToken, fmt.Errorf("%w: %s", ErrInvalidTokenResponse, err.Error())
	}

	expiresIn, err := unmarshalExpiresIn(accessToken)
	if err != nil {
		return accessToken, err
	}
	if expiresIn <= 0 {
		return accessToken, fmt.Errorf("%w: expires_in must be positive", ErrInvalidTokenResponse)
	}

	accessToken.ObtainedAt = obtainedAt
	accessToken.ExpiresAt = obtainedAt.Add(time.Second * time.Duration(expiresIn))
	return accessToken, nil
}

func unmarshalExpiresIn(accessToken AccessToken) (int, error) {
	var expiresIn int
	if err := json.Unmarshal(accessToken.ExpiresIn, &expiresIn); err != nil {
		var expiresInAsString string
		if err := json.Unmarshal(accessToken.ExpiresIn, &expiresInAsString); err != nil {
			return 0, fmt.Errorf("failed to unmarshal expires_in: %s", err.Error())
		}
		expiresIn, err = strconv.Atoi(expiresInAsString)
		if err != nil {
			return 0, fmt.Errorf("failed to convert expires_in from string to int: %s", err.Error())
		}
	}
	return expiresIn, nil
}
