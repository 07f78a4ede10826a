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

package proxies

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"mtls-gateway/entities"
	"mtls-gateway/internal/config"
	repository "mtls-gateway/repositories/allowedpaths"
	"mtls-gateway/services/allowedpaths"
	"mtls-gateway/services/transport"

	glogrus "github.com/mia-platform/glogger/v4/loggers/logrus"
	"github.com/stretchr/testify/require"
)

const baseURL = "https://matls-clients.api.stage.cora.com.br"

type recordedRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// spyTransport records outbound requests and answers with the queued outcomes.
type spyTransport struct {
	lock      sync.Mutex
	requests  []recordedRequest
	responses []func(*http.Request) (*http.Response, error)
}

func (s *spyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	s.requests = append(s.requests, recordedRequest{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header.Clone(),
		Body:   body,
	})

	if len(s.responses) == 0 {
		return nil, errors.New("unexpected upstream call")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next(req)
}

func (s *spyTransport) calls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.requests)
}

func respond(status int, contentType, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		header := http.Header{}
		if contentType != "" {
			header.Set("Content-Type", contentType)
		}
		return &http.Response{
			StatusCode: status,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

func refuseConnection(*http.Request) (*http.Response, error) {
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
}

func newTestForwarder(t *testing.T, spy *spyTransport, prefixes ...string) *Forwarder {
	t.Helper()

	repo, err := repository.FromENV(config.EnvironmentVariables{AllowedPathPrefixes: prefixes})
	require.NoError(t, err)

	forwarder := NewForwarder(&http.Client{Transport: spy}, allowedpaths.New(repo), nil)
	forwarder.retryInterval = time.Millisecond
	return forwarder
}

func invoiceRequest() entities.ProxyRequest {
	return entities.ProxyRequest{
		Method: http.MethodPost,
		Path:   "/v2/invoices",
		Header: map[string]string{
			"authorization":   "Bearer T",
			"Idempotency-Key": "k1",
			"Content-Type":    "application/json",
			"Cookie":          "session=abc",
			"X-Forwarded-For": "10.0.0.1",
		},
		Body: []byte(`{"amount":100}`),
	}
}

func TestForward(t *testing.T) {
	ctx := context.Background()
	logger := glogrus.FromContext(ctx)
	endpoint := entities.UpstreamEndpoint{BaseURL: baseURL}

	t.Run("creates an invoice relaying the upstream answer", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			respond(http.StatusCreated, "application/json", `{"id":"inv_1"}`),
		}}
		forwarder := newTestForwarder(t, spy, "/v2/invoices")

		response, err := forwarder.Forward(ctx, logger, invoiceRequest(), endpoint)
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, response.StatusCode)
		require.Equal(t, "application/json", response.ContentType)
		require.Equal(t, `{"id":"inv_1"}`, string(response.Body))

		require.Equal(t, 1, spy.calls())
		sent := spy.requests[0]
		require.Equal(t, http.MethodPost, sent.Method)
		require.Equal(t, baseURL+"/v2/invoices", sent.URL.String())
		require.Equal(t, []byte(`{"amount":100}`), sent.Body)
	})

	t.Run("forwards exactly the allowed headers", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			respond(http.StatusCreated, "application/json", `{}`),
		}}
		forwarder := newTestForwarder(t, spy)

		_, err := forwarder.Forward(ctx, logger, invoiceRequest(), endpoint)
		require.NoError(t, err)

		expected := http.Header{}
		expected.Set("Authorization", "Bearer T")
		expected.Set("Content-Type", "application/json")
		expected.Set("Idempotency-Key", "k1")
		require.Equal(t, expected, spy.requests[0].Header)
	})

	t.Run("defaults Content-Type to application/json", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			respond(http.StatusOK, "", ``),
		}}
		forwarder := newTestForwarder(t, spy)

		req := invoiceRequest()
		delete(req.Header, "Content-Type")
		_, err := forwarder.Forward(ctx, logger, req, endpoint)
		require.NoError(t, err)
		require.Equal(t, "application/json", spy.requests[0].Header.Get("Content-Type"))
	})

	t.Run("body is forwarded byte for byte", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			respond(http.StatusOK, "text/plain", `ok`),
		}}
		forwarder := newTestForwarder(t, spy)

		body := []byte("{ \"a\" : 1 ,\n\t\"b\":\"è\" }\x00\xff")
		req := invoiceRequest()
		req.Method = http.MethodPut
		req.Body = body
		_, err := forwarder.Forward(ctx, logger, req, endpoint)
		require.NoError(t, err)
		require.Equal(t, body, spy.requests[0].Body)
	})

	t.Run("POST without Idempotency-Key is rejected without upstream calls", func(t *testing.T) {
		spy := &spyTransport{}
		forwarder := newTestForwarder(t, spy)

		req := invoiceRequest()
		delete(req.Header, "Idempotency-Key")
		_, err := forwarder.Forward(ctx, logger, req, endpoint)

		var proxyErr *ProxyError
		require.ErrorAs(t, err, &proxyErr)
		require.Equal(t, MissingIdempotencyKey, proxyErr.Kind)
		require.Equal(t, http.StatusBadRequest, proxyErr.Status)
		require.Equal(t, 0, spy.calls())
	})

	t.Run("DELETE and PATCH require the Idempotency-Key too", func(t *testing.T) {
		for _, method := range []string{http.MethodDelete, http.MethodPatch} {
			spy := &spyTransport{}
			forwarder := newTestForwarder(t, spy)

			req := invoiceRequest()
			req.Method = method
			req.Header["Idempotency-Key"] = "  "
			_, err := forwarder.Forward(ctx, logger, req, endpoint)
			require.ErrorIs(t, err, &ProxyError{Kind: MissingIdempotencyKey}, method)
			require.Equal(t, 0, spy.calls())
		}
	})

	t.Run("path outside the allowed prefixes is rejected without upstream calls", func(t *testing.T) {
		spy := &spyTransport{}
		forwarder := newTestForwarder(t, spy, "/v2/invoices", "/v2/payments")

		req := invoiceRequest()
		req.Method = http.MethodGet
		req.Path = "/v2/secrets"
		_, err := forwarder.Forward(ctx, logger, req, endpoint)

		var proxyErr *ProxyError
		require.ErrorAs(t, err, &proxyErr)
		require.Equal(t, PathNotAllowed, proxyErr.Kind)
		require.Equal(t, http.StatusForbidden, proxyErr.Status)
		require.Equal(t, 0, spy.calls())
	})

	t.Run("path escaping the base url is rejected", func(t *testing.T) {
		for _, path := range []string{"/v2/invoices/../secrets", "https://evil.example.com/v2", "v2/invoices", "//evil.example.com"} {
			spy := &spyTransport{}
			forwarder := newTestForwarder(t, spy)

			req := invoiceRequest()
			req.Path = path
			_, err := forwarder.Forward(ctx, logger, req, endpoint)
			require.ErrorIs(t, err, &ProxyError{Kind: PathNotAllowed}, path)
			require.Equal(t, 0, spy.calls())
		}
	})

	t.Run("missing path", func(t *testing.T) {
		spy := &spyTransport{}
		forwarder := newTestForwarder(t, spy)

		req := invoiceRequest()
		req.Path = ""
		_, err := forwarder.Forward(ctx, logger, req, endpoint)
		require.ErrorIs(t, err, &ProxyError{Kind: MissingPath})
		require.Equal(t, 0, spy.calls())
	})

	t.Run("missing or malformed bearer token", func(t *testing.T) {
		for _, authorization := range []string{"", "Basic abc", "Bearer ", "T"} {
			spy := &spyTransport{}
			forwarder := newTestForwarder(t, spy)

			req := invoiceRequest()
			req.Header["authorization"] = authorization
			_, err := forwarder.Forward(ctx, logger, req, endpoint)

			var proxyErr *ProxyError
			require.ErrorAs(t, err, &proxyErr, authorization)
			require.Equal(t, Unauthorized, proxyErr.Kind)
			require.Equal(t, http.StatusUnauthorized, proxyErr.Status)
			require.Equal(t, 0, spy.calls())
		}
	})

	t.Run("upstream errors are relayed unchanged", func(t *testing.T) {
		for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusInternalServerError, http.StatusServiceUnavailable} {
			spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
				respond(status, "application/problem+json", `{"error":"upstream"}`),
			}}
			forwarder := newTestForwarder(t, spy)

			response, err := forwarder.Forward(ctx, logger, invoiceRequest(), endpoint)
			require.NoError(t, err)
			require.Equal(t, status, response.StatusCode)
			require.Equal(t, "application/problem+json", response.ContentType)
			require.Equal(t, `{"error":"upstream"}`, string(response.Body))
			require.Equal(t, 1, spy.calls())
		}
	})

	t.Run("GET sends no body and keeps query parameters", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			respond(http.StatusOK, "application/json", `[]`),
		}}
		forwarder := newTestForwarder(t, spy)

		req := invoiceRequest()
		req.Method = http.MethodGet
		req.Path = "/v2/invoices?state=OPEN"
		req.Query = url.Values{"page": []string{"2"}}
		delete(req.Header, "Idempotency-Key")
		_, err := forwarder.Forward(ctx, logger, req, endpoint)
		require.NoError(t, err)

		sent := spy.requests[0]
		require.Empty(t, sent.Body)
		require.Equal(t, "/v2/invoices", sent.URL.Path)
		require.Equal(t, "OPEN", sent.URL.Query().Get("state"))
		require.Equal(t, "2", sent.URL.Query().Get("page"))
		require.Empty(t, sent.Header.Get("Idempotency-Key"))
	})

	t.Run("GET is retried once on connection failure", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			refuseConnection,
			respond(http.StatusOK, "application/json", `{"id":"inv_1"}`),
		}}
		forwarder := newTestForwarder(t, spy)

		req := invoiceRequest()
		req.Method = http.MethodGet
		response, err := forwarder.Forward(ctx, logger, req, endpoint)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, response.StatusCode)
		require.Equal(t, 2, spy.calls())
	})

	t.Run("GET gives up after the second connection failure", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			refuseConnection,
			refuseConnection,
			respond(http.StatusOK, "application/json", `{}`),
		}}
		forwarder := newTestForwarder(t, spy)

		req := invoiceRequest()
		req.Method = http.MethodGet
		_, err := forwarder.Forward(ctx, logger, req, endpoint)

		var proxyErr *ProxyError
		require.ErrorAs(t, err, &proxyErr)
		require.Equal(t, UpstreamUnreachable, proxyErr.Kind)
		require.Equal(t, http.StatusBadGateway, proxyErr.Status)
		require.Equal(t, 2, spy.calls())
	})

	t.Run("POST is never retried", func(t *testing.T) {
		spy := &spyTransport{responses: []func(*http.Request) (*http.Response, error){
			refuseConnection,
			respond(http.StatusCreated, "application/json", `{}`),
		}}
		forwarder := newTestForwarder(t, spy)

		_, err := forwarder.Forward(ctx, logger, invoiceRequest(), endpoint)

		var proxyErr *ProxyError
		require.ErrorAs(t, err, &proxyErr)
		require.Equal(t, UpstreamUnreachable, proxyErr.Kind)

		var transportErr *transport.TransportError
		require.ErrorAs(t, err, &transportErr)
		require.Equal(t, transport.Unreachable, transportErr.Kind)
		require.Equal(t, 1, spy.calls())
	})
}

func TestFinalizeTargetBaseURL(t *testing.T) {
	testCases := []struct {
		baseURL  string
		path     string
		expected string
	}{
		{baseURL: "https://host", path: "/v2/invoices", expected: "https://host/v2/invoices"},
		{baseURL: "https://host/", path: "/v2/invoices", expected: "https://host/v2/invoices"},
		{baseURL: "https://host/api", path: "v2", expected: "https://host/api/v2"},
		{baseURL: "https://host/api/", path: "", expected: "https://host/api/"},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.expected, finalizeTargetBaseURL(tc.baseURL, tc.path))
	}
}
