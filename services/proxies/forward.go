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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mtls-gateway/entities"
	"mtls-gateway/internal/metrics"
	"mtls-gateway/services/allowedpaths"
	"mtls-gateway/services/transport"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const (
	AuthorizationHeader  = "Authorization"
	ContentTypeHeader    = "Content-Type"
	IdempotencyKeyHeader = "Idempotency-Key"

	defaultContentType = "application/json"
	bearerPrefix       = "Bearer "

	proxyOperation       = "proxy"
	defaultRetryInterval = 200 * time.Millisecond
)

// ForwardedHeaders is the complete set of inbound headers sent upstream.
var ForwardedHeaders = []string{AuthorizationHeader, ContentTypeHeader, IdempotencyKeyHeader}

type Forwarder struct {
	client          *http.Client
	paths           allowedpaths.IService
	headersToRedact []string
	retryInterval   time.Duration
}

func NewForwarder(client *http.Client, paths allowedpaths.IService, headersToRedact []string) *Forwarder {
	return &Forwarder{
		client:          client,
		paths:           paths,
		headersToRedact: headersToRedact,
		retryInterval:   defaultRetryInterval,
	}
}

// Forward validates req and sends it to endpoint.BaseURL over the mTLS client.
// Any completed upstream answer is returned as is, whatever its status code.
func (f *Forwarder) Forward(
	ctx context.Context,
	logger *logrus.Entry,
	req entities.ProxyRequest,
	endpoint entities.UpstreamEndpoint,
) (entities.ProxyResponse, error) {
	if err := f.validate(req); err != nil {
		logger.WithField("kind", err.Kind).WithError(err.Err).Warn("request rejected before forwarding")
		metrics.CountRejection(string(err.Kind))
		return entities.ProxyResponse{}, err
	}

	targetURL, err := buildTargetURL(endpoint.BaseURL, req.Path, req.Query)
	if err != nil {
		return entities.ProxyResponse{}, newProxyError(PathNotAllowed, err)
	}

	headers := buildForwardedHeaders(req)
	body := forwardedBody(req)

	logger.WithFields(logrus.Fields{
		"method":         req.Method,
		"upstreamHost":   targetURL.Host,
		"upstreamPath":   targetURL.Path,
		"requestHeaders": RedactHeaders(headers, f.headersToRedact),
		"contentLength":  len(body),
	}).Debug("request to forward prepared")

	operation := func() (entities.ProxyResponse, error) {
		return f.exchange(ctx, logger, req.Method, targetURL.String(), headers, body)
	}

	response, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.retryInterval)),
		backoff.WithMaxTries(maxTries(req.Method)),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithError(err).WithField("retryIn", next).Warn("upstream connection failed, retrying")
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		classified := transport.ClassifyError(err)
		logger.WithField("kind", classified.Kind).WithError(err).Error("failed proxying request to the upstream")
		return entities.ProxyResponse{}, newProxyError(UpstreamUnreachable, classified)
	}

	logger.WithFields(logrus.Fields{
		"responseStatusCode":    response.StatusCode,
		"responseContentType":   response.ContentType,
		"responseContentLength": len(response.Body),
	}).Debug("upstream response relayed")

	return response, nil
}

func (f *Forwarder) validate(req entities.ProxyRequest) *ProxyError {
	if req.Path == "" {
		return newProxyError(MissingPath, ErrMissingPath)
	}

	if err := f.paths.AssertPathAllowed(req.Path); err != nil {
		return newProxyError(PathNotAllowed, err)
	}

	authorization := req.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(authorization, bearerPrefix) || strings.TrimSpace(authorization[len(bearerPrefix):]) == "" {
		return newProxyError(Unauthorized, ErrMissingBearerToken)
	}

	if requiresIdempotencyKey(req.Method) && strings.TrimSpace(req.GetHeader(IdempotencyKeyHeader)) == "" {
		return newProxyError(MissingIdempotencyKey, ErrMissingIdempotencyKey)
	}
	return nil
}

func (f *Forwarder) exchange(
	ctx context.Context,
	logger *logrus.Entry,
	method, target string,
	headers http.Header,
	body []byte,
) (entities.ProxyResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return entities.ProxyResponse{}, backoff.Permanent(fmt.Errorf("failed preparing request: %w", err))
	}
	upstreamReq.Header = headers.Clone()

	start := time.Now()
	res, err := f.client.Do(upstreamReq)
	if err != nil {
		metrics.ObserveUpstream(proxyOperation, 0, time.Since(start))
		if isRetryable(method) && transport.IsConnectionFailure(err) {
			return entities.ProxyResponse{}, err
		}
		return entities.ProxyResponse{}, backoff.Permanent(err)
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	metrics.ObserveUpstream(proxyOperation, res.StatusCode, time.Since(start))
	if err != nil {
		logger.WithError(err).Error("failed reading upstream response body")
		return entities.ProxyResponse{}, backoff.Permanent(err)
	}

	return entities.ProxyResponse{
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get(ContentTypeHeader),
		Body:        responseBody,
	}, nil
}

func buildForwardedHeaders(req entities.ProxyRequest) http.Header {
	headers := http.Header{}
	headers.Set(AuthorizationHeader, req.GetHeader(AuthorizationHeader))

	contentType := req.GetHeader(ContentTypeHeader)
	if contentType == "" {
		contentType = defaultContentType
	}
	headers.Set(ContentTypeHeader, contentType)

	if idempotencyKey := req.GetHeader(IdempotencyKeyHeader); idempotencyKey != "" {
		headers.Set(IdempotencyKeyHeader, idempotencyKey)
	}
	return headers
}

func forwardedBody(req entities.ProxyRequest) []byte {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return nil
	}
	return req.Body
}

// buildTargetURL joins the upstream path to the base URL, keeping any query
// embedded in the path and appending the inbound query parameters.
func buildTargetURL(baseURL, path string, query url.Values) (*url.URL, error) {
	target, err := url.Parse(finalizeTargetBaseURL(baseURL, path))
	if err != nil {
		return nil, err
	}

	if len(query) > 0 {
		merged := target.Query()
		for name, values := range query {
			for _, value := range values {
				merged.Add(name, value)
			}
		}
		target.RawQuery = merged.Encode()
	}
	return target, nil
}

// finalizeTargetBaseURL concatenates the base url with the path to proxy,
// preventing `//` between the two parts.
func finalizeTargetBaseURL(targetBaseURL string, pathToProxy string) string {
	if pathToProxy == "" {
		return targetBaseURL
	}

	baseUrlToJoin := targetBaseURL
	if !strings.HasSuffix(targetBaseURL, "/") && !strings.HasPrefix(pathToProxy, "/") {
		baseUrlToJoin += "/"
	}

	finalPath := pathToProxy
	if strings.HasSuffix(targetBaseURL, "/") && strings.HasPrefix(pathToProxy, "/") {
		finalPath = strings.TrimPrefix(pathToProxy, "/")
	}
	return fmt.Sprintf("%s%s", baseUrlToJoin, finalPath)
}

func requiresIdempotencyKey(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isRetryable(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func maxTries(method string) uint {
	if isRetryable(method) {
		return 2
	}
	return 1
}
