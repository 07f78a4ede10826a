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
	"errors"
	"fmt"
	"net/http"
)

type ProxyErrorKind string

const (
	MissingPath           ProxyErrorKind = "MissingPath"
	PathNotAllowed        ProxyErrorKind = "PathNotAllowed"
	Unauthorized          ProxyErrorKind = "Unauthorized"
	MissingIdempotencyKey ProxyErrorKind = "MissingIdempotencyKey"
	UpstreamUnreachable   ProxyErrorKind = "UpstreamUnreachable"
)

var (
	ErrMissingPath           = errors.New("upstream path is required")
	ErrMissingBearerToken    = errors.New("bearer token is required in the Authorization header")
	ErrMissingIdempotencyKey = errors.New("Idempotency-Key header is required for this method")
)

var statusByKind = map[ProxyErrorKind]int{
	MissingPath:           http.StatusBadRequest,
	PathNotAllowed:        http.StatusForbidden,
	Unauthorized:          http.StatusUnauthorized,
	MissingIdempotencyKey: http.StatusBadRequest,
	UpstreamUnreachable:   http.StatusBadGateway,
}

type ProxyError struct {
	Kind   ProxyErrorKind
	Status int
	Err    error
}

func newProxyError(kind ProxyErrorKind, err error) *ProxyError {
	return &ProxyError{Kind: kind, Status: statusByKind[kind], Err: err}
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// Is matches any *ProxyError carrying the same Kind.
func (e *ProxyError) Is(target error) bool {
	t, ok := target.(*ProxyError)
	return ok && t.Kind == e.Kind
}
