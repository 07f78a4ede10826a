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

package gateway

import (
	"errors"
	"net/http"
	"strings"

	apihelpers "mtls-gateway/apis/helpers"
	"mtls-gateway/entities"
	"mtls-gateway/internal/metrics"
	auth "mtls-gateway/services/authentication"
	"mtls-gateway/services/proxies"
	"mtls-gateway/services/transport"

	"github.com/sirupsen/logrus"
)

const (
	codeMethodNotAllowed    = "MethodNotAllowed"
	codeInternal            = "Internal"
	codeUpstreamUnreachable = string(proxies.UpstreamUnreachable)

	messageUpstreamUnreachable = "upstream unreachable"
)

// PreflightHandler answers an OPTIONS request with permissive CORS headers.
func PreflightHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(AllowedMethods, ", "))
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(AllowedHeaders, ", "))
	w.WriteHeader(http.StatusNoContent)
}

func writeUpstreamResponse(w http.ResponseWriter, response entities.ProxyResponse) {
	headers := http.Header{}
	if response.ContentType != "" {
		headers.Set("Content-Type", response.ContentType)
	}
	apihelpers.WriteResponse(w, response.StatusCode, headers, response.Body)
}

func writeMethodNotAllowed(w http.ResponseWriter, logger *logrus.Entry, r *http.Request, allowed string) {
	logger.WithField("method", r.Method).Warn("method not allowed")
	metrics.CountRejection(codeMethodNotAllowed)

	headers := http.Header{}
	headers.Set("Allow", allowed+", "+http.MethodOptions)
	apihelpers.WriteJSONResponse(w, http.StatusMethodNotAllowed, headers, apihelpers.RequestError{
		Message: "method not allowed",
		Code:    codeMethodNotAllowed,
	})
}

// writeError maps gateway errors to their JSON answer. Bodies only carry
// fixed messages, never upstream or credential details.
func writeError(w http.ResponseWriter, logger *logrus.Entry, err error) {
	var (
		proxyErr    *proxies.ProxyError
		upstreamErr *auth.UpstreamError
	)

	switch {
	case errors.As(err, &proxyErr) && proxyErr.Kind == proxies.UpstreamUnreachable:
		writeUpstreamUnreachable(w, logger, err)
	case errors.As(err, &proxyErr):
		apihelpers.WriteJSONResponse(w, proxyErr.Status, nil, apihelpers.RequestError{
			Message: proxyErr.Err.Error(),
			Code:    string(proxyErr.Kind),
		})
	case errors.As(err, &upstreamErr):
		writeUpstreamUnreachable(w, logger, err)
	default:
		apihelpers.WriteErrorResponse(w, logger, err, "internal error", codeInternal, http.StatusInternalServerError)
	}
}

func writeUpstreamUnreachable(w http.ResponseWriter, logger *logrus.Entry, err error) {
	code := codeUpstreamUnreachable
	var transportErr *transport.TransportError
	if errors.As(err, &transportErr) && transportErr.Kind == transport.HandshakeFailed {
		code = string(transport.HandshakeFailed)
	}
	apihelpers.WriteErrorResponse(w, logger, err, messageUpstreamUnreachable, code, http.StatusBadGateway)
}
