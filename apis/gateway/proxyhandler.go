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
	"io"
	"net/http"
	"net/url"

	"mtls-gateway/entities"
	"mtls-gateway/internal/config"

	glogrus "github.com/mia-platform/glogger/v4/loggers/logrus"
	"github.com/sirupsen/logrus"
)

// ProxyHandler forwards the request to the upstream path given either in the
// `path` query parameter or after the proxy route prefix.
func ProxyHandler(env config.EnvironmentVariables, deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstreamPath, query := extractUpstreamPath(r, env)
		forward(w, r, deps, upstreamPath, query)
	}
}

// InvoicePaymentHandler is a shortcut towards the invoice payment endpoint.
func InvoicePaymentHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, glogrus.FromContext(r.Context()), r, http.MethodPost)
			return
		}
		forward(w, r, deps, invoicePaymentUpstreamPath, r.URL.Query())
	}
}

func forward(w http.ResponseWriter, r *http.Request, deps Dependencies, upstreamPath string, query url.Values) {
	logger := glogrus.FromContext(r.Context())

	proxyReq, err := newProxyRequest(logger, r, upstreamPath, query)
	if err != nil {
		writeError(w, logger, err)
		return
	}

	response, err := deps.Forwarder.Forward(r.Context(), logger, proxyReq, deps.Endpoint)
	if err != nil {
		writeError(w, logger, err)
		return
	}
	writeUpstreamResponse(w, response)
}

func newProxyRequest(logger *logrus.Entry, r *http.Request, upstreamPath string, query url.Values) (entities.ProxyRequest, error) {
	var body []byte
	if r.Body != nil {
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			logger.WithError(err).Error("failed reading request body")
			return entities.ProxyRequest{}, err
		}
	}

	header := make(map[string]string, len(r.Header))
	for name := range r.Header {
		header[name] = r.Header.Get(name)
	}

	return entities.ProxyRequest{
		Method: r.Method,
		Path:   upstreamPath,
		Query:  query,
		Header: header,
		Body:   body,
	}, nil
}
