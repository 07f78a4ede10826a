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
	"context"
	"net/http"

	"mtls-gateway/entities"
	"mtls-gateway/internal/config"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	TokenRoute          = "/token"
	InvoicePaymentRoute = "/invoices/pay"

	invoicePaymentUpstreamPath = "/v2/invoices/pay"
)

var (
	AllowedMethods = []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}
	AllowedHeaders = []string{"Authorization", "Content-Type", "Idempotency-Key"}
)

type TokenFetcher interface {
	FetchToken(ctx context.Context, logger *logrus.Entry, endpoint entities.UpstreamEndpoint, material entities.CredentialMaterial) (entities.ProxyResponse, error)
}

type RequestForwarder interface {
	Forward(ctx context.Context, logger *logrus.Entry, req entities.ProxyRequest, endpoint entities.UpstreamEndpoint) (entities.ProxyResponse, error)
}

// Dependencies are built once at startup and shared by every request.
type Dependencies struct {
	Material  entities.CredentialMaterial
	Endpoint  entities.UpstreamEndpoint
	Broker    TokenFetcher
	Forwarder RequestForwarder
}

func SetupRoutes(router *mux.Router, env config.EnvironmentVariables, deps Dependencies) {
	router.HandleFunc(TokenRoute, TokenHandler(deps))
	router.HandleFunc(InvoicePaymentRoute, InvoicePaymentHandler(deps))

	proxyHandler := ProxyHandler(env, deps)
	router.Handle(env.ProxyRoutePrefix, proxyHandler)
	router.PathPrefix(env.ProxyRoutePrefix + "/").Handler(proxyHandler)
}
