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

package status_routes

import (
	"net/http"

	apihelpers "mtls-gateway/apis/helpers"
	"mtls-gateway/internal/metrics"

	"github.com/gorilla/mux"
)

const (
	statusOK = "OK"
	statusKO = "KO"
)

// StatusResponse is the body of the status routes.
type StatusResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ReadinessCheck reports whether the service can serve traffic.
type ReadinessCheck func() bool

func handlerFunc(serviceName, serviceVersion string, check ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{Status: statusOK, Name: serviceName, Version: serviceVersion}
		statusCode := http.StatusOK
		if check != nil && !check() {
			response.Status = statusKO
			statusCode = http.StatusServiceUnavailable
		}
		apihelpers.WriteJSONResponse(w, statusCode, nil, response)
	}
}

// SetupRoutes registers the liveness, readiness and metrics routes.
func SetupRoutes(router *mux.Router, serviceName, serviceVersion string, ready ReadinessCheck) {
	router.HandleFunc("/-/healthz", handlerFunc(serviceName, serviceVersion, nil)).Methods(http.MethodGet)
	router.HandleFunc("/-/ready", handlerFunc(serviceName, serviceVersion, ready)).Methods(http.MethodGet)
	router.HandleFunc("/-/check-up", handlerFunc(serviceName, serviceVersion, ready)).Methods(http.MethodGet)
	router.Handle("/-/metrics", metrics.Handler()).Methods(http.MethodGet)
}
