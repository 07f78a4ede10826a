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

package apis

import (
	"fmt"
	"net/http"
	"path"

	"mtls-gateway/apis/gateway"
	"mtls-gateway/apis/status_routes"
	"mtls-gateway/internal/config"
	"mtls-gateway/internal/metrics"

	"github.com/gorilla/mux"
	glogrus "github.com/mia-platform/glogger/v4/loggers/logrus"
	gmux "github.com/mia-platform/glogger/v4/middleware/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const serviceName = "mtls-gateway"

func SetupRouter(log *logrus.Logger, env config.EnvironmentVariables, deps gateway.Dependencies, ready status_routes.ReadinessCheck) http.Handler {
	router := mux.NewRouter()

	status_routes.SetupRoutes(router, serviceName, env.ServiceVersion, ready)

	serviceRouter := router
	if env.ServicePrefix != "" && env.ServicePrefix != "/" {
		serviceRouter = router.PathPrefix(fmt.Sprintf("%s/", path.Clean(env.ServicePrefix))).Subrouter()
	}

	SetupMiddlewares(serviceRouter, log)

	gateway.SetupRoutes(serviceRouter, env, deps)

	return metrics.WithLatencyTracking(corsHandler(optionsFallback(router)))
}

func SetupMiddlewares(router *mux.Router, log *logrus.Logger) {
	middlewareLog := glogrus.GetLogger(logrus.NewEntry(log))
	router.Use(gmux.RequestMiddlewareLogger(middlewareLog, []string{"/-/"}))
}

// corsHandler answers CORS preflight requests for every route and decorates
// actual responses with the allowed origin.
func corsHandler(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       gateway.AllowedMethods,
		AllowedHeaders:       gateway.AllowedHeaders,
		OptionsSuccessStatus: http.StatusNoContent,
	}).Handler(next)
}

// optionsFallback answers OPTIONS requests that are not CORS preflights.
func optionsFallback(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			gateway.PreflightHandler(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
