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
	"net/http"
	"net/url"
	"path"
	"strings"

	"mtls-gateway/internal/config"
)

const pathQueryParameter = "path"

// extractUpstreamPath returns the upstream path and the query parameters to
// forward along with it. The `path` query parameter wins over the route suffix.
func extractUpstreamPath(r *http.Request, env config.EnvironmentVariables) (string, url.Values) {
	query := r.URL.Query()
	fromQuery := query.Get(pathQueryParameter)
	query.Del(pathQueryParameter)

	if fromQuery != "" {
		return fromQuery, query
	}

	requestPath := r.URL.EscapedPath()
	if env.ServicePrefix != "" && env.ServicePrefix != "/" {
		requestPath = strings.TrimPrefix(requestPath, path.Clean(env.ServicePrefix))
	}

	upstreamPath := strings.TrimPrefix(requestPath, env.ProxyRoutePrefix)
	if upstreamPath == "/" {
		upstreamPath = ""
	}
	return upstreamPath, query
}
