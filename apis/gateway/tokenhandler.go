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

	glogrus "github.com/mia-platform/glogger/v4/loggers/logrus"
)

// TokenHandler exchanges the gateway mTLS identity for an access token and
// relays the token endpoint answer verbatim.
func TokenHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := glogrus.FromContext(r.Context())

		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, logger, r, http.MethodPost)
			return
		}

		response, err := deps.Broker.FetchToken(r.Context(), logger, deps.Endpoint, deps.Material)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		logger.WithField("statusCode", response.StatusCode).Info("token response relayed")
		writeUpstreamResponse(w, response)
	}
}
