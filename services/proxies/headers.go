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
	"net/http"
)

var defaultHeadersToRedact = []string{"Authorization", "Cookie", "Proxy-Authorization", "Set-Cookie", "Www-Authenticate"}

// RedactHeaders returns a copy of headers suitable for logging.
func RedactHeaders(headers http.Header, additionalHeadersToRedact []string) http.Header {
	headersToRedact := append(append([]string{}, defaultHeadersToRedact...), additionalHeadersToRedact...)
	redactedHeaders := headers.Clone()
	for _, headerToRedact := range headersToRedact {
		if redactedHeaders.Get(headerToRedact) != "" {
			redactedHeaders.Set(headerToRedact, "[REDACTED]")
		}
	}
	return redactedHeaders
}
