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

package entities

import (
	"net/url"
	"strings"
)

// ProxyRequest is the inbound call as seen by the request proxy. Header keys
// are matched case-insensitively and carry a single value each.
type ProxyRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string
	Body   []byte
}

func (r ProxyRequest) GetHeader(name string) string {
	if value, ok := r.Header[name]; ok {
		return value
	}
	for key, value := range r.Header {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
