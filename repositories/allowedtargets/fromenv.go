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

package allowedtargets

import (
	"fmt"
	"net/url"
	"strings"

	"mtls-gateway/internal/config"
)

type repositoryFromENV struct {
	allowedURLMap map[string]*url.URL
}

var (
	ErrInvalidAllowedUpstreamURLMissingScheme    = fmt.Errorf("invalid allowed upstream url: missing required schema")
	ErrInvalidAllowedUpstreamURLNotHTTPS         = fmt.Errorf("invalid allowed upstream url: only https is supported")
	ErrInvalidAllowedUpstreamURLMissingHost      = fmt.Errorf("invalid allowed upstream url: missing required hostname")
	ErrInvalidAllowedUpstreamURLPathNotSupported = fmt.Errorf("invalid allowed upstream url: path should not be defined in upstream url")
)

func FromENV(env config.EnvironmentVariables) (IAllowedTargetsRepository, error) {
	allowedMap := map[string]*url.URL{}

	for _, allowedUpstream := range env.AllowedUpstreamURLs {
		allowedUpstream = strings.TrimSpace(allowedUpstream)
		if allowedUpstream == "" {
			continue
		}

		allowedURL, err := url.Parse(allowedUpstream)
		if err != nil {
			return nil, err
		}

		if allowedURL.Scheme == "" {
			return nil, ErrInvalidAllowedUpstreamURLMissingScheme
		}
		if allowedURL.Scheme != "https" {
			return nil, ErrInvalidAllowedUpstreamURLNotHTTPS
		}
		if allowedURL.Host == "" {
			return nil, ErrInvalidAllowedUpstreamURLMissingHost
		}
		if allowedURL.Path != "" {
			return nil, ErrInvalidAllowedUpstreamURLPathNotSupported
		}

		// hostnames are case insensitive
		key := fmt.Sprintf("%s://%s", allowedURL.Scheme, strings.ToLower(allowedURL.Host))
		if allowedMap[key] != nil {
			continue
		}

		allowedMap[key] = allowedURL
	}

	return repositoryFromENV{allowedURLMap: allowedMap}, nil
}

func (r repositoryFromENV) ListAll() []*url.URL {
	v := make([]*url.URL, 0, len(r.allowedURLMap))

	for _, value := range r.allowedURLMap {
		v = append(v, value)
	}

	return v
}

func (r repositoryFromENV) FindOne(baseURL string) *url.URL {
	return r.allowedURLMap[strings.ToLower(baseURL)]
}

func (r repositoryFromENV) CountAll() int {
	return len(r.allowedURLMap)
}
