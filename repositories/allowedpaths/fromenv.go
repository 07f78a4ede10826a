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

package allowedpaths

import (
	"fmt"
	"strings"

	"mtls-gateway/internal/config"
)

type repositoryFromENV struct {
	prefixes []string
}

var (
	ErrInvalidAllowedPathPrefixNotAbsolute = fmt.Errorf("invalid allowed path prefix: must start with /")
	ErrInvalidAllowedPathPrefixTraversal   = fmt.Errorf("invalid allowed path prefix: must not contain .. segments")
)

func FromENV(env config.EnvironmentVariables) (IAllowedPathsRepository, error) {
	seen := map[string]bool{}
	prefixes := make([]string, 0, len(env.AllowedPathPrefixes))

	for _, prefix := range env.AllowedPathPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "/") {
			return nil, ErrInvalidAllowedPathPrefixNotAbsolute
		}
		for _, segment := range strings.Split(prefix, "/") {
			if segment == ".." {
				return nil, ErrInvalidAllowedPathPrefixTraversal
			}
		}
		if seen[prefix] {
			continue
		}
		seen[prefix] = true
		prefixes = append(prefixes, prefix)
	}

	return repositoryFromENV{prefixes: prefixes}, nil
}

func (r repositoryFromENV) ListAll() []string {
	return append([]string{}, r.prefixes...)
}

func (r repositoryFromENV) CountAll() int {
	return len(r.prefixes)
}
