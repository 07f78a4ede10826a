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
	"errors"
	"net/url"
	"strings"

	"mtls-gateway/internal/pathmatcher"
	repository "mtls-gateway/repositories/allowedpaths"
)

var (
	ErrPathNotAllowed = errors.New("specified upstream path is not allowed")
	ErrInvalidPath    = errors.New("specified upstream path is not a relative path")
)

type IService interface {
	AssertPathAllowed(path string) error
}

type service struct {
	repository repository.IAllowedPathsRepository
	prefixes   *pathmatcher.Node
}

func New(repository repository.IAllowedPathsRepository) IService {
	return &service{
		repository: repository,
		prefixes:   pathmatcher.New(repository.ListAll()),
	}
}

// AssertPathAllowed checks that path stays below the upstream base URL and,
// when prefixes are configured, that its leading segments match one of them.
func (s service) AssertPathAllowed(path string) error {
	upstreamPath, err := normalizePath(path)
	if err != nil {
		return err
	}

	if s.repository.CountAll() == 0 {
		return nil
	}

	if s.prefixes.Match(upstreamPath) {
		return nil
	}
	return ErrPathNotAllowed
}

func normalizePath(path string) (string, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return "", ErrInvalidPath
	}

	parsed, err := url.Parse(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	if parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return "", ErrInvalidPath
	}

	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == ".." || segment == "." {
			return "", ErrInvalidPath
		}
	}
	return parsed.Path, nil
}
