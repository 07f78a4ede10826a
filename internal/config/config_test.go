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

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"mtls-gateway/entities"

	"gotest.tools/assert"
)

func TestLoadServiceConfiguration(t *testing.T) {
	createFile := func(filename string, content []byte) (*os.File, string, string) {
		t.Helper()
		file, err := os.CreateTemp("", fmt.Sprintf("%s*.json", filename))
		if err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(file.Name(), content, os.ModePerm); err != nil {
			t.Fatal(err)
		}

		tmpDir := strings.Split(file.Name(), filename)[0]
		randomPart := strings.Split(file.Name(), filename)[1]
		return file, strings.TrimSuffix(fmt.Sprintf("./%s%s", filename, randomPart), ".json"), tmpDir
	}

	t.Run(`fails because it does not find config file`, func(t *testing.T) {
		_, err := LoadServiceConfiguration("someInvalid", "filename")
		assert.Assert(t, err != nil, "Unxpected nil error.")
	})

	t.Run(`fails on unknown properties`, func(t *testing.T) {
		file, filename, tmpDir := createFile("testfile", []byte(`{"proxies": []}`))
		defer os.Remove(file.Name())

		_, err := LoadServiceConfiguration(tmpDir, filename)
		assert.Assert(t, err != nil, "An error was expected.")
	})

	t.Run(`fails on path prefix not starting with a slash`, func(t *testing.T) {
		content, err := json.Marshal(ServiceConfig{AllowedPathPrefixes: []string{"v2/invoices"}})
		assert.NilError(t, err)
		file, filename, tmpDir := createFile("testfile", content)
		defer os.Remove(file.Name())

		_, err = LoadServiceConfiguration(tmpDir, filename)
		assert.Assert(t, err != nil, "An error was expected.")
	})

	t.Run(`fails when token extra fields override the grant`, func(t *testing.T) {
		content := []byte(`{"tokenExtraFields": {"grant_type": "password"}}`)
		file, filename, tmpDir := createFile("testfile", content)
		defer os.Remove(file.Name())

		_, err := LoadServiceConfiguration(tmpDir, filename)
		assert.Assert(t, err != nil, "An error was expected.")
	})

	t.Run(`read correctly configuration, validate with json schema and set to config structure`, func(t *testing.T) {
		config, err := LoadServiceConfiguration("../../test-data/", "gateway-config")
		assert.NilError(t, err)
		assert.DeepEqual(t, config.AllowedPathPrefixes, []string{"/v2/invoices", "/v2/payments"})
		assert.DeepEqual(t, config.AllowedUpstreamURLs, []string{"https://matls-clients.api.stage.cora.com.br"})
		assert.Equal(t, config.TokenExtraFields["scope"], "invoice")
	})
}

func TestGetEnvVariables(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		env, err := GetEnvVariables()
		assert.NilError(t, err)
		assert.Equal(t, env.HTTPPort, "8080")
		assert.Equal(t, env.UpstreamEnvironment, UpstreamEnvironmentStaging)
		assert.Equal(t, env.TokenAuthMode, TokenAuthModeTLSClientAuth)
		assert.Equal(t, env.ProxyRoutePrefix, "/proxy")
		assert.Equal(t, env.UpstreamTimeoutSeconds, 30)
		assert.Equal(t, env.IsStaticConfiguration(), false)
	})

	t.Run("parses lists and maps", func(t *testing.T) {
		t.Setenv("ALLOWED_PATH_PREFIXES", "/v2/invoices,/v2/payments")
		t.Setenv("TOKEN_EXTRA_FIELDS", "scope:invoice,audience:cora")

		env, err := GetEnvVariables()
		assert.NilError(t, err)
		assert.DeepEqual(t, env.AllowedPathPrefixes, []string{"/v2/invoices", "/v2/payments"})
		assert.DeepEqual(t, env.TokenExtraFields, map[string]string{"scope": "invoice", "audience": "cora"})
	})

	t.Run("fails with only one of the configuration file variables", func(t *testing.T) {
		t.Setenv("CONFIGURATION_PATH", "/config")

		_, err := GetEnvVariables()
		assert.Error(t, err, "CONFIGURATION_PATH and CONFIGURATION_FILE_NAME must be set together")
	})

	t.Run("fails on invalid service prefix", func(t *testing.T) {
		t.Setenv("SERVICE_PREFIX", "/invalid/prefix")

		_, err := GetEnvVariables()
		assert.Error(t, err, "service prefix does not match the following regex: ^/[a-zA-Z0-9_-]+$")
	})

	t.Run("fails on unknown upstream environment", func(t *testing.T) {
		t.Setenv("UPSTREAM_ENVIRONMENT", "sandbox")

		_, err := GetEnvVariables()
		assert.Error(t, err, `unknown upstream environment "sandbox"`)
	})

	t.Run("fails on basic auth mode without test credentials", func(t *testing.T) {
		t.Setenv("TOKEN_AUTH_MODE", TokenAuthModeClientSecretBasic)

		_, err := GetEnvVariables()
		assert.Error(t, err, "TEST_CLIENT_ID and TEST_CLIENT_SECRET are required with client_secret_basic token auth mode")
	})

	t.Run("accepts basic auth mode with test credentials", func(t *testing.T) {
		t.Setenv("TOKEN_AUTH_MODE", TokenAuthModeClientSecretBasic)
		t.Setenv("TEST_CLIENT_ID", "test-client")
		t.Setenv("TEST_CLIENT_SECRET", "test-secret")

		env, err := GetEnvVariables()
		assert.NilError(t, err)
		assert.Equal(t, env.TestClientID, "test-client")
	})

	t.Run("fails on unknown token auth mode", func(t *testing.T) {
		t.Setenv("TOKEN_AUTH_MODE", "private_key_jwt")

		_, err := GetEnvVariables()
		assert.Error(t, err, `unknown token auth mode "private_key_jwt"`)
	})

	t.Run("fails on non positive upstream timeout", func(t *testing.T) {
		t.Setenv("UPSTREAM_TIMEOUT_SECONDS", "0")

		_, err := GetEnvVariables()
		assert.Error(t, err, "UPSTREAM_TIMEOUT_SECONDS must be greater than zero")
	})
}

func TestUpstreamEndpoint(t *testing.T) {
	t.Run("staging defaults", func(t *testing.T) {
		endpoint, err := EnvironmentVariables{UpstreamEnvironment: UpstreamEnvironmentStaging}.UpstreamEndpoint()
		assert.NilError(t, err)
		assert.DeepEqual(t, endpoint, entities.UpstreamEndpoint{
			BaseURL:  "https://matls-clients.api.stage.cora.com.br",
			TokenURL: "https://matls-clients.api.stage.cora.com.br/oauth/token",
		})
	})

	t.Run("production defaults", func(t *testing.T) {
		endpoint, err := EnvironmentVariables{UpstreamEnvironment: UpstreamEnvironmentProduction}.UpstreamEndpoint()
		assert.NilError(t, err)
		assert.Equal(t, endpoint.BaseURL, "https://matls-clients.api.cora.com.br")
		assert.Equal(t, endpoint.TokenURL, "https://matls-clients.api.cora.com.br/oauth/token")
	})

	t.Run("explicit urls override the environment", func(t *testing.T) {
		endpoint, err := EnvironmentVariables{
			UpstreamEnvironment: UpstreamEnvironmentProduction,
			UpstreamBaseURL:     "https://api.example.com",
			UpstreamTokenURL:    "https://auth.example.com/token",
		}.UpstreamEndpoint()
		assert.NilError(t, err)
		assert.Equal(t, endpoint.BaseURL, "https://api.example.com")
		assert.Equal(t, endpoint.TokenURL, "https://auth.example.com/token")
	})

	t.Run("rejects non https urls", func(t *testing.T) {
		_, err := EnvironmentVariables{
			UpstreamEnvironment: UpstreamEnvironmentStaging,
			UpstreamBaseURL:     "http://api.example.com",
		}.UpstreamEndpoint()
		assert.Error(t, err, `upstream url "http://api.example.com" must be an absolute https url`)
	})

	t.Run("rejects relative urls", func(t *testing.T) {
		_, err := EnvironmentVariables{
			UpstreamEnvironment: UpstreamEnvironmentStaging,
			UpstreamTokenURL:    "/oauth/token",
		}.UpstreamEndpoint()
		assert.Error(t, err, `upstream url "/oauth/token" must be an absolute https url`)
	})
}

func TestWithServiceConfig(t *testing.T) {
	t.Run("nil config leaves env untouched", func(t *testing.T) {
		env := EnvironmentVariables{AllowedPathPrefixes: []string{"/v2/invoices"}}
		assert.DeepEqual(t, env.WithServiceConfig(nil), env)
	})

	t.Run("merges lists and lets the environment win on extra fields", func(t *testing.T) {
		env := EnvironmentVariables{
			AllowedPathPrefixes: []string{"/v2/invoices"},
			TokenExtraFields:    map[string]string{"scope": "from-env"},
		}
		merged := env.WithServiceConfig(&ServiceConfig{
			AllowedPathPrefixes: []string{"/v2/payments"},
			AllowedUpstreamURLs: []string{"https://api.example.com"},
			TokenExtraFields:    map[string]string{"scope": "from-file", "audience": "cora"},
		})

		assert.DeepEqual(t, merged.AllowedPathPrefixes, []string{"/v2/invoices", "/v2/payments"})
		assert.DeepEqual(t, merged.AllowedUpstreamURLs, []string{"https://api.example.com"})
		assert.DeepEqual(t, merged.TokenExtraFields, map[string]string{"scope": "from-env", "audience": "cora"})
		assert.DeepEqual(t, env.AllowedPathPrefixes, []string{"/v2/invoices"})
	})
}
