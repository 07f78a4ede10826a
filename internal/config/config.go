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
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"mtls-gateway/entities"

	envlib "github.com/caarlos0/env/v11"
	"github.com/mia-platform/configlib"
)

//go:embed config.schema.json
var configSchema string

const (
	UpstreamEnvironmentProduction = "production"
	UpstreamEnvironmentStaging    = "staging"

	TokenAuthModeTLSClientAuth     = "tls_client_auth"
	TokenAuthModeClientSecretBasic = "client_secret_basic"

	defaultTokenPath = "/oauth/token"
)

var upstreamHosts = map[string]string{
	UpstreamEnvironmentProduction: "https://matls-clients.api.cora.com.br",
	UpstreamEnvironmentStaging:    "https://matls-clients.api.stage.cora.com.br",
}

// EnvironmentVariables struct with the mapping of desired environment variables.
type EnvironmentVariables struct {
	LogLevel                  string   `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort                  string   `env:"HTTP_PORT" envDefault:"8080"`
	ServicePrefix             string   `env:"SERVICE_PREFIX"`
	ServiceVersion            string   `env:"SERVICE_VERSION"`
	ServiceConfigPath         string   `env:"CONFIGURATION_PATH"`
	ServiceConfigFileName     string   `env:"CONFIGURATION_FILE_NAME"`
	DelayShutdownSeconds      int      `env:"DELAY_SHUTDOWN_SECONDS" envDefault:"10"`
	AdditionalHeadersToRedact []string `env:"ADDITIONAL_HEADERS_TO_REDACT"`

	UpstreamEnvironment    string   `env:"UPSTREAM_ENVIRONMENT" envDefault:"staging"`
	UpstreamBaseURL        string   `env:"UPSTREAM_BASE_URL"`
	UpstreamTokenURL       string   `env:"UPSTREAM_TOKEN_URL"`
	UpstreamCA             string   `env:"UPSTREAM_CA_PEM"`
	UpstreamTimeoutSeconds int      `env:"UPSTREAM_TIMEOUT_SECONDS" envDefault:"30"`
	AllowedUpstreamURLs    []string `env:"ALLOWED_UPSTREAM_URLS" envSeparator:","`
	AllowedPathPrefixes    []string `env:"ALLOWED_PATH_PREFIXES" envSeparator:","`
	ProxyRoutePrefix       string   `env:"PROXY_ROUTE_PREFIX" envDefault:"/proxy"`

	ClientID          string `env:"CLIENT_ID"`
	ClientCertificate string `env:"CLIENT_CERTIFICATE"`
	ClientPrivateKey  string `env:"CLIENT_PRIVATE_KEY"`

	TokenAuthMode                string            `env:"TOKEN_AUTH_MODE" envDefault:"tls_client_auth"`
	TestClientID                 string            `env:"TEST_CLIENT_ID"`
	TestClientSecret             string            `env:"TEST_CLIENT_SECRET"`
	TokenExtraFields             map[string]string `env:"TOKEN_EXTRA_FIELDS" envSeparator:"," envKeyValSeparator:":"`
	TokenCacheEnabled            bool              `env:"TOKEN_CACHE_ENABLED" envDefault:"false"`
	TokenPreemptiveExpirySeconds int               `env:"TOKEN_PREEMPTIVE_EXPIRY_SECONDS" envDefault:"30"`
}

func GetEnvVariables() (EnvironmentVariables, error) {
	env, err := envlib.ParseAs[EnvironmentVariables]()
	if err != nil {
		return env, err
	}

	if (env.ServiceConfigPath == "") != (env.ServiceConfigFileName == "") {
		return env, fmt.Errorf("CONFIGURATION_PATH and CONFIGURATION_FILE_NAME must be set together")
	}
	if len(env.ServicePrefix) > 0 {
		re := regexp.MustCompile(`^\/[a-zA-Z0-9_-]+$`)
		if !re.MatchString(env.ServicePrefix) {
			return env, fmt.Errorf("service prefix does not match the following regex: ^/[a-zA-Z0-9_-]+$")
		}
	}
	if !strings.HasPrefix(env.ProxyRoutePrefix, "/") {
		return env, fmt.Errorf("proxy route prefix must start with /")
	}
	if _, ok := upstreamHosts[env.UpstreamEnvironment]; !ok {
		return env, fmt.Errorf("unknown upstream environment %q", env.UpstreamEnvironment)
	}
	switch env.TokenAuthMode {
	case TokenAuthModeTLSClientAuth:
	case TokenAuthModeClientSecretBasic:
		if env.TestClientID == "" || env.TestClientSecret == "" {
			return env, fmt.Errorf("TEST_CLIENT_ID and TEST_CLIENT_SECRET are required with %s token auth mode", TokenAuthModeClientSecretBasic)
		}
	default:
		return env, fmt.Errorf("unknown token auth mode %q", env.TokenAuthMode)
	}
	if env.UpstreamTimeoutSeconds <= 0 {
		return env, fmt.Errorf("UPSTREAM_TIMEOUT_SECONDS must be greater than zero")
	}
	return env, nil
}

func (e EnvironmentVariables) IsStaticConfiguration() bool {
	return e.ServiceConfigPath != "" && e.ServiceConfigFileName != ""
}

// UpstreamEndpoint resolves the base and token URLs for the selected
// environment. Explicit URLs take precedence over the environment defaults.
func (e EnvironmentVariables) UpstreamEndpoint() (entities.UpstreamEndpoint, error) {
	host, ok := upstreamHosts[e.UpstreamEnvironment]
	if !ok {
		return entities.UpstreamEndpoint{}, fmt.Errorf("unknown upstream environment %q", e.UpstreamEnvironment)
	}

	endpoint := entities.UpstreamEndpoint{
		BaseURL:  host,
		TokenURL: host + defaultTokenPath,
	}
	if e.UpstreamBaseURL != "" {
		endpoint.BaseURL = e.UpstreamBaseURL
	}
	if e.UpstreamTokenURL != "" {
		endpoint.TokenURL = e.UpstreamTokenURL
	}

	for _, raw := range []string{endpoint.BaseURL, endpoint.TokenURL} {
		if err := assertAbsoluteHTTPS(raw); err != nil {
			return entities.UpstreamEndpoint{}, err
		}
	}
	return endpoint, nil
}

func assertAbsoluteHTTPS(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid upstream url: %w", err)
	}
	if parsed.Scheme != "https" || parsed.Host == "" {
		return fmt.Errorf("upstream url %q must be an absolute https url", raw)
	}
	return nil
}

// ServiceConfig is the optional policy file. Its lists are merged with the
// ones coming from the environment.
type ServiceConfig struct {
	AllowedPathPrefixes []string          `json:"allowedPathPrefixes,omitempty" koanf:"allowedPathPrefixes"`
	AllowedUpstreamURLs []string          `json:"allowedUpstreamUrls,omitempty" koanf:"allowedUpstreamUrls"`
	TokenExtraFields    map[string]string `json:"tokenExtraFields,omitempty" koanf:"tokenExtraFields"`
}

func GetServiceConfigSchema() []byte {
	return []byte(configSchema)
}

func LoadServiceConfiguration(path, fileName string) (*ServiceConfig, error) {
	var config ServiceConfig
	if err := configlib.GetConfigFromFile(fileName, path, GetServiceConfigSchema(), &config); err != nil {
		return nil, err
	}
	for _, prefix := range config.AllowedPathPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("allowed path prefix %q must start with /", prefix)
		}
	}
	return &config, nil
}

// WithServiceConfig returns a copy of the environment with the policy file
// entries appended.
func (e EnvironmentVariables) WithServiceConfig(config *ServiceConfig) EnvironmentVariables {
	if config == nil {
		return e
	}

	merged := e
	merged.AllowedPathPrefixes = append(append([]string{}, e.AllowedPathPrefixes...), config.AllowedPathPrefixes...)
	merged.AllowedUpstreamURLs = append(append([]string{}, e.AllowedUpstreamURLs...), config.AllowedUpstreamURLs...)

	if len(config.TokenExtraFields) > 0 {
		fields := make(map[string]string, len(e.TokenExtraFields)+len(config.TokenExtraFields))
		for k, v := range config.TokenExtraFields {
			fields[k] = v
		}
		// environment wins over the file
		for k, v := range e.TokenExtraFields {
			fields[k] = v
		}
		merged.TokenExtraFields = fields
	}
	return merged
}
