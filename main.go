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

package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"mtls-gateway/apis"
	"mtls-gateway/apis/gateway"
	"mtls-gateway/entities"
	"mtls-gateway/internal/config"
	"mtls-gateway/internal/helpers"
	allowedpaths_repository "mtls-gateway/repositories/allowedpaths"
	allowedtargets_repository "mtls-gateway/repositories/allowedtargets"
	"mtls-gateway/services/allowedpaths"
	"mtls-gateway/services/allowedtargets"
	auth "mtls-gateway/services/authentication"
	"mtls-gateway/services/credentials"
	"mtls-gateway/services/proxies"
	"mtls-gateway/services/transport"

	glogrus "github.com/mia-platform/glogger/v4/loggers/logrus"
	"github.com/sirupsen/logrus"
)

func main() {
	entrypoint(make(chan os.Signal, 1))
	os.Exit(0)
}

func entrypoint(shutdown chan os.Signal) {
	env, err := config.GetEnvVariables()
	if err != nil {
		panic(err.Error())
	}

	// Init logger instance.
	log, err := glogrus.InitHelper(glogrus.InitOptions{Level: env.LogLevel})
	if err != nil {
		panic(err.Error())
	}

	if env.IsStaticConfiguration() {
		serviceConfig, err := config.LoadServiceConfiguration(env.ServiceConfigPath, env.ServiceConfigFileName)
		if err != nil {
			log.WithError(err).Fatal("fails to load service configuration")
		}
		env = env.WithServiceConfig(serviceConfig)
	}

	deps, err := setupDependencies(log, env)
	if err != nil {
		log.WithError(err).Fatal("fails to set up the gateway")
	}

	var draining atomic.Bool
	ready := func() bool {
		return !draining.Load() && deps.Material.ValidAt(time.Now())
	}
	router := apis.SetupRouter(log, env, deps, ready)

	srv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%s", env.HTTPPort),
		Handler: router,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":        env.HTTPPort,
			"upstream":    deps.Endpoint.BaseURL,
			"environment": env.UpstreamEnvironment,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil {
			log.Println(err)
		}
	}()

	// sigterm signal sent from kubernetes
	signal.Notify(shutdown, syscall.SIGTERM)
	helpers.GracefulShutdown(srv, shutdown, log, env.DelayShutdownSeconds, &draining)
}

// setupDependencies builds the credential material, the upstream clients and
// the services shared by every request. Any error is fatal at startup.
func setupDependencies(log *logrus.Logger, env config.EnvironmentVariables) (gateway.Dependencies, error) {
	log.WithFields(credentials.Diagnostics(env)).Info("credential material diagnostics")

	material, err := credentials.LoadCredentials(env)
	if err != nil {
		return gateway.Dependencies{}, fmt.Errorf("failed loading credential material: %w", err)
	}

	endpoint, err := env.UpstreamEndpoint()
	if err != nil {
		return gateway.Dependencies{}, err
	}

	targetsRepository, err := allowedtargets_repository.FromENV(env)
	if err != nil {
		return gateway.Dependencies{}, err
	}
	if err := allowedtargets.New(targetsRepository).AssertEndpointAllowed(endpoint.BaseURL, endpoint.TokenURL); err != nil {
		return gateway.Dependencies{}, err
	}

	pathsRepository, err := allowedpaths_repository.FromENV(env)
	if err != nil {
		return gateway.Dependencies{}, err
	}

	rootCAs, err := transport.RootCAsFromPEM(env.UpstreamCA)
	if err != nil {
		return gateway.Dependencies{}, err
	}
	transportOptions := transport.Options{
		Timeout: time.Duration(env.UpstreamTimeoutSeconds) * time.Second,
		RootCAs: rootCAs,
	}

	client, err := transport.NewClient(material, transportOptions)
	if err != nil {
		return gateway.Dependencies{}, err
	}

	broker, err := newBroker(env, material, client, transportOptions)
	if err != nil {
		return gateway.Dependencies{}, err
	}

	return gateway.Dependencies{
		Material:  material,
		Endpoint:  endpoint,
		Broker:    broker,
		Forwarder: proxies.NewForwarder(client, allowedpaths.New(pathsRepository), env.AdditionalHeadersToRedact),
	}, nil
}

func newBroker(
	env config.EnvironmentVariables,
	material entities.CredentialMaterial,
	mTLSClient *http.Client,
	transportOptions transport.Options,
) (*auth.Broker, error) {
	opts := auth.BrokerOptions{
		AuthMode:    env.TokenAuthMode,
		ExtraFields: env.TokenExtraFields,
	}
	if env.TokenCacheEnabled {
		opts.Cache = auth.NewTokensCache(env.TokenPreemptiveExpirySeconds)
	}

	if env.TokenAuthMode != config.TokenAuthModeClientSecretBasic {
		return auth.NewBroker(mTLSClient, opts), nil
	}

	transportOptions.WithoutClientCertificate = true
	basicClient, err := transport.NewClient(material, transportOptions)
	if err != nil {
		return nil, err
	}
	opts.BasicClientID = env.TestClientID
	opts.BasicClientSecret = env.TestClientSecret
	return auth.NewBroker(basicClient, opts), nil
}
