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

package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const upstreamErrorCode = "error"

var (
	requestLatencies = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Response latency distribution in seconds for each verb and HTTP response code.",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 1.5, 2, 3, 5, 10, 20, 30, 60},
		},
		[]string{"method", "code"},
	)
	upstreamLatencies = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_request_duration_seconds",
			Help:    "Latency distribution in seconds of the calls issued to the upstream API.",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0, 1.5, 2, 3, 5, 10, 20, 30, 60},
		},
		[]string{"operation", "code"},
	)
	rejectedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rejected_requests_total",
			Help: "Number of inbound requests rejected by the gateway, by error code.",
		},
		[]string{"code"},
	)
)

var registerMetrics sync.Once

func Register() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(requestLatencies, upstreamLatencies, rejectedRequests)
	})
}

func init() {
	Register()
}

// WithLatencyTracking tracks the number of seconds it took the wrapped handler
// to complete.
func WithLatencyTracking(delegate http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(requestLatencies, delegate)
}

// ObserveUpstream records an upstream call. A zero status code means the call
// did not complete.
func ObserveUpstream(operation string, statusCode int, elapsed time.Duration) {
	code := upstreamErrorCode
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	upstreamLatencies.WithLabelValues(operation, code).Observe(elapsed.Seconds())
}

func CountRejection(code string) {
	rejectedRequests.WithLabelValues(code).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
