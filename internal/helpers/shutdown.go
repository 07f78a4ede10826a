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

package helpers

import (
	"context"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// GracefulShutdown waits for a signal on shutdown, marks the service as
// draining, then lets in-flight requests complete for delayShutdownSeconds
// before stopping srv.
func GracefulShutdown(srv *http.Server, shutdown chan os.Signal, log *logrus.Logger, delayShutdownSeconds int, draining *atomic.Bool) {
	<-shutdown

	if draining != nil {
		draining.Store(true)
	}
	log.WithField("delaySeconds", delayShutdownSeconds).Info("shutdown signal received")
	time.Sleep(time.Duration(delayShutdownSeconds) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown failed")
		return
	}
	log.Info("server stopped")
}
