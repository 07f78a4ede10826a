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

package apihelpers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type RequestError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func WriteResponse(w http.ResponseWriter, statusCode int, headers http.Header, body []byte) {
	for name, values := range headers {
		for _, value := range values {
			w.Header().Set(name, value)
		}
	}
	w.WriteHeader(statusCode)
	w.Write(body)
}

func WriteJSONResponse(w http.ResponseWriter, statusCode int, headers http.Header, body interface{}) {
	if headers == nil {
		headers = http.Header{}
	}

	responseBytes, err := json.Marshal(body)

	if err != nil {
		statusCode = http.StatusInternalServerError
		WriteResponse(w, statusCode, headers, []byte(err.Error()))
		return
	}

	headers.Set("Content-Type", "application/json")
	WriteResponse(w, statusCode, headers, responseBytes)
}

// WriteErrorResponse logs err and answers with a {"message","code"} body.
// The error itself is never written to the client.
func WriteErrorResponse(w http.ResponseWriter, logger *logrus.Entry, err error, message string, code string, httpStatus int) {
	logger.WithField("error", logrus.Fields{"message": err.Error(), "code": code}).Error(message)
	errorResponse := RequestError{
		Message: message,
		Code:    code,
	}
	WriteJSONResponse(w, httpStatus, http.Header{}, errorResponse)
}
