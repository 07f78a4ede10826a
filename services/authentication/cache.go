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

package auth

import (
	"sync"
	"time"

	"mtls-gateway/entities"
)

type cachedToken struct {
	token    AccessToken
	response entities.ProxyResponse
}

type TokensCache struct {
	cache                        map[string]cachedToken
	lock                         sync.Mutex
	tokenPreemptiveExpirySeconds int
	now                          func() time.Time
}

func NewTokensCache(tokenPreemptiveExpirySeconds int) *TokensCache {
	return &TokensCache{
		cache:                        make(map[string]cachedToken),
		lock:                         sync.Mutex{},
		tokenPreemptiveExpirySeconds: tokenPreemptiveExpirySeconds,
		now:                          func() time.Time { return time.Now().UTC() },
	}
}

func cacheKey(clientID, scope string) string {
	return clientID + "|" + scope
}

// GetCachedResponse returns the stored upstream token response as it was
// received. Expired entries are evicted.
func (t *TokensCache) GetCachedResponse(clientID, scope string) (entities.ProxyResponse, bool) {
	key := cacheKey(clientID, scope)

	t.lock.Lock()
	defer t.lock.Unlock()

	entry, ok := t.cache[key]
	if !ok {
		return entities.ProxyResponse{}, false
	}
	if t.isTokenExpired(&entry.token) {
		delete(t.cache, key)
		return entities.ProxyResponse{}, false
	}
	return entry.response, true
}

func (t *TokensCache) SetCachedToken(clientID, scope string, token AccessToken, response entities.ProxyResponse) {
	t.lock.Lock()
	t.cache[cacheKey(clientID, scope)] = cachedToken{token: token, response: response}
	t.lock.Unlock()
}

// isTokenExpired considers the token expired tokenPreemptiveExpirySeconds
// before its actual expiration. A token without expiration is never reused.
func (t *TokensCache) isTokenExpired(token *AccessToken) bool {
	if token.ExpiresAt.IsZero() {
		return true
	}
	preemptiveExpiryTime := t.now().Add(time.Duration(t.tokenPreemptiveExpirySeconds) * time.Second)
	return preemptiveExpiryTime.After(token.ExpiresAt)
}
