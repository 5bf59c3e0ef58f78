// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package session

import (
	"sync"

	"github.com/sage-x-project/kbs/internal/metrics"
)

// Cache holds the TIK/TEK pair for each outstanding connection bundle,
// keyed by its GUID. Keys live only in process memory: nothing here is
// ever persisted to the store. Evict zeroes the keys before dropping
// them so they do not linger in a freed allocation any longer than
// necessary.
type Cache struct {
	mu     sync.Mutex
	byGUID map[string]*Keys
}

// NewCache constructs an empty session cache.
func NewCache() *Cache {
	c := &Cache{byGUID: make(map[string]*Keys)}
	return c
}

// Put registers the keys for a newly established connection bundle.
func (c *Cache) Put(guid string, keys Keys) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byGUID[guid] = &keys
	metrics.SessionsCached.Set(float64(len(c.byGUID)))
}

// Take removes and returns the keys for guid, if present. This is the
// at-most-once primitive backing GetSecret: a second call for the same
// GUID returns ok=false.
func (c *Cache) Take(guid string) (Keys, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.byGUID[guid]
	if !ok {
		return Keys{}, false
	}
	delete(c.byGUID, guid)
	metrics.SessionsCached.Set(float64(len(c.byGUID)))
	out := *keys
	keys.Zero()
	return out, true
}

// Evict drops guid's keys without returning them, zeroing them first.
// Used when a connection bundle expires unused.
func (c *Cache) Evict(guid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if keys, ok := c.byGUID[guid]; ok {
		keys.Zero()
		delete(c.byGUID, guid)
		metrics.SessionsEvicted.Inc()
		metrics.SessionsCached.Set(float64(len(c.byGUID)))
	}
}

// Len reports the number of cached connection bundles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byGUID)
}
