/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package tvp

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	typeName string
	target   string
}

func (k cacheKey) String() string {
	return k.typeName + " " + k.target
}

// CreationCache records which (type, target) pairs already had their
// create-or-replace DDL executed in this process. Entries are never removed.
// The zero value is ready to use.
type CreationCache struct {
	mu    sync.RWMutex
	done  map[cacheKey]struct{}
	group singleflight.Group
}

// NewCreationCache returns an empty cache.
func NewCreationCache() *CreationCache {
	return &CreationCache{done: make(map[cacheKey]struct{})}
}

// Ensure runs create unless typeName was already created on target.
//
// Concurrent callers for the same key share one in-flight create and all
// return only after it finishes. The key is marked before any of them
// returns. A failed or cancelled create leaves the key unmarked and its error
// goes to every caller that waited on it.
func (c *CreationCache) Ensure(ctx context.Context, typeName, target string, create func(context.Context) error) error {
	key := cacheKey{typeName: typeName, target: target}
	if c.created(key) {
		return nil
	}
	_, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// A flight that finished between the check above and Do already did the work.
		if c.created(key) {
			return nil, nil
		}
		if err := create(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.done == nil {
			c.done = make(map[cacheKey]struct{})
		}
		c.done[key] = struct{}{}
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

// Created reports whether typeName has been created on target.
func (c *CreationCache) Created(typeName, target string) bool {
	return c.created(cacheKey{typeName: typeName, target: target})
}

// Len returns the number of created (type, target) pairs.
func (c *CreationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.done)
}

func (c *CreationCache) created(key cacheKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.done[key]
	return ok
}
