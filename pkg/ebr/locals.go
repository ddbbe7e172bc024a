/*
 * Copyright 2025 SREDiag Authors
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
 */

package ebr

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Locals hands out one participant per key, joining lazily on first use. It
// stands in for per-thread state: give each worker goroutine a stable key and
// release it when the worker exits.
type Locals struct {
	c *Collector
	m cmap.ConcurrentMap[string, *Participant]
}

// NewLocals returns an empty key space over c.
func NewLocals(c *Collector) *Locals {
	return &Locals{c: c, m: cmap.New[*Participant]()}
}

// Get returns the participant for key, joining a new one if needed.
func (l *Locals) Get(key string) *Participant {
	if p, ok := l.m.Get(key); ok {
		return p
	}
	return l.m.Upsert(key, nil, func(exist bool, cur, _ *Participant) *Participant {
		if exist && cur != nil {
			return cur
		}
		return l.c.Join()
	})
}

// Release leaves and forgets the participant for key. It reports whether key
// was present.
func (l *Locals) Release(key string) bool {
	p, ok := l.m.Pop(key)
	if !ok {
		return false
	}
	p.Leave()
	return true
}

// Len returns the number of live keys.
func (l *Locals) Len() int {
	return l.m.Count()
}

// Range calls fn for every key and participant. fn must not call back into l.
func (l *Locals) Range(fn func(key string, p *Participant)) {
	l.m.IterCb(fn)
}

// Close releases every key.
func (l *Locals) Close() {
	for _, key := range l.m.Keys() {
		l.Release(key)
	}
}
