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

import "sync"

var defaultCollector = sync.OnceValue(func() *Collector {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	internalLogger.infof("default collector created")
	return c
})

// Default returns the process-wide collector, creating it on first use. It
// lives for the rest of the process.
func Default() *Collector {
	return defaultCollector()
}

// Join registers a participant with the default collector.
func Join() *Participant {
	return Default().Join()
}

// Collect runs one collection on the default collector.
func Collect() (Collection, error) {
	return Default().Collect()
}

// Protected runs body inside a protected region of p and returns its result.
// Memory that body loads from a shared structure cannot be recycled by a
// deferred task before Protected returns.
func Protected[T any](p *Participant, body func() T) T {
	p.Enter()
	defer p.Exit()
	return body()
}

// Defer queues cleanup on p. See Participant.Defer.
func Defer(p *Participant, cleanup func()) {
	p.DeferFunc(cleanup)
}
