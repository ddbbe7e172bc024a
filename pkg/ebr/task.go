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

import "strconv"

// epochs is the number of generations the global epoch cycles through.
const epochs = 3

// Epoch is one of the three global generations: 0, 1 or 2.
type Epoch uint8

// Next returns the epoch that follows e.
func (e Epoch) Next() Epoch {
	return (e + 1) % epochs
}

func (e Epoch) String() string {
	return strconv.Itoa(int(e))
}

// Task is a single-use unit of cleanup. The collector calls Run exactly once,
// on whichever goroutine drains the task's bucket, so a task must own
// everything it touches and must be safe to run away from its creator.
type Task interface {
	Run()
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() {
	f()
}

type releaseTask[T any] struct {
	v    T
	free func(T)
}

func (t *releaseTask[T]) Run() {
	t.free(t.v)
}

// Release returns a Task that hands v to free when run. v is captured by
// value at the call, so the task owns it outright.
func Release[T any](v T, free func(T)) Task {
	return &releaseTask[T]{v: v, free: free}
}
