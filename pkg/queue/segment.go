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

// Package queue implements a wait-free, unbounded, append-only queue built
// from fixed-capacity segments linked into a growable chain.
//
// A writer claims a slot with a single atomic increment and then owns that
// slot exclusively, so the write itself needs no synchronisation beyond
// publishing it. When a segment is full the push moves on to the next
// segment, creating it with one compare-and-swap if nobody has yet.
//
// Segments never shrink and never reorder written slots. Dropping the head
// segment drops the whole chain; nothing is run on the stored values, the
// owner is expected to have drained them first.
package queue

import (
	"iter"
	"sync/atomic"
)

// Capacity is the number of slots held by one segment.
const Capacity = 14

type slot[T any] struct {
	value T
	ready atomic.Bool
}

// Segment is one block of the queue. The zero value is an empty segment
// ready for use.
type Segment[T any] struct {
	// cursor is the next slot to claim. It keeps growing past Capacity
	// while pushes are being forwarded to the successor.
	cursor atomic.Uint64
	next   atomic.Pointer[Segment[T]]
	slots  [Capacity]slot[T]
}

// New returns an empty segment.
func New[T any]() *Segment[T] {
	return &Segment[T]{}
}

// Push appends v to the chain starting at s. It completes in a bounded number
// of steps: one increment per full segment walked, plus at most one
// compare-and-swap when a successor has to be created.
func (s *Segment[T]) Push(v T) {
	seg := s
	for {
		if seg.cursor.Load() < Capacity {
			idx := seg.cursor.Add(1) - 1
			if idx < Capacity {
				sl := &seg.slots[idx]
				sl.value = v
				sl.ready.Store(true)
				return
			}
		}
		seg = seg.nextOrCreate()
	}
}

// nextOrCreate returns the successor, installing a fresh one if absent. The
// loser of a creation race drops its allocation and adopts the winner's.
func (s *Segment[T]) nextOrCreate() *Segment[T] {
	if n := s.next.Load(); n != nil {
		return n
	}
	fresh := New[T]()
	if s.next.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return s.next.Load()
}

// All returns a view over the values visible in this segment when All is
// called. Iteration stops early at a slot that has been claimed but not yet
// written. It does not follow the successor.
func (s *Segment[T]) All() iter.Seq[T] {
	top := s.Len()
	return func(yield func(T) bool) {
		for i := 0; i < top; i++ {
			sl := &s.slots[i]
			if !sl.ready.Load() {
				return
			}
			if !yield(sl.value) {
				return
			}
		}
	}
}

// Chain iterates this segment and then every successor, in order.
func (s *Segment[T]) Chain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for seg := s; seg != nil; seg = seg.Next() {
			for v := range seg.All() {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Len returns the number of claimed slots, capped at Capacity.
func (s *Segment[T]) Len() int {
	return int(min(s.cursor.Load(), Capacity))
}

// Cap returns Capacity.
func (s *Segment[T]) Cap() int {
	return Capacity
}

// Next returns the successor segment, or nil if none was created yet.
func (s *Segment[T]) Next() *Segment[T] {
	return s.next.Load()
}

// Segments counts the segments of the chain starting at s.
func (s *Segment[T]) Segments() int {
	n := 0
	for seg := s; seg != nil; seg = seg.Next() {
		n++
	}
	return n
}
