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

// Package lfstack is a lock-free Treiber stack whose popped nodes are reused
// only after an ebr grace period, which rules out ABA on the head pointer.
package lfstack

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

// ErrNotProtected is the cause of the *ebr.ContractError raised when Pop is
// called outside a protected region.
var ErrNotProtected = errors.New("pop outside a protected region")

type node[T any] struct {
	value T
	next  *node[T]
}

// Stack is a LIFO safe for concurrent use.
type Stack[T any] struct {
	head  atomic.Pointer[node[T]]
	size  atomic.Int64
	nodes sync.Pool
	fresh atomic.Int64
}

// New returns an empty stack.
func New[T any]() *Stack[T] {
	s := &Stack[T]{}
	s.nodes.New = func() any {
		s.fresh.Add(1)
		return new(node[T])
	}
	return s
}

// Push adds v on top.
func (s *Stack[T]) Push(v T) {
	n := s.nodes.Get().(*node[T])
	n.value = v
	for {
		head := s.head.Load()
		n.next = head
		if s.head.CompareAndSwap(head, n) {
			s.size.Add(1)
			return
		}
	}
}

// Pop removes the top value. It must run inside a protected region of p; the
// removed node is recycled once the region and every other one that could
// have seen it has closed.
func (s *Stack[T]) Pop(p *ebr.Participant) (T, bool) {
	if !p.Active() {
		panic(&ebr.ContractError{Op: "lfstack.Pop", Err: ErrNotProtected})
	}
	for {
		head := s.head.Load()
		if head == nil {
			var zero T
			return zero, false
		}
		if s.head.CompareAndSwap(head, head.next) {
			s.size.Add(-1)
			v := head.value
			p.Defer(ebr.Release(head, s.recycle))
			return v, true
		}
	}
}

func (s *Stack[T]) recycle(n *node[T]) {
	*n = node[T]{}
	s.nodes.Put(n)
}

// Len returns the number of values on the stack.
func (s *Stack[T]) Len() int {
	return int(s.size.Load())
}

// Allocated returns how many nodes were created rather than reused.
func (s *Stack[T]) Allocated() int64 {
	return s.fresh.Load()
}
