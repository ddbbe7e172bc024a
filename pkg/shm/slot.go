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

package shm

import "context"

// Slot identifies one slot of a slab.
type Slot uint32

type slotState uint8

const (
	slotFree slotState = iota
	slotUsed
	slotRetired
)

// Stats counts slots by state.
type Stats struct {
	Slots    int
	Free     int
	Used     int
	Retiring int
}

// Alloc takes a free slot. Slot memory is zeroed.
func (s *Slab) Alloc() (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := len(s.free)
	if n == 0 {
		return 0, ErrNoFreeSlot
	}
	slot := s.free[n-1]
	s.free = s.free[:n-1]
	s.state[slot] = slotUsed
	s.stats.Free--
	s.stats.Used++
	clear(s.bytes(slot))
	s.allocs.Add(context.Background(), 1, s.attrs)
	return slot, nil
}

// Free returns slot to the free list immediately. Only use it for slots no
// other goroutine can reach; otherwise call Retire.
func (s *Slab) Free(slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if int(slot) >= len(s.state) || s.state[slot] != slotUsed {
		return ErrBadSlot
	}
	s.stats.Used--
	s.release(slot)
	return nil
}

func (s *Slab) markRetired(slot Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if int(slot) >= len(s.state) || s.state[slot] != slotUsed {
		return ErrBadSlot
	}
	s.state[slot] = slotRetired
	s.stats.Used--
	s.stats.Retiring++
	return nil
}

// reclaim runs as a deferred task once a retired slot's grace period is over.
func (s *Slab) reclaim(slot Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state[slot] != slotRetired {
		return
	}
	s.stats.Retiring--
	s.release(slot)
}

// release must be called with s.mu held.
func (s *Slab) release(slot Slot) {
	s.state[slot] = slotFree
	s.free = append(s.free, slot)
	s.stats.Free++
	s.frees.Add(context.Background(), 1, s.attrs)
}

// Stats returns the number of slots in each state.
func (s *Slab) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
