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
	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// registry is the collector's participant table. Participants are addressed
// by slot index; freed slots are recycled through a FIFO so a long-running
// process with churning goroutines keeps the table compact. All methods must
// be called with Collector.mu held.
type registry struct {
	slots []*Participant
	free  *queuepkg.Queue
	live  int
}

func newRegistry(hint int) registry {
	return registry{
		slots: make([]*Participant, 0, hint),
		free:  queuepkg.New(int64(hint)),
	}
}

func (r *registry) add(p *Participant) int {
	r.live++
	if !r.free.Empty() {
		items, err := r.free.Get(1)
		if err == nil && len(items) == 1 {
			idx := items[0].(int)
			r.slots[idx] = p
			return idx
		}
	}
	r.slots = append(r.slots, p)
	return len(r.slots) - 1
}

func (r *registry) remove(idx int, p *Participant) bool {
	if idx < 0 || idx >= len(r.slots) || r.slots[idx] != p {
		return false
	}
	r.slots[idx] = nil
	r.live--
	_ = r.free.Put(idx)
	return true
}

// lagging counts the participants inside a protected region that have not
// yet observed epoch.
func (r *registry) lagging(epoch Epoch) int {
	n := 0
	for _, p := range r.slots {
		if p == nil {
			continue
		}
		if p.depth.Load() > 0 && Epoch(p.observed.Load()) != epoch {
			n++
		}
	}
	return n
}
