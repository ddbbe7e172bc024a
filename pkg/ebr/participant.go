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

import "sync/atomic"

// Participant is one goroutine's registration with a Collector.
//
// It tracks how deeply the goroutine is nested inside protected regions and
// which epoch it observed when it entered the outermost one. While the depth
// is above zero the collector cannot advance past that observation, which is
// what keeps memory loaded inside the region alive.
//
// A Participant belongs to a single goroutine at a time. Handing it to another
// goroutine is fine between regions, never during one.
type Participant struct {
	c    *Collector
	slot int

	// depth is the protected-region nesting level. It never goes below zero.
	depth atomic.Int64
	// observed is set on the 0 -> 1 transition of depth only.
	observed atomic.Uint32
	closed   atomic.Bool
}

// Collector returns the collector p is registered with.
func (p *Participant) Collector() *Collector {
	return p.c
}

// Depth returns the current nesting level.
func (p *Participant) Depth() int {
	return int(p.depth.Load())
}

// Active reports whether p is inside a protected region.
func (p *Participant) Active() bool {
	return p.depth.Load() > 0
}

// Observed returns the epoch pinned by the outermost open region. It is stale
// when p is not active.
func (p *Participant) Observed() Epoch {
	return Epoch(p.observed.Load())
}

// Enter opens a protected region. Regions nest: only the outermost Enter
// samples the global epoch, inner ones just deepen the count.
func (p *Participant) Enter() {
	if p.closed.Load() {
		fatal(p.c.log, "enter", ErrParticipantClosed)
	}
	if p.depth.Add(1) == 1 {
		p.c.pin(p)
	}
}

// Exit closes the innermost protected region. Exit without a matching Enter
// is a fatal contract violation.
func (p *Participant) Exit() {
	for {
		d := p.depth.Load()
		if d == 0 {
			fatal(p.c.log, "exit", ErrUnbalancedExit)
		}
		if p.depth.CompareAndSwap(d, d-1) {
			return
		}
	}
}

// Pin opens a protected region and returns a guard that closes it.
//
//	g := p.Pin()
//	defer g.Release()
func (p *Participant) Pin() *Guard {
	p.Enter()
	return &Guard{p: p}
}

// Protected runs body inside a protected region. The region is closed even if
// body panics.
func (p *Participant) Protected(body func()) {
	p.Enter()
	defer p.Exit()
	body()
}

// Defer queues t to run once the current epoch is two advances in the past.
// It must be called inside a protected region; the check is always on.
func (p *Participant) Defer(t Task) {
	if t == nil {
		fatal(p.c.log, "defer", ErrNilTask)
	}
	if p.depth.Load() == 0 {
		fatal(p.c.log, "defer", ErrDeferOutsideProtected)
	}
	p.enqueue(t)
}

// DeferFunc is Defer for a plain function.
func (p *Participant) DeferFunc(f func()) {
	if f == nil {
		fatal(p.c.log, "defer", ErrNilTask)
	}
	if p.depth.Load() == 0 {
		fatal(p.c.log, "defer", ErrDeferOutsideProtected)
	}
	p.enqueue(TaskFunc(f))
}

func (p *Participant) enqueue(t Task) {
	epoch, pending := p.c.push(t)
	p.c.observer.TaskDeferred(epoch, pending)
}

// Leave deregisters p. It is safe to call more than once; only the first call
// has an effect. Leaving from inside a protected region is fatal.
func (p *Participant) Leave() {
	if p.depth.Load() > 0 {
		fatal(p.c.log, "leave", ErrLeaveWhileProtected)
	}
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	live, ok := p.c.deregister(p)
	if !ok {
		p.c.log.warnf("participant %d was not registered", p.slot)
		return
	}
	p.c.log.tracef("participant %d left, %d live", p.slot, live)
	p.c.observer.ParticipantsChanged(live)
}

// Guard is a scoped protected region returned by Participant.Pin.
type Guard struct {
	p        *Participant
	released bool
}

// Participant returns the participant holding the region.
func (g *Guard) Participant() *Participant {
	return g.p
}

// Defer is shorthand for g.Participant().Defer.
func (g *Guard) Defer(t Task) {
	g.p.Defer(t)
}

// Release closes the region. Calls after the first are no-ops.
func (g *Guard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.p.Exit()
}
