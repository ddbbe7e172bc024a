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
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srediag/plugin-ebr/pkg/queue"
)

// bucket holds the tasks deferred during one epoch, in arrival order. It is
// only touched under Collector.mu, so it keeps a tail pointer instead of
// walking the segment chain on every push.
type bucket struct {
	head *queue.Segment[Task]
	tail *queue.Segment[Task]
	n    int
}

func (b *bucket) push(t Task) {
	if b.head == nil {
		b.head = queue.New[Task]()
		b.tail = b.head
	}
	b.tail.Push(t)
	if next := b.tail.Next(); next != nil {
		b.tail = next
	}
	b.n++
}

func (b *bucket) detach() (*queue.Segment[Task], int) {
	head, n := b.head, b.n
	*b = bucket{}
	return head, n
}

// Collection describes one call to Collect.
type Collection struct {
	// Advanced is false when a lagging participant blocked the attempt. In
	// that case nothing else changed.
	Advanced bool
	// Epoch is the global epoch after the attempt.
	Epoch Epoch
	// Generation counts every successful advance since the collector was
	// created.
	Generation uint64
	// Freed is the bucket that was drained. Only meaningful when Advanced.
	Freed Epoch
	// Ran is the number of tasks executed by this call.
	Ran int
	// Lagging is the number of active participants still pinned to an older
	// epoch.
	Lagging int
	// Pending is the number of tasks still waiting in the buckets.
	Pending int
}

// Collector is the global side of the reclamation scheme: it owns the epoch,
// the three buckets of deferred tasks and the participant registry.
//
// The epoch only moves inside Collect, only by one step, and only when every
// participant inside a protected region has observed the current epoch. The
// bucket drained on an advance is the one two steps behind the new epoch, so
// a task deferred during epoch E runs no earlier than the advance into E+2.
// By then every goroutine that could have loaded the retired memory during E
// has left its region and pinned a newer epoch.
type Collector struct {
	name     string
	log      *logger
	observer Observer

	// mu guards epoch, deferred and registry.
	mu       sync.Mutex
	epoch    Epoch
	deferred [epochs]bucket
	registry registry

	// Lock-free snapshots for readers outside mu.
	published  atomic.Uint32
	generation atomic.Uint64
	pending    atomic.Int64
	live       atomic.Int32
	draining   atomic.Int64
}

// New creates a Collector. A nil config uses DefaultConfig.
func New(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	observer := config.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	c := &Collector{
		name:     config.Name,
		log:      newLogger("ebr["+config.Name+"]", nil),
		observer: observer,
		registry: newRegistry(config.RegistryHint),
	}
	if b, ok := observer.(Binder); ok {
		b.Bind(c)
	}
	return c, nil
}

// Name returns the configured collector name.
func (c *Collector) Name() string {
	return c.name
}

// Epoch returns the most recently published global epoch.
func (c *Collector) Epoch() Epoch {
	return Epoch(c.published.Load())
}

// Generation returns the number of successful epoch advances so far.
func (c *Collector) Generation() uint64 {
	return c.generation.Load()
}

// Pending returns the number of deferred tasks not yet run.
func (c *Collector) Pending() int {
	return int(c.pending.Load())
}

// Draining returns the number of advanced collections whose tasks are still
// running.
func (c *Collector) Draining() int {
	return int(c.draining.Load())
}

// Participants returns the number of registered participants.
func (c *Collector) Participants() int {
	return int(c.live.Load())
}

// Join registers a new participant. The caller must call Leave on it once
// the owning goroutine is done with the collector.
func (c *Collector) Join() *Participant {
	p := &Participant{c: c}
	live := c.register(p)
	c.log.tracef("participant %d joined, %d live", p.slot, live)
	c.observer.ParticipantsChanged(live)
	return p
}

func (c *Collector) register(p *Participant) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.slot = c.registry.add(p)
	c.live.Store(int32(c.registry.live))
	return c.registry.live
}

func (c *Collector) deregister(p *Participant) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.registry.remove(p.slot, p)
	c.live.Store(int32(c.registry.live))
	return c.registry.live, ok
}

// pin records the current epoch as p's observation.
func (c *Collector) pin(p *Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.observed.Store(uint32(c.epoch))
}

func (c *Collector) push(t Task) (Epoch, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deferred[c.epoch].push(t)
	return c.epoch, int(c.pending.Add(1))
}

// Collect tries to advance the global epoch. If any participant inside a
// protected region has not observed the current epoch the call returns with
// Advanced false and no side effects. Otherwise the epoch moves one step and
// the bucket two steps behind it is detached and run on the calling
// goroutine, in the order its tasks were deferred.
//
// Tasks run after the collector lock is released, so a task may itself defer
// or collect. A panicking task does not stop the rest of the bucket: each
// panic is returned as a *TaskPanicError, joined into the error result.
func (c *Collector) Collect() (Collection, error) {
	start := time.Now()
	res, batch := c.advance()
	var err error
	if res.Advanced {
		if batch != nil {
			res.Ran, err = c.run(res.Freed, batch)
		}
		c.draining.Add(-1)
	}
	if res.Advanced {
		c.log.debugf("epoch advanced to %s (generation %d), ran %d tasks from bucket %s",
			res.Epoch, res.Generation, res.Ran, res.Freed)
	} else {
		c.log.debugf("collection blocked at epoch %s by %d lagging participants", res.Epoch, res.Lagging)
	}
	c.observer.CollectDone(start, res, err)
	return res, err
}

func (c *Collector) advance() (Collection, *queue.Segment[Task]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := Collection{Epoch: c.epoch, Generation: c.generation.Load()}
	if res.Lagging = c.registry.lagging(c.epoch); res.Lagging > 0 {
		res.Pending = int(c.pending.Load())
		return res, nil
	}

	c.epoch = c.epoch.Next()
	c.published.Store(uint32(c.epoch))
	res.Advanced = true
	res.Epoch = c.epoch
	c.draining.Add(1)
	res.Generation = c.generation.Add(1)
	res.Freed = c.epoch.Next()
	batch, n := c.deferred[res.Freed].detach()
	res.Pending = int(c.pending.Add(-int64(n)))
	return res, batch
}

func (c *Collector) run(from Epoch, batch *queue.Segment[Task]) (int, error) {
	var (
		ran  int
		errs []error
	)
	for t := range batch.Chain() {
		ran++
		if err := c.runTask(from, t); err != nil {
			errs = append(errs, err)
		}
	}
	return ran, errors.Join(errs...)
}

func (c *Collector) runTask(from Epoch, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := &TaskPanicError{Epoch: from, Value: r, Stack: debug.Stack()}
			c.log.errorf("%v\n%s", perr, perr.Stack)
			err = perr
		}
	}()
	t.Run()
	return nil
}
