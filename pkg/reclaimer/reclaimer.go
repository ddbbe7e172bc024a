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

// Package reclaimer drives ebr collections in the background.
package reclaimer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

var (
	// ErrInvalidConfig is wrapped by every configuration error.
	ErrInvalidConfig = errors.New("invalid reclaimer config")
	// ErrSyncTimeout is returned by Synchronize when the grace period did
	// not elapse within MaxWait.
	ErrSyncTimeout = errors.New("grace period did not elapse")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("reclaimer closed")

	errNotYet = errors.New("epoch not advanced yet")
)

// Collector is the part of *ebr.Collector the reclaimer drives.
type Collector interface {
	Collect() (ebr.Collection, error)
	Generation() uint64
	Draining() int
}

// MemoryStat reports host memory usage.
type MemoryStat func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// Stats summarises the work done so far.
type Stats struct {
	Collections uint64
	Advanced    uint64
	Ran         uint64
	Failures    uint64
	Pressure    uint64
	Dropped     uint64
}

// Reclaimer runs collections for one collector off the caller's goroutine.
// At most one background collection is in flight; triggers that arrive while
// one runs are dropped.
type Reclaimer struct {
	c       Collector
	config  Config
	pool    *ants.Pool
	memStat MemoryStat

	closeOnce sync.Once
	closed    atomic.Bool

	collections atomic.Uint64
	advanced    atomic.Uint64
	ran         atomic.Uint64
	failures    atomic.Uint64
	pressure    atomic.Uint64
	dropped     atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

// New creates a Reclaimer for c. A nil config uses DefaultConfig.
func New(c Collector, config *Config) (*Reclaimer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	r := &Reclaimer{c: c, config: *config, memStat: mem.VirtualMemoryWithContext}
	pool, err := ants.NewPool(1,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v interface{}) {
			r.fail(fmt.Errorf("reclaimer: collection panicked: %v", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("reclaimer: create pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// SetMemoryStat replaces the host memory sampler used by Run.
func (r *Reclaimer) SetMemoryStat(fn MemoryStat) {
	r.memStat = fn
}

// Trigger schedules one collection in the background. It returns false when
// a collection is already running or the reclaimer is closed.
func (r *Reclaimer) Trigger() bool {
	if r.closed.Load() {
		return false
	}
	if err := r.pool.Submit(r.collect); err != nil {
		r.dropped.Add(1)
		return false
	}
	return true
}

// Run triggers a collection every Interval until ctx is done. On each tick it
// also samples host memory and, above PressurePercent, collects
// PressureRounds times on the calling goroutine.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.closed.Load() {
				return ErrClosed
			}
			r.Trigger()
			if r.underPressure(ctx) {
				r.pressure.Add(1)
				for i := 0; i < r.config.PressureRounds; i++ {
					r.collect()
				}
			}
		}
	}
}

func (r *Reclaimer) underPressure(ctx context.Context) bool {
	if r.config.PressurePercent <= 0 || r.memStat == nil {
		return false
	}
	vm, err := r.memStat(ctx)
	if err != nil {
		r.fail(fmt.Errorf("reclaimer: memory stat: %w", err))
		return false
	}
	return vm.UsedPercent >= r.config.PressurePercent
}

// Synchronize collects until every task deferred before the call has run:
// the epoch advanced twice and no collection is still running the tasks it
// drained. It backs off exponentially between blocked attempts and gives up
// after MaxWait.
func (r *Reclaimer) Synchronize(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	target := r.c.Generation() + 2

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.Interval / 16
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.MaxInterval = r.config.Interval
	b.MaxElapsedTime = r.config.MaxWait

	err := backoff.Retry(func() error {
		if r.c.Generation() < target {
			r.collect()
		}
		// Generation first: the drain counter is raised before the advance.
		if r.c.Generation() >= target && r.c.Draining() == 0 {
			return nil
		}
		return errNotYet
	}, backoff.WithContext(b, ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errNotYet):
		return fmt.Errorf("%w after %s", ErrSyncTimeout, r.config.MaxWait)
	default:
		return err
	}
}

func (r *Reclaimer) collect() {
	res, err := r.c.Collect()
	r.collections.Add(1)
	if res.Advanced {
		r.advanced.Add(1)
	}
	r.ran.Add(uint64(res.Ran))
	if err != nil {
		r.fail(err)
	}
}

func (r *Reclaimer) fail(err error) {
	r.failures.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err
}

// Err returns the most recent collection or memory stat error.
func (r *Reclaimer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Stats returns a snapshot of the counters.
func (r *Reclaimer) Stats() Stats {
	return Stats{
		Collections: r.collections.Load(),
		Advanced:    r.advanced.Load(),
		Ran:         r.ran.Load(),
		Failures:    r.failures.Load(),
		Pressure:    r.pressure.Load(),
		Dropped:     r.dropped.Load(),
	}
}

// Close stops accepting triggers and waits up to MaxWait for the running
// collection to finish.
func (r *Reclaimer) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		err = r.pool.ReleaseTimeout(r.config.MaxWait)
	})
	return err
}
