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

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	internalshm "github.com/srediag/plugin-ebr/internal/shm"
	"github.com/srediag/plugin-ebr/pkg/ebr"
)

const instrumentation = "github.com/srediag/plugin-ebr/pkg/shm"

var (
	// ErrInvalidOptions is wrapped by every OpenOptions error.
	ErrInvalidOptions = errors.New("invalid slab options")
	// ErrNoFreeSlot is returned by Alloc when every slot is in use or
	// waiting for its grace period.
	ErrNoFreeSlot = errors.New("no free slot")
	// ErrBadSlot is returned when a slot is released in the wrong state.
	ErrBadSlot = errors.New("slot not allocated")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("slab closed")
)

// OpenOptions defines options for creating a slab.
type OpenOptions struct {
	// Name selects a /dev/shm backing file. Empty maps anonymous memory.
	Name string
	// Slots is the number of slots.
	Slots int
	// SlotSize is the size of each slot in bytes.
	SlotSize int
	// Create creates the backing file if needed.
	Create bool
	// Unlink removes the backing file on Close.
	Unlink bool
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Slab is a fixed array of equally sized slots in one mapped region.
type Slab struct {
	region   *internalshm.MappedRegion
	slotSize int
	tracer   trace.Tracer
	attrs    metric.MeasurementOption
	allocs   metric.Int64Counter
	frees    metric.Int64Counter
	reg      metric.Registration

	mu       sync.Mutex
	state    []slotState
	free     []Slot
	stats    Stats
	closed   bool
	unmapped chan struct{}
	unmapErr error
}

// Open maps a new slab.
func Open(ctx context.Context, opts OpenOptions) (*Slab, error) {
	if opts.Slots <= 0 || opts.SlotSize <= 0 {
		return nil, fmt.Errorf("%w: slots=%d slot size=%d", ErrInvalidOptions, opts.Slots, opts.SlotSize)
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider().Meter(instrumentation)
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer(instrumentation)
	}

	ctx, span := opts.Tracer.Start(ctx, "shm.Open", trace.WithAttributes(
		attribute.String("shm.name", opts.Name),
		attribute.Int("shm.slots", opts.Slots),
		attribute.Int("shm.slot_size", opts.SlotSize),
	))
	defer span.End()

	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name:   opts.Name,
		Size:   opts.Slots * opts.SlotSize,
		Create: opts.Create,
		Unlink: opts.Unlink,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s := &Slab{
		region:   region,
		slotSize: opts.SlotSize,
		tracer:   opts.Tracer,
		attrs:    metric.WithAttributes(attribute.String("shm.name", opts.Name)),
		state:    make([]slotState, opts.Slots),
		free:     make([]Slot, opts.Slots),
		stats:    Stats{Slots: opts.Slots, Free: opts.Slots},
		unmapped: make(chan struct{}),
	}
	for i := range s.free {
		// Pop from the end hands out slot 0 first.
		s.free[i] = Slot(opts.Slots - 1 - i)
	}
	if err := s.instrument(opts.Meter); err != nil {
		_ = internalshm.UnmapRegion(ctx, region)
		span.RecordError(err)
		return nil, err
	}
	return s, nil
}

func (s *Slab) instrument(meter metric.Meter) error {
	var err error
	if s.allocs, err = meter.Int64Counter("ebr.shm.allocs", metric.WithDescription("Slots allocated.")); err != nil {
		return err
	}
	if s.frees, err = meter.Int64Counter("ebr.shm.frees", metric.WithDescription("Slots returned to the free list.")); err != nil {
		return err
	}
	freeSlots, err := meter.Int64ObservableGauge("ebr.shm.free_slots", metric.WithDescription("Slots available to Alloc."))
	if err != nil {
		return err
	}
	s.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(freeSlots, int64(s.Stats().Free), s.attrs)
		return nil
	}, freeSlots)
	return err
}

// Bytes returns the memory of slot, or nil once the slab is closed. The slice
// is only valid while the slot is allocated, or inside a protected region that
// loaded it before the slot was retired or the slab was closed.
func (s *Slab) Bytes(slot Slot) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || int(slot) >= len(s.state) {
		return nil
	}
	return s.bytes(slot)
}

// bytes must be called with s.mu held on an open slab.
func (s *Slab) bytes(slot Slot) []byte {
	off := int(slot) * s.slotSize
	return s.region.Addr[off : off+s.slotSize : off+s.slotSize]
}

// SlotSize returns the size of each slot.
func (s *Slab) SlotSize() int {
	return s.slotSize
}

// Retire releases slot once the current grace period of p's collector has
// elapsed. It must be called inside a protected region of p.
func (s *Slab) Retire(p *ebr.Participant, slot Slot) error {
	if !p.Active() {
		panic(&ebr.ContractError{Op: "shm.Retire", Err: ebr.ErrDeferOutsideProtected})
	}
	if err := s.markRetired(slot); err != nil {
		return err
	}
	p.Defer(ebr.Release(slot, s.reclaim))
	return nil
}

// Close closes the slab at once and unmaps it after a grace period of p's
// collector, so a protected region still holding a slice from Bytes keeps
// valid memory until it exits. From now on Alloc, Free and Retire fail and
// Bytes returns nil; retired slots whose grace period ends later are dropped.
// Calls after the first are no-ops. Wait blocks until the unmap happened.
func (s *Slab) Close(ctx context.Context, p *ebr.Participant) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_, span := s.tracer.Start(ctx, "shm.Close")
	defer span.End()
	if s.reg != nil {
		_ = s.reg.Unregister()
	}
	p.Protected(func() {
		p.Defer(ebr.Release(s.region, s.unmap))
	})
	return nil
}

func (s *Slab) unmap(region *internalshm.MappedRegion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmapErr = internalshm.UnmapRegion(context.Background(), region)
	close(s.unmapped)
}

// Wait blocks until the region released by Close is unmapped and returns the
// unmap error.
func (s *Slab) Wait(ctx context.Context) error {
	select {
	case <-s.unmapped:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.unmapErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
