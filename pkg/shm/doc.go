// Package shm provides an off-heap slab of fixed-size slots whose release can
// be deferred through epoch-based reclamation.
//
// Slot memory lives in an mmap'd region (a /dev/shm file when named, anonymous
// memory otherwise), so the Go garbage collector never sees it and cannot keep
// it alive for a reader. A writer that unlinks a slot from a shared structure
// calls Retire instead of Free; the slot only returns to the free list once
// every protected region that could still be reading it has closed.
//
// Example usage:
//
//	slab, err := shm.Open(ctx, shm.OpenOptions{Slots: 1024, SlotSize: 256})
//	// ...
//	s, err := slab.Alloc()
//	copy(slab.Bytes(s), payload)
//	// publish s, later unlink it:
//	p.Protected(func() { _ = slab.Retire(p, s) })
//
// Slabs are instrumented with OpenTelemetry metrics and tracing when a Meter
// or Tracer is supplied.
package shm
