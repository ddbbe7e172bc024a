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

// Package bufswap provides a byte buffer that readers load without locks and
// writers replace copy-on-write. Replaced buffers go back to a
// bytebufferpool.Pool only after an ebr grace period.
package bufswap

import (
	"errors"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

// ErrNotProtected is the cause of the *ebr.ContractError raised when a Buffer
// is used outside a protected region.
var ErrNotProtected = errors.New("buffer used outside a protected region")

// Buffer is a swappable byte buffer.
type Buffer struct {
	cur     atomic.Pointer[bytebufferpool.ByteBuffer]
	pool    *bytebufferpool.Pool
	version atomic.Uint64
}

// New returns a Buffer holding a copy of initial. A nil pool uses a private
// one.
func New(initial []byte, pool *bytebufferpool.Pool) *Buffer {
	if pool == nil {
		pool = new(bytebufferpool.Pool)
	}
	b := &Buffer{pool: pool}
	bb := pool.Get()
	_, _ = bb.Write(initial)
	b.cur.Store(bb)
	return b
}

func mustProtect(p *ebr.Participant, op string) {
	if !p.Active() {
		panic(&ebr.ContractError{Op: op, Err: ErrNotProtected})
	}
}

// Load returns the current contents. The slice must not be modified and is
// only valid until p leaves its protected region.
func (b *Buffer) Load(p *ebr.Participant) []byte {
	mustProtect(p, "bufswap.Load")
	bb := b.cur.Load()
	if bb == nil {
		return nil
	}
	return bb.B
}

// Store replaces the contents with a copy of data.
func (b *Buffer) Store(p *ebr.Participant, data []byte) {
	mustProtect(p, "bufswap.Store")
	bb := b.pool.Get()
	_, _ = bb.Write(data)
	b.retire(p, b.cur.Swap(bb))
}

// Append atomically appends data to the current contents. Concurrent
// appends are all applied, in some order.
func (b *Buffer) Append(p *ebr.Participant, data []byte) {
	mustProtect(p, "bufswap.Append")
	for {
		old := b.cur.Load()
		bb := b.pool.Get()
		if old != nil {
			_, _ = bb.Write(old.B)
		}
		_, _ = bb.Write(data)
		if b.cur.CompareAndSwap(old, bb) {
			b.retire(p, old)
			return
		}
		// bb was never published.
		b.pool.Put(bb)
	}
}

// Clear drops the contents; Load returns nil afterwards until the next Store.
func (b *Buffer) Clear(p *ebr.Participant) {
	mustProtect(p, "bufswap.Clear")
	b.retire(p, b.cur.Swap(nil))
}

// Version counts completed replacements.
func (b *Buffer) Version() uint64 {
	return b.version.Load()
}

func (b *Buffer) retire(p *ebr.Participant, old *bytebufferpool.ByteBuffer) {
	b.version.Add(1)
	if old != nil {
		p.Defer(ebr.Release(old, b.pool.Put))
	}
}
