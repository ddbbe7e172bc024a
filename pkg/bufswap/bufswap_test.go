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

package bufswap

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

type BufferTestSuite struct {
	suite.Suite
	c *ebr.Collector
	p *ebr.Participant
}

func (s *BufferTestSuite) SetupTest() {
	c, err := ebr.New(&ebr.Config{Name: "bufswap"})
	s.Require().NoError(err)
	s.c = c
	s.p = c.Join()
}

func (s *BufferTestSuite) TearDownTest() {
	s.p.Leave()
}

func (s *BufferTestSuite) load(b *Buffer) string {
	return ebr.Protected(s.p, func() string { return string(b.Load(s.p)) })
}

func (s *BufferTestSuite) TestStoreAndLoad() {
	b := New([]byte("v1"), nil)
	s.Equal("v1", s.load(b))

	s.p.Protected(func() { b.Store(s.p, []byte("v2")) })
	s.Equal("v2", s.load(b))
	s.Equal(uint64(1), b.Version())
	s.Equal(1, s.c.Pending())
}

func (s *BufferTestSuite) TestOldViewSurvivesUntilGracePeriod() {
	b := New([]byte("original"), nil)
	reader := s.c.Join()
	defer reader.Leave()

	reader.Enter()
	view := b.Load(reader)
	s.p.Protected(func() { b.Store(s.p, []byte("replaced")) })

	for i := 0; i < 5; i++ {
		_, _ = s.c.Collect()
	}
	s.Equal(1, s.c.Pending())
	s.Equal("original", string(view))
	reader.Exit()

	_, _ = s.c.Collect()
	s.Zero(s.c.Pending())
}

func (s *BufferTestSuite) TestAppendAndClear() {
	b := New(nil, nil)
	s.p.Protected(func() {
		b.Append(s.p, []byte("ab"))
		b.Append(s.p, []byte("cd"))
	})
	s.Equal("abcd", s.load(b))

	s.p.Protected(func() { b.Clear(s.p) })
	s.Empty(s.load(b))
	s.p.Protected(func() { b.Append(s.p, []byte("x")) })
	s.Equal("x", s.load(b))
	s.Equal(uint64(4), b.Version())
}

func (s *BufferTestSuite) TestOutsideRegionIsFatal() {
	b := New(nil, nil)
	defer func() {
		r := recover()
		ce, ok := r.(*ebr.ContractError)
		s.Require().True(ok)
		s.True(errors.Is(ce, ErrNotProtected))
		s.Equal("bufswap.Load", ce.Op)
	}()
	b.Load(s.p)
}

func (s *BufferTestSuite) TestRecyclesIntoPool() {
	var pool bytebufferpool.Pool
	b := New([]byte("a"), &pool)
	s.p.Protected(func() { b.Store(s.p, []byte("b")) })
	_, _ = s.c.Collect()
	_, _ = s.c.Collect()

	bb := pool.Get()
	s.Zero(bb.Len(), "pool must hand back a reset buffer")
	pool.Put(bb)
	s.Equal("b", s.load(b))
}

func TestBufferTestSuite(t *testing.T) {
	suite.Run(t, new(BufferTestSuite))
}

func TestConcurrentAppend(t *testing.T) {
	c, err := ebr.New(nil)
	require.NoError(t, err)
	b := New(nil, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := c.Join()
			defer p.Leave()
			for i := 0; i < 100; i++ {
				p.Protected(func() {
					b.Append(p, []byte("x"))
					_ = b.Load(p)
				})
				if i%10 == 0 {
					_, _ = c.Collect()
				}
			}
		}()
	}
	wg.Wait()

	p := c.Join()
	defer p.Leave()
	got := ebr.Protected(p, func() string { return string(b.Load(p)) })
	assert.Equal(t, strings.Repeat("x", 800), got)
	assert.Equal(t, uint64(800), b.Version())
}
