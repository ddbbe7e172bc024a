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

package queue

import (
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SegmentTestSuite struct {
	suite.Suite
}

func segmentsFor(n int) int {
	return (n + Capacity - 1) / Capacity
}

func (s *SegmentTestSuite) TestPushIterate() {
	q := New[int]()
	q.Push(495)
	s.Equal([]int{495}, slices.Collect(q.All()))
	s.Equal(1, q.Len())
	s.Equal(Capacity, q.Cap())
	s.Nil(q.Next())
}

func (s *SegmentTestSuite) TestEmptySegment() {
	q := New[string]()
	s.Empty(slices.Collect(q.All()))
	s.Empty(slices.Collect(q.Chain()))
	s.Equal(0, q.Len())
	s.Equal(1, q.Segments())
}

func (s *SegmentTestSuite) TestChainOrderAndSegmentCount() {
	for _, n := range []int{1, 13, 14, 15, 28, 29, 100, 1000} {
		q := New[int]()
		want := make([]int, n)
		for i := 0; i < n; i++ {
			q.Push(i)
			want[i] = i
		}
		s.Equal(want, slices.Collect(q.Chain()), "n=%d", n)
		s.Equal(segmentsFor(n), q.Segments(), "n=%d", n)
	}
}

func (s *SegmentTestSuite) TestAllDoesNotFollowNext() {
	q := New[int]()
	for i := 0; i < Capacity+3; i++ {
		q.Push(i)
	}
	s.Len(slices.Collect(q.All()), Capacity)
	s.Require().NotNil(q.Next())
	s.Equal([]int{Capacity, Capacity + 1, Capacity + 2}, slices.Collect(q.Next().All()))
}

func (s *SegmentTestSuite) TestAllIsSnapshot() {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	seq := q.All()
	q.Push(3)
	s.Equal([]int{1, 2}, slices.Collect(seq))
	s.Equal([]int{1, 2, 3}, slices.Collect(q.All()))
}

func (s *SegmentTestSuite) TestAllStopsEarly() {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	var got []int
	for v := range q.All() {
		if v == 3 {
			break
		}
		got = append(got, v)
	}
	s.Equal([]int{0, 1, 2}, got)
}

func (s *SegmentTestSuite) TestLenCappedAndMonotonic() {
	q := New[int]()
	last := 0
	for i := 0; i < 3*Capacity; i++ {
		q.Push(i)
		l := q.Len()
		s.LessOrEqual(l, q.Cap())
		s.GreaterOrEqual(l, last)
		last = l
	}
	s.Equal(Capacity, q.Len())
}

func TestSegmentTestSuite(t *testing.T) {
	suite.Run(t, new(SegmentTestSuite))
}

func TestConcurrentPushLosesNothing(t *testing.T) {
	const (
		writers   = 16
		perWriter = 2000
	)
	q := New[int]()
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			<-start
			for i := 0; i < perWriter; i++ {
				q.Push(base + i)
			}
		}(w * perWriter)
	}
	close(start)
	wg.Wait()

	got := slices.Collect(q.Chain())
	require.Len(t, got, writers*perWriter)
	sort.Ints(got)
	for i, v := range got {
		if v != i {
			t.Fatalf("value %d at sorted position %d: duplicate or lost element", v, i)
		}
	}
	assert.Equal(t, segmentsFor(writers*perWriter), q.Segments())
}

func TestConcurrentPushKeepsPerWriterOrder(t *testing.T) {
	const writers = 8
	const perWriter = 500
	q := New[[2]int]()
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Push([2]int{id, i})
			}
		}(w)
	}
	wg.Wait()

	next := make([]int, writers)
	for v := range q.Chain() {
		assert.Equal(t, next[v[0]], v[1], "writer %d out of order", v[0])
		next[v[0]]++
	}
	for w := 0; w < writers; w++ {
		assert.Equal(t, perWriter, next[w])
	}
}

func TestSegmentCreationRace(t *testing.T) {
	for round := 0; round < 500; round++ {
		q := New[int]()
		for i := 0; i < Capacity; i++ {
			q.Push(i)
		}
		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, v := range []int{100, 200} {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				<-start
				q.Push(v)
			}(v)
		}
		close(start)
		wg.Wait()

		require.Equal(t, 2, q.Segments())
		tail := slices.Collect(q.Next().All())
		sort.Ints(tail)
		require.Equal(t, []int{100, 200}, tail)
	}
}

func BenchmarkSegmentPush(b *testing.B) {
	q := New[int]()
	b.ReportAllocs()
	b.ResetTimer()
	tail := q
	for i := 0; i < b.N; i++ {
		tail.Push(i)
		if n := tail.Next(); n != nil {
			tail = n
		}
	}
}

func BenchmarkSegmentMultiPush(b *testing.B) {
	b.SetParallelism(50)
	q := New[int]()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		c, tail := 0, q
		for pb.Next() {
			c++
			tail.Push(c)
			if n := tail.Next(); n != nil {
				tail = n
			}
		}
	})
}
