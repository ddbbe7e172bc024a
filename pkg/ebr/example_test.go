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

package ebr_test

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

type node struct {
	value int
	next  *node
}

func Example() {
	c, err := ebr.New(&ebr.Config{Name: "example"})
	if err != nil {
		panic(err)
	}
	p := c.Join()
	defer p.Leave()

	pool := sync.Pool{New: func() any { return new(node) }}
	var recycled atomic.Int32

	var head atomic.Pointer[node]
	head.Store(&node{value: 1, next: &node{value: 2}})

	v := ebr.Protected(p, func() int {
		n := head.Load()
		if head.CompareAndSwap(n, n.next) {
			p.Defer(ebr.Release(n, func(n *node) {
				*n = node{}
				pool.Put(n)
				recycled.Add(1)
			}))
		}
		return n.value
	})
	fmt.Println("popped", v)

	res, _ := c.Collect()
	fmt.Println("first collect ran", res.Ran)
	res, _ = c.Collect()
	fmt.Println("second collect ran", res.Ran)
	fmt.Println("recycled", recycled.Load())

	// Output:
	// popped 1
	// first collect ran 0
	// second collect ran 1
	// recycled 1
}

func ExampleParticipant_Pin() {
	c, _ := ebr.New(nil)
	p := c.Join()
	defer p.Leave()

	g := p.Pin()
	g.Defer(ebr.TaskFunc(func() { fmt.Println("cleanup") }))
	fmt.Println("depth", p.Depth())
	g.Release()

	for c.Pending() > 0 {
		_, _ = c.Collect()
	}

	// Output:
	// depth 1
	// cleanup
}
