// Package ebr implements epoch-based reclamation for lock-free data
// structures.
//
// A goroutine that reads a shared structure does so inside a protected
// region of its Participant. A goroutine that unlinks memory from the
// structure defers the recycling of that memory as a Task instead of reusing
// it immediately. Collect advances the global epoch once every active
// participant has caught up, and runs the tasks deferred two epochs earlier:
// by then no region that could have seen the memory is still open.
//
// Example usage:
//
//	c, err := ebr.New(nil)
//	// ...
//	p := c.Join()
//	defer p.Leave()
//
//	v := ebr.Protected(p, func() int {
//		n := head.Load()
//		if head.CompareAndSwap(n, n.next) {
//			p.Defer(ebr.Release(n, pool.Put))
//		}
//		return n.value
//	})
//
//	_, err = c.Collect()
//
// Misuse (exit without enter, defer outside a region, leaving while inside
// one) panics with a *ContractError; these are bugs in the caller, not
// conditions to recover from.
package ebr
