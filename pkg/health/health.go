// Package health turns collector progress into liveness and readiness checks.
package health

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/plugin-ebr/pkg/ebr"
)

// Monitor is an ebr.Observer that remembers when the collector last made
// progress. Attach it through ebr.Config.Observer (or ebr.Observers); the
// collector then binds itself and pending and participant counts are read
// from it directly.
type Monitor struct {
	name string
	now  func() time.Time
	src  atomic.Pointer[source]

	lastAdvance atomic.Int64
	pending     atomic.Int64
	live        atomic.Int64
	lagging     atomic.Int64
}

var (
	_ ebr.Observer = (*Monitor)(nil)
	_ ebr.Binder   = (*Monitor)(nil)
)

type source struct {
	ebr.Source
}

// NewMonitor returns a monitor for the named collector.
func NewMonitor(name string) *Monitor {
	m := &Monitor{name: name, now: time.Now}
	m.lastAdvance.Store(m.now().UnixNano())
	return m
}

// Status is a point-in-time view of the monitored collector.
type Status struct {
	LastAdvance  time.Time
	Pending      int
	Participants int
	Lagging      int
}

// Bind makes the monitor read counts from src instead of from events.
func (m *Monitor) Bind(src ebr.Source) {
	m.src.Store(&source{src})
}

// Status returns the latest observed state.
func (m *Monitor) Status() Status {
	st := Status{
		LastAdvance:  time.Unix(0, m.lastAdvance.Load()),
		Pending:      int(m.pending.Load()),
		Participants: int(m.live.Load()),
		Lagging:      int(m.lagging.Load()),
	}
	if src := m.src.Load(); src != nil {
		st.Pending = src.Pending()
		st.Participants = src.Participants()
	}
	return st
}

func (m *Monitor) ParticipantsChanged(live int) {
	m.live.Store(int64(live))
}

func (m *Monitor) TaskDeferred(_ ebr.Epoch, pending int) {
	m.pending.Store(int64(pending))
}

func (m *Monitor) CollectDone(_ time.Time, res ebr.Collection, _ error) {
	m.pending.Store(int64(res.Pending))
	m.lagging.Store(int64(res.Lagging))
	if res.Advanced {
		m.lastAdvance.Store(m.now().UnixNano())
	}
}

// StallCheck fails when tasks are waiting and the epoch has not advanced for
// longer than window. An idle collector with nothing pending never stalls.
func (m *Monitor) StallCheck(window time.Duration) healthcheck.Check {
	return func() error {
		st := m.Status()
		if st.Pending == 0 {
			return nil
		}
		if idle := m.now().Sub(st.LastAdvance); idle > window {
			return fmt.Errorf("ebr %s: epoch stuck for %s with %d pending tasks and %d lagging participants",
				m.name, idle.Truncate(time.Millisecond), st.Pending, st.Lagging)
		}
		return nil
	}
}

// BacklogCheck fails when more than max tasks are pending.
func (m *Monitor) BacklogCheck(max int) healthcheck.Check {
	return func() error {
		if n := m.Status().Pending; n > max {
			return fmt.Errorf("ebr %s: %d pending tasks exceeds %d", m.name, n, max)
		}
		return nil
	}
}

// Register installs the stall check as a liveness check and the backlog
// check as a readiness check on h.
func (m *Monitor) Register(h healthcheck.Handler, window time.Duration, maxPending int) {
	h.AddLivenessCheck("ebr-"+m.name+"-stall", m.StallCheck(window))
	h.AddReadinessCheck("ebr-"+m.name+"-backlog", m.BacklogCheck(maxPending))
}
