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

import "time"

// Observer receives collector events. Implementations must be safe for
// concurrent use and must not call back into the collector.
type Observer interface {
	// ParticipantsChanged reports the number of live participants after a
	// join or leave.
	ParticipantsChanged(live int)
	// TaskDeferred reports a task queued into epoch's bucket and the number
	// of tasks now pending across all buckets.
	TaskDeferred(epoch Epoch, pending int)
	// CollectDone reports one collection attempt that began at start.
	CollectDone(start time.Time, res Collection, err error)
}

// Source is the live state of a collector. Its methods are lock-free and
// always return the latest value, unlike the counts carried by Observer
// events, which can be delivered out of order when goroutines race.
type Source interface {
	Name() string
	Epoch() Epoch
	Generation() uint64
	Pending() int
	Participants() int
}

// Binder is implemented by observers that read gauges from the collector
// they observe. New calls Bind once, before it returns the collector.
type Binder interface {
	Bind(src Source)
}

type nopObserver struct{}

func (nopObserver) ParticipantsChanged(int)                  {}
func (nopObserver) TaskDeferred(Epoch, int)                  {}
func (nopObserver) CollectDone(time.Time, Collection, error) {}

type multiObserver []Observer

func (m multiObserver) ParticipantsChanged(live int) {
	for _, o := range m {
		o.ParticipantsChanged(live)
	}
}

func (m multiObserver) TaskDeferred(epoch Epoch, pending int) {
	for _, o := range m {
		o.TaskDeferred(epoch, pending)
	}
}

func (m multiObserver) CollectDone(start time.Time, res Collection, err error) {
	for _, o := range m {
		o.CollectDone(start, res, err)
	}
}

func (m multiObserver) Bind(src Source) {
	for _, o := range m {
		if b, ok := o.(Binder); ok {
			b.Bind(src)
		}
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	m := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}
