/*
 * MIT License
 *
 * Copyright (c) 2024 corelink authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package timer

import (
	"sync"
	"time"
)

// SchedID identifies a periodic schedule.
type SchedID uint64

// SchedClient receives periodic firings and, separately, a notice whenever
// the scheduler rebases all of its schedules because of a detected clock
// regression (section 4.A).
type SchedClient interface {
	OnScheduledFiring(id SchedID, when time.Time)
	OnClockRebase(id SchedID, shift time.Duration)
}

type schedule struct {
	id         SchedID
	client     SchedClient
	base       time.Time
	interval   time.Duration
	ignorePast bool
	timerID    ID
}

// Metrics receives counts of scheduler activity for ambient observability.
// A Scheduler with no metrics set uses noopSchedMetrics.
type Metrics interface {
	Fired(id SchedID)
	ClockRebased(shift time.Duration)
}

type noopSchedMetrics struct{}

func (noopSchedMetrics) Fired(SchedID)             {}
func (noopSchedMetrics) ClockRebased(time.Duration) {}

// Scheduler layers periodic firings on top of a Loop's one-shot timers, per
// section 4.A: next_time = base + ceil((now-base)/interval)*interval, with
// ignore_past adding one extra interval when now already passed base.
type Scheduler struct {
	loop *Loop

	mu      sync.Mutex
	next    uint64
	items   map[SchedID]*schedule
	metrics Metrics
}

// NewScheduler builds a Scheduler driven by loop. It registers itself for
// clock-regression notices so every active schedule is rebased and its
// client notified, per section 4.A.
func NewScheduler(loop *Loop) *Scheduler {
	s := &Scheduler{loop: loop, items: make(map[SchedID]*schedule), metrics: noopSchedMetrics{}}
	loop.OnClockRegression(s.rebaseAll)
	return s
}

// SetMetrics installs m as the Scheduler's metrics sink, replacing the
// default no-op. m must not be nil.
func (s *Scheduler) SetMetrics(m Metrics) {
	s.metrics = m
}

// nextFireTime implements the formula from section 4.A.
func nextFireTime(now, base time.Time, interval time.Duration, ignorePast bool) time.Time {
	if interval <= 0 {
		return base
	}
	elapsed := now.Sub(base)
	if elapsed < 0 {
		return base
	}
	n := elapsed / interval
	if elapsed%interval != 0 {
		n++
	}
	if ignorePast && now.After(base) {
		n++
	}
	return base.Add(time.Duration(n) * interval)
}

// Start registers a periodic schedule. ignorePast mirrors section 4.A: when
// true and now > base, the first firing is pushed one extra interval out
// (used by pollers that must not immediately replay a backlog).
func (s *Scheduler) Start(client SchedClient, base time.Time, interval time.Duration, ignorePast bool) SchedID {
	s.mu.Lock()
	s.next++
	id := SchedID(s.next)
	s.mu.Unlock()

	sc := &schedule{id: id, client: client, base: base, interval: interval, ignorePast: ignorePast}

	s.mu.Lock()
	s.items[id] = sc
	s.mu.Unlock()

	s.armNext(sc)
	return id
}

// Stop cancels a periodic schedule.
func (s *Scheduler) Stop(id SchedID) {
	s.mu.Lock()
	sc, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	s.mu.Unlock()
	if ok {
		s.loop.Disarm(sc.timerID)
	}
}

func (s *Scheduler) armNext(sc *schedule) {
	now := s.loop.Now()
	fire := nextFireTime(now, sc.base, sc.interval, sc.ignorePast)
	d := fire.Sub(now)
	if d < 0 {
		d = 0
	}
	sc.timerID = s.loop.Arm(d, func() {
		s.mu.Lock()
		_, live := s.items[sc.id]
		s.mu.Unlock()
		if !live {
			return
		}
		sc.client.OnScheduledFiring(sc.id, fire)
		s.metrics.Fired(sc.id)
		// next_time(id) > now immediately after a firing, per section 8's
		// scheduler invariant: base moves one interval past the firing that
		// just happened, so the next computed fire time is strictly later
		// than it, and ignorePast adds its extra interval only when the
		// loop has fallen more than an interval behind.
		sc.base = fire.Add(sc.interval)
		s.armNext(sc)
	})
}

func (s *Scheduler) rebaseAll(shift time.Duration) {
	s.mu.Lock()
	items := make([]*schedule, 0, len(s.items))
	for _, sc := range s.items {
		items = append(items, sc)
	}
	s.mu.Unlock()

	now := s.loop.Now()
	for _, sc := range items {
		s.loop.Disarm(sc.timerID)
		sc.base = now
		s.armNext(sc)
		sc.client.OnClockRebase(sc.id, shift)
		s.metrics.ClockRebased(shift)
	}
}
