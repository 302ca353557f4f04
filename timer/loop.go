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
	"container/heap"
	"context"
	"sync"
	"time"
)

// ID identifies an armed one-shot timer.
type ID uint64

type entry struct {
	id    ID
	fire  time.Time
	cb    func()
	index int
	alive bool
}

type entryHeap []*entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].fire.Before(h[j].fire) }
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// RegressionThreshold is the empirical bound from section 4.A: the system
// clock moving backwards by more than this since the last maintenance pass
// is treated as a clock regression. Exposed as a variable so implementations
// can reconfigure it, per the open question in section 9.
var RegressionThreshold = 5 * time.Minute

// maintenanceInterval is how often Loop checks for clock regression.
const maintenanceInterval = 10 * time.Second

// Loop is the single-threaded cooperative event loop. Every timer, every
// transport callback and every sink notification in corelink runs on the
// goroutine that calls Run.
type Loop struct {
	mu      sync.Mutex // guards registration only, per section 9's design note
	posted  chan func()
	timers  entryHeap
	nextID  uint64
	closed  chan struct{}
	nowFn   func() time.Time
	lastTick time.Time

	regressionCbs []func(shift time.Duration)
}

// NewLoop builds a Loop. now, if nil, defaults to time.Now.
func NewLoop(now func() time.Time) *Loop {
	if now == nil {
		now = time.Now
	}
	return &Loop{
		posted: make(chan func(), 256),
		closed: make(chan struct{}),
		nowFn:  now,
	}
}

// Now returns the loop's notion of the current time.
func (l *Loop) Now() time.Time { return l.nowFn() }

// Post enqueues fn to run on the loop goroutine. Safe to call from any
// goroutine; this is the only sanctioned way for a reader goroutine to reach
// into loop-owned state.
func (l *Loop) Post(fn func()) {
	select {
	case l.posted <- fn:
	case <-l.closed:
	}
}

// OnClockRegression registers a callback invoked whenever Run detects the
// system clock moved backwards by more than RegressionThreshold. shift is
// the (positive) magnitude of the backwards jump.
func (l *Loop) OnClockRegression(cb func(shift time.Duration)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.regressionCbs = append(l.regressionCbs, cb)
}

// Arm registers a one-shot callback fired after d. Must be called from the
// loop goroutine (i.e. from within a callback already running on the loop,
// or before Run starts).
func (l *Loop) Arm(d time.Duration, cb func()) ID {
	l.mu.Lock()
	l.nextID++
	id := ID(l.nextID)
	l.mu.Unlock()

	e := &entry{id: id, fire: l.nowFn().Add(d), cb: cb, alive: true}
	heap.Push(&l.timers, e)
	return id
}

// Disarm cancels a previously armed one-shot timer. A no-op if the timer
// already fired or does not exist.
func (l *Loop) Disarm(id ID) {
	for i, e := range l.timers {
		if e.id == id {
			e.alive = false
			heap.Remove(&l.timers, i)
			return
		}
	}
}

// Reset re-arms an existing timer to fire d from now, preserving its
// callback. If the id is unknown, Reset is a no-op.
func (l *Loop) Reset(id ID, d time.Duration) {
	for _, e := range l.timers {
		if e.id == id {
			e.fire = l.nowFn().Add(d)
			heap.Fix(&l.timers, e.index)
			return
		}
	}
}

// Close stops the loop; Run returns shortly after.
func (l *Loop) Close() {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
}

// Run drains posted events and fires timers until ctx is cancelled or Close
// is called. It is the only goroutine allowed to touch component state that
// was constructed against this Loop.
func (l *Loop) Run(ctx context.Context) {
	l.lastTick = l.nowFn()
	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()

	for {
		var fireC <-chan time.Time
		var timerT *time.Timer
		if len(l.timers) > 0 {
			d := l.timers[0].fire.Sub(l.nowFn())
			if d < 0 {
				d = 0
			}
			timerT = time.NewTimer(d)
			fireC = timerT.C
		}

		select {
		case <-ctx.Done():
			if timerT != nil {
				timerT.Stop()
			}
			return
		case <-l.closed:
			if timerT != nil {
				timerT.Stop()
			}
			return
		case fn := <-l.posted:
			if timerT != nil {
				timerT.Stop()
			}
			fn()
		case <-fireC:
			l.fireDue()
		case <-maintenance.C:
			if timerT != nil {
				timerT.Stop()
			}
			l.checkRegression()
		}
	}
}

func (l *Loop) fireDue() {
	now := l.nowFn()
	for len(l.timers) > 0 && !l.timers[0].fire.After(now) {
		e := heap.Pop(&l.timers).(*entry)
		if e.alive && e.cb != nil {
			e.cb()
		}
	}
}

func (l *Loop) checkRegression() {
	now := l.nowFn()
	if l.lastTick.Sub(now) > RegressionThreshold {
		shift := l.lastTick.Sub(now)
		l.mu.Lock()
		cbs := append([]func(time.Duration){}, l.regressionCbs...)
		l.mu.Unlock()
		for _, cb := range cbs {
			cb(shift)
		}
	}
	l.lastTick = now
}
