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

package datasource

import (
	"time"

	"github.com/google/uuid"
)

// StartOption selects where in a table's history a Request begins
// collecting, per section 3.
type StartOption uint8

const (
	StartAtRecord StartOption = iota
	StartAtTime
	StartAtNewest
	StartAfterNewest
	StartRelativeToNewest
	StartAtOffsetFromNewest
	StartDateRange
)

// OrderOption selects delivery ordering, per section 3.
type OrderOption uint8

const (
	OrderCollected OrderOption = iota
	OrderLoggedWithHoles
	OrderLoggedWithoutHoles
	OrderRealTime
)

// LifecycleState is a Request's position in the state machine of section
// 4.K: pending -> started -> received-advise -> (satisfied | failed |
// removed).
type LifecycleState uint8

const (
	StatePending LifecycleState = iota
	StateStarted
	StateReceivedAdvise
	StateSatisfied
	StateFailed
	StateRemoved
)

// Request is immutable after Freeze, per section 3. Fields are exported for
// construction but callers must not mutate a frozen Request; once frozen,
// the setter methods below become no-ops. Direct writes to the exported
// fields are not prevented.
type Request struct {
	ID   string
	Sink Sink
	URI  string

	Start      StartOption
	StartTime  time.Time
	StartRecNo int64
	Offset     int64 // interpretation depends on Start (nsec or record count)

	Order OrderOption

	ValueIndexBegin int
	ValueIndexEnd   int // exclusive; 0,0 means "whole record"

	ReportTimeOffset time.Duration
	MoreToFollow     bool

	state   LifecycleState
	frozen  bool
}

// NewRequest builds a pending, unfrozen Request bound to sink and uri.
func NewRequest(sink Sink, uri string) *Request {
	return &Request{ID: uuid.NewString(), Sink: sink, URI: uri, state: StatePending}
}

// Freeze locks the request's configuration; subsequent mutation attempts via
// the setter methods below are no-ops.
func (r *Request) Freeze() { r.frozen = true }

// Frozen reports whether Freeze has been called.
func (r *Request) Frozen() bool { return r.frozen }

// SetStart configures the start option; a no-op once frozen.
func (r *Request) SetStart(opt StartOption) {
	if r.frozen {
		return
	}
	r.Start = opt
}

// SetOrder configures the order option; a no-op once frozen.
func (r *Request) SetOrder(opt OrderOption) {
	if r.frozen {
		return
	}
	r.Order = opt
}

// SetOffset configures the offset (interpretation depends on Start); a
// no-op once frozen.
func (r *Request) SetOffset(d time.Duration) {
	if r.frozen {
		return
	}
	r.Offset = int64(d)
}

// SetStartTime configures the absolute start time used by StartAtTime and
// StartDateRange; a no-op once frozen.
func (r *Request) SetStartTime(t time.Time) {
	if r.frozen {
		return
	}
	r.StartTime = t
}

// SetStartRecNo configures the record number used by StartAtRecord; a no-op
// once frozen.
func (r *Request) SetStartRecNo(n int64) {
	if r.frozen {
		return
	}
	r.StartRecNo = n
}

// SetReportTimeOffset configures whether records should carry a per-value
// time offset, per section 4.M's StartRelativeToNewest / time-series
// reporting tokens; a no-op once frozen.
func (r *Request) SetReportTimeOffset(d time.Duration) {
	if r.frozen {
		return
	}
	r.ReportTimeOffset = d
}

// State returns the request's current lifecycle state.
func (r *Request) State() LifecycleState { return r.state }

// transition moves the request to state s; a terminal state (satisfied,
// failed, removed) cannot be left.
func (r *Request) transition(s LifecycleState) {
	switch r.state {
	case StateSatisfied, StateFailed, StateRemoved:
		return
	default:
		r.state = s
	}
}
