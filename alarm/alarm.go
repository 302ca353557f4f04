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

// Package alarm implements the condition-detection layer of section 4.N:
// an Alarm binds a compiled expression.Program to a trigger condition
// with a debounce window and a repeat count, and fires one or more
// Actions when the condition is met. An Alarm is itself a datasource.Sink
// so it re-evaluates inline, on the same dispatch loop as everything
// else, whenever its bound requests deliver records.
package alarm

import (
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/expression"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

// Condition selects how an Alarm's bound expression value is compared
// across evaluations, per section 4.N.
type Condition uint8

const (
	TriggerWhenTrue Condition = iota
	TriggerWhenFalse
	TriggerOnChange
)

// AckState tracks whether a still-true alarm has been acknowledged, per
// section 4.N.
type AckState uint8

const (
	Unacknowledged AckState = iota
	Acknowledged
	Cleared
)

// Action fires once when an Alarm transitions into the triggered state.
type Action interface {
	Fire(a *Alarm)
}

// LogAction writes a log line through the Alarm's logger.
type LogAction struct{ Message string }

func (la LogAction) Fire(a *Alarm) {
	a.log.WithField("alarm", a.Name).Warn(la.Message)
}

// CallbackAction invokes an arbitrary host callback.
type CallbackAction struct{ Fn func(a *Alarm) }

func (ca CallbackAction) Fire(a *Alarm) {
	if ca.Fn != nil {
		ca.Fn(a)
	}
}

// SetValueAction round-trips a value to a source via the Manager's
// SetValue, per section 4.N's "set-value" action kind.
type SetValueAction struct {
	Manager *datasource.Manager
	URI     string
	Value   datasource.Value
	Sink    datasource.SetSink
}

func (sa SetValueAction) Fire(a *Alarm) {
	sa.Manager.SetValue(sa.Sink, sa.URI, sa.Value)
}

// Alarm binds one compiled expression to a trigger condition and a set of
// Actions, per section 4.N.
type Alarm struct {
	Name string

	log  logctx.Logger
	loop *timer.Loop

	program   *expression.Program
	condition Condition
	debounce  time.Duration
	minCount  int

	actions []Action

	lastValue   *float64
	consecutive int
	debounceID  timer.ID
	triggered   bool
	ack         AckState
}

// New binds program (already compiled against the caller's
// datasource.Manager and sink) to condition, with debounce applied before
// a condition becomes "stuck" true, and minCount consecutive qualifying
// evaluations required before firing.
func New(name string, loop *timer.Loop, program *expression.Program, condition Condition, debounce time.Duration, minCount int, log logctx.Logger) *Alarm {
	if log == nil {
		log = logctx.NewNop()
	}
	if minCount < 1 {
		minCount = 1
	}
	return &Alarm{
		Name:      name,
		log:       log,
		loop:      loop,
		program:   program,
		condition: condition,
		debounce:  debounce,
		minCount:  minCount,
		ack:       Cleared,
	}
}

// AddAction appends act to the set fired on trigger.
func (a *Alarm) AddAction(act Action) { a.actions = append(a.actions, act) }

// Acknowledge moves a triggered-but-unacknowledged alarm to Acknowledged;
// a no-op otherwise.
func (a *Alarm) Acknowledge() {
	if a.ack == Unacknowledged {
		a.ack = Acknowledged
	}
}

// AckState reports the current acknowledgement state.
func (a *Alarm) AckState() AckState { return a.ack }

// Triggered reports whether the alarm is currently in the triggered state.
func (a *Alarm) Triggered() bool { return a.triggered }

// OnSinkReady implements datasource.Sink; alarms have no schema-only
// notification of their own.
func (a *Alarm) OnSinkReady(req *datasource.Request, rec *datasource.Record) {}

// OnSinkFailure implements datasource.Sink: a failed bound request clears
// any pending debounce and leaves the alarm in its last known state.
func (a *Alarm) OnSinkFailure(req *datasource.Request, code datasource.FailureCode) {
	a.log.WithField("alarm", a.Name).WithField("code", code).Warn("alarm source request failed")
	a.disarmDebounce()
}

// OnSinkRecords implements datasource.Sink: re-evaluate the bound
// expression and drive the trigger state machine, per section 4.N.
func (a *Alarm) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	values := a.collectValues(recs)
	v, err := a.program.Eval(values)
	if err != nil {
		a.log.WithField("alarm", a.Name).WithField("err", err).Warn("alarm expression evaluation failed")
		return
	}
	a.observe(v)
}

func (a *Alarm) collectValues(recs []*datasource.Record) map[string]float64 {
	values := make(map[string]float64, len(recs))
	for _, req := range a.program.Requests {
		for _, rec := range recs {
			if rec.Desc == nil {
				continue
			}
			segs := datasource.BreakdownURI(req.URI)
			if len(segs) == 0 {
				continue
			}
			col := segs[len(segs)-1].Name
			if val, ok := rec.Value(col); ok {
				values[req.URI] = val.AsFloat()
			}
		}
	}
	return values
}

func (a *Alarm) observe(v float64) {
	qualifies := false
	switch a.condition {
	case TriggerWhenTrue:
		qualifies = v != 0
	case TriggerWhenFalse:
		qualifies = v == 0
	case TriggerOnChange:
		qualifies = a.lastValue == nil || *a.lastValue != v
	}
	a.lastValue = new(float64)
	*a.lastValue = v

	if !qualifies {
		a.consecutive = 0
		a.disarmDebounce()
		return
	}

	a.consecutive++
	if a.consecutive < a.minCount {
		return
	}

	if a.debounce <= 0 {
		a.fire()
		return
	}
	if a.debounceID == 0 {
		a.debounceID = a.loop.Arm(a.debounce, func() {
			a.debounceID = 0
			a.fire()
		})
	}
}

func (a *Alarm) disarmDebounce() {
	if a.debounceID != 0 {
		a.loop.Disarm(a.debounceID)
		a.debounceID = 0
	}
}

func (a *Alarm) fire() {
	if a.triggered {
		return
	}
	a.triggered = true
	a.ack = Unacknowledged
	for _, act := range a.actions {
		act.Fire(a)
	}
}

// Clear resets a triggered alarm back to its idle, acknowledged-cleared
// state; used once the bound condition stops qualifying for a full
// debounce interval, driven by the caller (section 4.N's
// unacknowledged -> acknowledged -> cleared progression is caller-paced,
// not automatic on every non-qualifying evaluation).
func (a *Alarm) Clear() {
	a.triggered = false
	a.ack = Cleared
	a.consecutive = 0
	a.disarmDebounce()
}
