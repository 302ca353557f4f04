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

// Package virtual implements the synthetic datasource.Source of section
// 4.O: a table of named columns, each an expression.Program evaluated
// against live values from other registered sources, re-computed on a
// timer.Scheduler tick rather than in response to transport traffic.
package virtual

import (
	"sync"
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/expression"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

// column is one computed field of the virtual table: a name and the
// compiled expression that produces its value.
type column struct {
	name    string
	program *expression.Program
}

// Source is a datasource.Source whose records are computed rather than
// received from a transport. It is also a datasource.Sink: it binds one
// inner Request per free variable of every column's expression.Program
// against the real sources those expressions reference, caches the
// latest value each delivers, and feeds that cache to every column's
// Program.Eval on each scheduled tick.
type Source struct {
	name      string
	station   string
	table     string
	log       logctx.Logger
	manager   *datasource.Manager
	scheduler *timer.Scheduler
	interval  time.Duration
	base      time.Time

	mu       sync.Mutex
	columns  map[string]*column
	requests map[string][]*datasource.Request // column name -> requests asking for it
	cache    map[string]float64               // URI -> latest value, fed to Program.Eval
	schedID  timer.SchedID
}

// New builds a virtual source named name, exposing a single
// station.table pair, recomputed every interval starting from base (the
// Loop's current time at construction, since Scheduler exposes no public
// clock accessor of its own).
func New(name, station, table string, manager *datasource.Manager, scheduler *timer.Scheduler, interval time.Duration, base time.Time, log logctx.Logger) *Source {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Source{
		name:      name,
		station:   station,
		table:     table,
		log:       log,
		manager:   manager,
		scheduler: scheduler,
		interval:  interval,
		base:      base,
		columns:   make(map[string]*column),
		requests:  make(map[string][]*datasource.Request),
		cache:     make(map[string]float64),
	}
}

// AddColumn compiles src as the expression computing column colName,
// submitting one inner Request per free variable against s's manager so
// the cache stays current. moreToFollow is forwarded to Manager.AddRequest
// per section 4.K's batching convention.
func (s *Source) AddColumn(colName, src string, moreToFollow bool) errs.Error {
	prog, err := expression.Compile(src, s.manager, s, moreToFollow)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.columns[colName] = &column{name: colName, program: prog}
	s.mu.Unlock()
	return nil
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source: starts the recompute schedule and
// announces readiness immediately, since a virtual source has no
// transport handshake.
func (s *Source) Connect() {
	s.manager.NotifySourceConnecting(s.name)
	s.mu.Lock()
	s.schedID = s.scheduler.Start(s, s.base, s.interval, false)
	s.mu.Unlock()
	s.manager.NotifySourceConnect(s.name)
}

// Disconnect implements datasource.Source: stops the recompute schedule.
func (s *Source) Disconnect() {
	s.mu.Lock()
	id := s.schedID
	s.mu.Unlock()
	s.scheduler.Stop(id)
	s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectRequested)
}

// AddRequest implements datasource.Source: req must name one of this
// source's columns; it is registered to receive the next computed batch.
func (s *Source) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	col := columnOf(req.URI)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.columns[col]; !ok {
		return errs.Newf(errs.ClassParse, 0, nil, "virtual: %q names no column of source %q", req.URI, s.name)
	}
	s.requests[col] = append(s.requests[col], req)
	return nil
}

// RemoveRequest implements datasource.Source.
func (s *Source) RemoveRequest(req *datasource.Request) {
	col := columnOf(req.URI)
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs := s.requests[col]
	for i, r := range reqs {
		if r == req {
			s.requests[col] = append(reqs[:i], reqs[i+1:]...)
			return
		}
	}
}

func columnOf(uri string) string {
	segs := datasource.BreakdownURI(uri)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1].Name
}

// SetValue, file and terminal operations are not meaningful for a
// computed source; all report unsupported per section 4.K's "a source
// that cannot perform the operation returns false".
func (s *Source) SetValue(datasource.SetSink, string, datasource.Value) bool    { return false }
func (s *Source) SendFile(datasource.FileSink, string, string) bool             { return false }
func (s *Source) GetNewestFile(datasource.FileSink, string) bool                { return false }
func (s *Source) ClockCheck(datasource.FileSink) bool                           { return false }
func (s *Source) FileControl(datasource.FileSink, string, string) bool          { return false }
func (s *Source) ListFiles(datasource.FileSink, string) bool                    { return false }
func (s *Source) StartTerminal(datasource.TerminalSink, int64) bool             { return false }
func (s *Source) SendTerminal(int64, []byte) bool                               { return false }
func (s *Source) CloseTerminal(int64)                                           {}

// BreakdownURI implements datasource.Source.
func (s *Source) BreakdownURI(uri string) []datasource.Segment { return datasource.BreakdownURI(uri) }

// OnSinkReady implements datasource.Sink for the inner per-column
// Requests; the virtual source has no schema announcement of its own.
func (s *Source) OnSinkReady(req *datasource.Request, rec *datasource.Record) {}

// OnSinkFailure implements datasource.Sink: an upstream dependency
// failing leaves the cached value stale rather than zeroing it, so a
// transient failure doesn't momentarily swing a dependent expression.
func (s *Source) OnSinkFailure(req *datasource.Request, code datasource.FailureCode) {
	s.log.WithField("source", s.name).WithField("uri", req.URI).WithField("code", code).Warn("virtual source dependency failed")
}

// OnSinkRecords implements datasource.Sink: cache the latest value of
// every delivered dependency, keyed by the dependency's own URI so each
// column's Program.Eval sees it under the same key Program.Requests
// binds it to.
func (s *Source) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	if len(recs) == 0 {
		return
	}
	rec := recs[len(recs)-1]
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range reqs {
		col := columnOf(req.URI)
		if val, ok := rec.Value(col); ok {
			s.cache[req.URI] = val.AsFloat()
		}
	}
}

// OnScheduledFiring implements timer.SchedClient: recompute every column
// and deliver one batch per column to whichever requests are currently
// bound to it.
func (s *Source) OnScheduledFiring(id timer.SchedID, when time.Time) {
	s.mu.Lock()
	cacheSnapshot := make(map[string]float64, len(s.cache))
	for k, v := range s.cache {
		cacheSnapshot[k] = v
	}
	cols := make([]*column, 0, len(s.columns))
	for _, c := range s.columns {
		cols = append(cols, c)
	}
	s.mu.Unlock()

	desc := &datasource.Description{Station: s.station, Table: s.table}
	var slots []datasource.Value
	var computed []string
	for _, c := range cols {
		v, err := c.program.Eval(cacheSnapshot)
		if err != nil {
			s.log.WithField("column", c.name).WithField("err", err).Warn("virtual column evaluation failed")
			continue
		}
		computed = append(computed, c.name)
		desc.Values = append(desc.Values, datasource.ValueDescriptor{Name: c.name, Type: datasource.ValFloat64})
		slots = append(slots, datasource.Value{Type: datasource.ValFloat64, Float: v})
	}
	rec := &datasource.Record{Desc: desc, Time: when, Slots: slots}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range computed {
		reqs := s.requests[name]
		if len(reqs) == 0 {
			continue
		}
		s.manager.DeliverRecords(reqs, []*datasource.Record{rec})
	}
}

// OnClockRebase implements timer.SchedClient; no per-column state needs
// adjustment on a clock jump since Eval is stateless across the cache
// snapshot (running aggregates live inside each Program's own State and
// are unaffected by wall-clock time).
func (s *Source) OnClockRebase(id timer.SchedID, shift time.Duration) {}
