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

// Package httpsource implements the HTTP-polled datasource.Source of
// section 4.K: a timer.Scheduler tick issues one GET against a logger's
// data API through httpclient.Connection, and the JSON array of rows it
// returns is delivered to every active request. httpclient.Request.Wait
// blocks, so it is awaited on its own goroutine and the continuation is
// posted back onto the owning timer.Loop rather than run inline.
package httpsource

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/httpclient"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

// row is one record as served by the logger's JSON data API: a timestamp,
// a record number, and a flat map of column name to numeric value.
type row struct {
	Timestamp time.Time          `json:"timestamp"`
	RecordNo  int64              `json:"record_no"`
	Values    map[string]float64 `json:"values"`
}

// Source polls path on an HTTP(S) logger and exposes the returned rows as
// one station.table under this source's name.
type Source struct {
	name     string
	station  string
	table    string
	path     string
	auth     httpclient.Auth
	log      logctx.Logger
	loop     *timer.Loop
	manager  *datasource.Manager
	conn     *httpclient.Connection
	sched    *timer.Scheduler
	interval time.Duration
	base     time.Time

	mu       sync.Mutex
	desc     *datasource.Description
	requests []*datasource.Request
	rows     []*datasource.Record
	schedID  timer.SchedID
}

// New builds an httpsource Source. base is the Loop's current time at
// construction, since Scheduler exposes no public clock accessor of its
// own. conn targets the logger's host; auth, if non-nil, signs each poll.
func New(name, station, table, path string, auth httpclient.Auth, manager *datasource.Manager, loop *timer.Loop, conn *httpclient.Connection, sched *timer.Scheduler, interval time.Duration, base time.Time, log logctx.Logger) *Source {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Source{
		name: name, station: station, table: table, path: path,
		auth: auth, log: log, loop: loop, manager: manager,
		conn: conn, sched: sched, interval: interval, base: base,
	}
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source: starts the polling schedule.
func (s *Source) Connect() {
	s.manager.NotifySourceConnecting(s.name)
	s.mu.Lock()
	s.schedID = s.sched.Start(s, s.base, s.interval, false)
	s.mu.Unlock()
	s.manager.NotifySourceConnect(s.name)
}

// Disconnect implements datasource.Source: stops polling.
func (s *Source) Disconnect() {
	s.mu.Lock()
	id := s.schedID
	s.mu.Unlock()
	s.sched.Stop(id)
	s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectRequested)
}

// OnScheduledFiring implements timer.SchedClient: issues one GET and waits
// for it on a dedicated goroutine, posting the parse-and-deliver step back
// onto the loop once the request completes so no loop callback ever blocks
// on network I/O.
func (s *Source) OnScheduledFiring(id timer.SchedID, when time.Time) {
	req := httpclient.NewRequest("GET", s.path)
	req.Auth = s.auth
	s.conn.Do(req)

	go func() {
		err := req.Wait()
		s.loop.Post(func() { s.handleResponse(req, err) })
	}()
}

// OnClockRebase implements timer.SchedClient; the next poll simply fires on
// its rescheduled tick.
func (s *Source) OnClockRebase(id timer.SchedID, shift time.Duration) {}

func (s *Source) handleResponse(req *httpclient.Request, err error) {
	if err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("httpsource: poll failed")
		return
	}
	if req.StatusCode < 200 || req.StatusCode >= 300 {
		s.log.WithField("source", s.name).WithField("status", req.StatusCode).Warn("httpsource: non-2xx response")
		return
	}

	var decoded []row
	if jerr := json.Unmarshal(req.RespBody.Bytes(), &decoded); jerr != nil {
		s.log.WithField("source", s.name).WithField("err", jerr).Warn("httpsource: malformed response body")
		return
	}
	if len(decoded) == 0 {
		return
	}

	s.mu.Lock()
	desc := s.desc
	if desc == nil {
		desc = &datasource.Description{Station: s.station, Table: s.table}
		for name := range decoded[0].Values {
			desc.Values = append(desc.Values, datasource.ValueDescriptor{Name: name, Type: datasource.ValFloat64})
		}
		s.desc = desc
	}
	s.mu.Unlock()

	fresh := make([]*datasource.Record, 0, len(decoded))
	for _, r := range decoded {
		slots := make([]datasource.Value, len(desc.Values))
		for i, vd := range desc.Values {
			slots[i] = datasource.Value{Type: datasource.ValFloat64, Float: r.Values[vd.Name]}
		}
		fresh = append(fresh, &datasource.Record{Desc: desc, Time: r.Timestamp, RecordNo: r.RecordNo, Slots: slots})
	}

	s.mu.Lock()
	s.rows = append(s.rows, fresh...)
	reqs := append([]*datasource.Request(nil), s.requests...)
	s.mu.Unlock()

	if len(reqs) > 0 {
		s.manager.DeliverRecords(reqs, fresh)
	}
}

// AddRequest implements datasource.Source: replays whatever rows have
// already been polled, then registers req for future batches.
func (s *Source) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	s.mu.Lock()
	rows := append([]*datasource.Record(nil), s.rows...)
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if len(rows) > 0 {
		s.manager.DeliverRecords([]*datasource.Request{req}, rows)
	}
	return nil
}

// RemoveRequest implements datasource.Source.
func (s *Source) RemoveRequest(req *datasource.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.requests {
		if r == req {
			s.requests = append(s.requests[:i], s.requests[i+1:]...)
			return
		}
	}
}

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
