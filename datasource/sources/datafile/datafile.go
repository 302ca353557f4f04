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

// Package datafile implements the local-file datasource.Source of
// section 4.P: it parses a TOA5-style comma-separated data file (an
// environment header line, a column-name line, a units line, a
// processing line, then one data row per record), replays the rows
// already on disk into newly added requests, and uses fsnotify to tail
// rows appended afterward.
package datafile

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

const timestampLayout = "2006-01-02 15:04:05"

// Source tails a single TOA5-style file on disk, exposing its columns as
// one station.table under this source's name.
type Source struct {
	name    string
	station string
	table   string
	path    string
	log     logctx.Logger
	loop    *timer.Loop
	manager *datasource.Manager

	mu       sync.Mutex
	desc     *datasource.Description
	requests []*datasource.Request
	rows     []*datasource.Record
	offset   int64 // byte offset in path already consumed

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New builds a datafile Source reading path, exposed as name:station.table.
func New(name, station, table, path string, manager *datasource.Manager, loop *timer.Loop, log logctx.Logger) *Source {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Source{
		name:    name,
		station: station,
		table:   table,
		path:    path,
		log:     log,
		loop:    loop,
		manager: manager,
	}
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source: parses the header, replays every
// row currently on disk, then arms an fsnotify watch for appended rows.
func (s *Source) Connect() {
	s.manager.NotifySourceConnecting(s.name)

	if err := s.loadExisting(); err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("datafile: initial read failed")
		s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectTransportFailure)
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("datafile: fsnotify unavailable")
		s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectTransportFailure)
		return
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		s.log.WithField("source", s.name).WithField("err", err).Warn("datafile: watch failed")
		s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectTransportFailure)
		return
	}
	s.mu.Lock()
	s.watcher = watcher
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.watchLoop(watcher, s.done)

	s.manager.NotifySourceConnect(s.name)
}

// Disconnect implements datasource.Source.
func (s *Source) Disconnect() {
	s.mu.Lock()
	w := s.watcher
	done := s.done
	s.watcher = nil
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		close(done)
	}
	if w != nil {
		w.Close()
	}
	s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectRequested)
}

func (s *Source) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.loop.Post(func() { s.tail() })
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// loadExisting parses the four TOA5 header lines and every data row
// currently present, building the initial replay set.
func (s *Source) loadExisting() errs.Error {
	f, err := os.Open(s.path)
	if err != nil {
		return errs.New(errs.ClassResource, 0, "datafile: open failed", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	if _, err := r.Read(); err != nil { // environment line, discarded
		return errs.New(errs.ClassParse, 0, "datafile: missing environment line", err)
	}
	names, err := r.Read()
	if err != nil {
		return errs.New(errs.ClassParse, 0, "datafile: missing column-name line", err)
	}
	if _, err := r.Read(); err != nil { // units line, discarded
		return errs.New(errs.ClassParse, 0, "datafile: missing units line", err)
	}
	if _, err := r.Read(); err != nil { // processing line, discarded
		return errs.New(errs.ClassParse, 0, "datafile: missing processing line", err)
	}

	desc := &datasource.Description{Station: s.station, Table: s.table}
	for _, n := range names[2:] { // column 0 = timestamp, column 1 = record number
		desc.Values = append(desc.Values, datasource.ValueDescriptor{Name: n, Type: datasource.ValFloat64})
	}

	var rows []*datasource.Record
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.New(errs.ClassParse, 0, "datafile: malformed data row", err)
		}
		rec, perr := parseRow(desc, fields)
		if perr != nil {
			s.log.WithField("source", s.name).WithField("err", perr).Warn("datafile: skipping malformed row")
			continue
		}
		rows = append(rows, rec)
	}

	pos, _ := f.Seek(0, io.SeekCurrent)

	s.mu.Lock()
	s.desc = desc
	s.rows = rows
	s.offset = pos
	s.mu.Unlock()
	return nil
}

func parseRow(desc *datasource.Description, fields []string) (*datasource.Record, errs.Error) {
	if len(fields) < 2 {
		return nil, errs.New(errs.ClassParse, 0, "datafile: row has fewer than 2 fields", nil)
	}
	ts, err := time.Parse(timestampLayout, fields[0])
	if err != nil {
		return nil, errs.New(errs.ClassParse, 0, "datafile: bad timestamp", err)
	}
	recNo, _ := strconv.ParseInt(fields[1], 10, 64)

	values := fields[2:]
	slots := make([]datasource.Value, len(desc.Values))
	for i := range desc.Values {
		if i >= len(values) {
			continue
		}
		f, err := strconv.ParseFloat(values[i], 64)
		if err != nil {
			slots[i] = datasource.Value{Type: datasource.ValString, String: values[i]}
			continue
		}
		slots[i] = datasource.Value{Type: datasource.ValFloat64, Float: f}
	}
	return &datasource.Record{Desc: desc, Time: ts, RecordNo: recNo, Slots: slots}, nil
}

// tail re-reads appended rows past s.offset and delivers them to every
// active request, per section 4.P's "uses fsnotify to watch the file for
// appended rows and delivers them as on_sink_records".
func (s *Source) tail() {
	s.mu.Lock()
	offset := s.offset
	desc := s.desc
	s.mu.Unlock()
	if desc == nil {
		return
	}

	f, err := os.Open(s.path)
	if err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("datafile: reopen for tail failed")
		return
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	var fresh []*datasource.Record
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		rec, perr := parseRow(desc, fields)
		if perr != nil {
			continue
		}
		fresh = append(fresh, rec)
	}
	pos, _ := f.Seek(0, io.SeekCurrent)

	s.mu.Lock()
	s.rows = append(s.rows, fresh...)
	s.offset = pos
	reqs := append([]*datasource.Request(nil), s.requests...)
	s.mu.Unlock()

	if len(fresh) == 0 || len(reqs) == 0 {
		return
	}
	s.manager.DeliverRecords(reqs, fresh)
}

// AddRequest implements datasource.Source: replays whatever rows are
// already on disk, honoring StartAtNewest (only the newest row) vs. every
// other StartOption (the full replay set), then registers req to receive
// future tailed rows.
func (s *Source) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	s.mu.Lock()
	desc := s.desc
	rows := append([]*datasource.Record(nil), s.rows...)
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if desc == nil {
		return nil
	}
	if req.Start == datasource.StartAtNewest {
		if len(rows) > 0 {
			s.manager.DeliverRecords([]*datasource.Request{req}, rows[len(rows)-1:])
		}
		return nil
	}
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
