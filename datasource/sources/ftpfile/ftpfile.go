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

// Package ftpfile implements the FTP-drop variant of section 4.P: the
// same replay/tail contract as datafile, but the data file lives on a
// remote FTP landing zone rather than local disk. A timer.Scheduler tick
// lists the drop directory, detects newly staged files by name and size,
// retrieves them with github.com/jlaffaye/ftp, and parses them with the
// same TOA5 row format datafile uses.
package ftpfile

import (
	"bufio"
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

const timestampLayout = "2006-01-02 15:04:05"

// Dialer abstracts github.com/jlaffaye/ftp's connection setup so tests can
// substitute a fake server without a real network dial.
type Dialer interface {
	Dial(addr string) (Conn, error)
}

// Conn is the subset of *ftp.ServerConn this source depends on.
type Conn interface {
	Login(user, pass string) error
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type liveDialer struct{}

func (liveDialer) Dial(addr string) (Conn, error) {
	c, err := ftp.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &liveConn{c}, nil
}

type liveConn struct{ c *ftp.ServerConn }

func (l *liveConn) Login(user, pass string) error { return l.c.Login(user, pass) }
func (l *liveConn) List(path string) ([]*ftp.Entry, error) { return l.c.List(path) }
func (l *liveConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := l.c.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
func (l *liveConn) Quit() error { return l.c.Quit() }

// NewLiveDialer returns the Dialer backed by the real jlaffaye/ftp client.
func NewLiveDialer() Dialer { return liveDialer{} }

// Source polls dropDir on addr for new files matching the TOA5 row format,
// exposing their combined rows as one station.table under this source's
// name.
type Source struct {
	name     string
	station  string
	table    string
	addr     string
	user     string
	pass     string
	dropDir  string
	dialer   Dialer
	log      logctx.Logger
	manager  *datasource.Manager
	scheduler *timer.Scheduler
	interval time.Duration
	base     time.Time

	mu       sync.Mutex
	desc     *datasource.Description
	rows     []*datasource.Record
	seen     map[string]int64 // file name -> size already ingested
	requests []*datasource.Request
	schedID  timer.SchedID
}

// New builds an ftpfile Source. base is the Loop's current time at
// construction, since Scheduler exposes no public clock accessor.
func New(name, station, table, addr, user, pass, dropDir string, dialer Dialer, manager *datasource.Manager, scheduler *timer.Scheduler, interval time.Duration, base time.Time, log logctx.Logger) *Source {
	if log == nil {
		log = logctx.NewNop()
	}
	if dialer == nil {
		dialer = NewLiveDialer()
	}
	return &Source{
		name: name, station: station, table: table,
		addr: addr, user: user, pass: pass, dropDir: dropDir,
		dialer: dialer, log: log, manager: manager,
		scheduler: scheduler, interval: interval, base: base,
		seen: make(map[string]int64),
	}
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source: starts the polling schedule.
func (s *Source) Connect() {
	s.manager.NotifySourceConnecting(s.name)
	s.mu.Lock()
	s.schedID = s.scheduler.Start(s, s.base, s.interval, false)
	s.mu.Unlock()
	s.manager.NotifySourceConnect(s.name)
}

// Disconnect implements datasource.Source: stops polling.
func (s *Source) Disconnect() {
	s.mu.Lock()
	id := s.schedID
	s.mu.Unlock()
	s.scheduler.Stop(id)
	s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectRequested)
}

// OnScheduledFiring implements timer.SchedClient: lists the drop
// directory, retrieves any file whose size grew since last seen, and
// delivers its rows.
func (s *Source) OnScheduledFiring(id timer.SchedID, when time.Time) {
	conn, err := s.dialer.Dial(s.addr)
	if err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("ftpfile: dial failed")
		return
	}
	defer conn.Quit()
	if err := conn.Login(s.user, s.pass); err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("ftpfile: login failed")
		return
	}

	entries, err := conn.List(s.dropDir)
	if err != nil {
		s.log.WithField("source", s.name).WithField("err", err).Warn("ftpfile: list failed")
		return
	}

	var fresh []*datasource.Record
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		s.mu.Lock()
		priorSize, known := s.seen[e.Name]
		s.mu.Unlock()
		if known && priorSize >= int64(e.Size) {
			continue
		}

		remote := s.dropDir + "/" + e.Name
		body, err := conn.Retr(remote)
		if err != nil {
			s.log.WithField("source", s.name).WithField("file", e.Name).WithField("err", err).Warn("ftpfile: retrieve failed")
			continue
		}
		recs, desc, perr := parseTOA5(body)
		body.Close()
		if perr != nil {
			s.log.WithField("source", s.name).WithField("file", e.Name).WithField("err", perr).Warn("ftpfile: parse failed")
			continue
		}

		s.mu.Lock()
		if s.desc == nil {
			s.desc = desc
		}
		s.seen[e.Name] = int64(e.Size)
		s.rows = append(s.rows, recs...)
		s.mu.Unlock()
		fresh = append(fresh, recs...)
	}

	if len(fresh) == 0 {
		return
	}
	s.mu.Lock()
	reqs := append([]*datasource.Request(nil), s.requests...)
	s.mu.Unlock()
	if len(reqs) > 0 {
		s.manager.DeliverRecords(reqs, fresh)
	}
}

// OnClockRebase implements timer.SchedClient; polling simply resumes on
// its next tick, with no backlog replay (the dedup-by-size check in
// OnScheduledFiring already prevents double ingestion).
func (s *Source) OnClockRebase(id timer.SchedID, shift time.Duration) {}

func parseTOA5(r io.Reader) ([]*datasource.Record, *datasource.Description, errs.Error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1

	if _, err := cr.Read(); err != nil {
		return nil, nil, errs.New(errs.ClassParse, 0, "ftpfile: missing environment line", err)
	}
	names, err := cr.Read()
	if err != nil {
		return nil, nil, errs.New(errs.ClassParse, 0, "ftpfile: missing column-name line", err)
	}
	if _, err := cr.Read(); err != nil {
		return nil, nil, errs.New(errs.ClassParse, 0, "ftpfile: missing units line", err)
	}
	if _, err := cr.Read(); err != nil {
		return nil, nil, errs.New(errs.ClassParse, 0, "ftpfile: missing processing line", err)
	}

	desc := &datasource.Description{}
	for _, n := range names[2:] {
		desc.Values = append(desc.Values, datasource.ValueDescriptor{Name: n, Type: datasource.ValFloat64})
	}

	var rows []*datasource.Record
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errs.New(errs.ClassParse, 0, "ftpfile: malformed data row", err)
		}
		if len(fields) < 2 {
			continue
		}
		ts, terr := time.Parse(timestampLayout, fields[0])
		if terr != nil {
			continue
		}
		recNo, _ := strconv.ParseInt(fields[1], 10, 64)
		values := fields[2:]
		slots := make([]datasource.Value, len(desc.Values))
		for i := range desc.Values {
			if i >= len(values) {
				continue
			}
			f, ferr := strconv.ParseFloat(values[i], 64)
			if ferr != nil {
				slots[i] = datasource.Value{Type: datasource.ValString, String: values[i]}
				continue
			}
			slots[i] = datasource.Value{Type: datasource.ValFloat64, Float: f}
		}
		rows = append(rows, &datasource.Record{Desc: desc, Time: ts, RecordNo: recNo, Slots: slots})
	}
	return rows, desc, nil
}

// AddRequest implements datasource.Source: replays whatever rows have
// already been ingested, then registers req for future polled batches.
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
