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

// Package database implements the database-backed datasource.Source named
// in section 4.K's component row K: an archive table of already-collected
// records, queried on a timer.Scheduler tick rather than pushed to by a
// live transport. It fronts a gorm.io/gorm connection so the same source
// can point at sqlite (the default, matching a single-station field
// archive), postgres, or mysql without a code change, the way the teacher
// repository's persistence helpers front multiple gorm dialects behind one
// API.
package database

import (
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

// Row is the gorm model backing one archived record. Station, Table and
// Column name the URI the row answers to; Value* fields carry exactly one
// populated slot per ValueType.
type Row struct {
	ID           int64 `gorm:"primaryKey"`
	Station      string
	TableName    string `gorm:"column:table_name"`
	Column       string
	RecordNo     int64
	Time         time.Time
	ValueType    uint8
	ValueBool    bool
	ValueInt     int64
	ValueFloat   float64
	ValueString  string
}

// TableName overrides gorm's pluralization default, matching the
// teacher's practice of naming archive tables explicitly rather than
// relying on convention.
func (Row) TableName() string { return "corelink_archive" }

// Source polls one gorm database for rows newer than the last record
// number it has delivered, grouped into records by (station, table).
type Source struct {
	name      string
	db        *gorm.DB
	manager   *datasource.Manager
	scheduler *timer.Scheduler
	interval  time.Duration
	base      time.Time
	log       logctx.Logger

	mu        sync.Mutex
	byKey     map[string]*trackedTable // "station.table" -> tracked state
	schedID   timer.SchedID
}

type trackedTable struct {
	desc     *datasource.Description
	lastRec  int64
	requests []*datasource.Request
}

// Open migrates Row into db (creating corelink_archive if absent) and
// returns a Source named name that polls it on scheduler every interval.
func Open(name string, db *gorm.DB, manager *datasource.Manager, scheduler *timer.Scheduler, interval time.Duration, base time.Time, log logctx.Logger) (*Source, errs.Error) {
	if log == nil {
		log = logctx.NewNop()
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, errs.New(errs.ClassResource, 0, "database: migrate failed", err)
	}
	return &Source{
		name:      name,
		db:        db,
		manager:   manager,
		scheduler: scheduler,
		interval:  interval,
		base:      base,
		log:       log,
		byKey:     make(map[string]*trackedTable),
	}, nil
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source: starts the poll schedule.
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

func tableKey(station, table string) string { return station + "." + table }

// AddRequest implements datasource.Source: replays every row already
// archived for the request's station.table, from the lowest record number
// up, then tracks req for future polled deltas. The request's start
// options are not consulted; the replay is always the whole archive.
func (s *Source) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	segs := datasource.BreakdownURI(req.URI)
	if len(segs) < 3 {
		return errs.New(errs.ClassParse, 0, "database: malformed uri "+req.URI, nil)
	}
	station, table := segs[1].Name, segs[2].Name
	key := tableKey(station, table)

	var rows []Row
	if err := s.db.Where("station = ? AND table_name = ?", station, table).Order("record_no asc").Find(&rows).Error; err != nil {
		return errs.New(errs.ClassResource, 0, "database: query failed", err)
	}

	s.mu.Lock()
	tt, ok := s.byKey[key]
	if !ok {
		tt = &trackedTable{desc: descriptorFor(station, table, rows)}
		s.byKey[key] = tt
	}
	tt.requests = append(tt.requests, req)
	recs := rowsToRecords(tt.desc, rows)
	for _, r := range recs {
		if r.RecordNo > tt.lastRec {
			tt.lastRec = r.RecordNo
		}
	}
	s.mu.Unlock()

	if len(recs) > 0 {
		s.manager.DeliverRecords([]*datasource.Request{req}, recs)
	}
	return nil
}

// RemoveRequest implements datasource.Source.
func (s *Source) RemoveRequest(req *datasource.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tt := range s.byKey {
		for i, r := range tt.requests {
			if r == req {
				tt.requests = append(tt.requests[:i], tt.requests[i+1:]...)
				return
			}
		}
	}
}

// OnScheduledFiring implements timer.SchedClient: for every tracked table,
// fetches rows newer than lastRec and delivers them to that table's
// requests.
func (s *Source) OnScheduledFiring(id timer.SchedID, when time.Time) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.mu.Lock()
		tt := s.byKey[key]
		station, table := splitKey(key)
		lastRec := tt.lastRec
		desc := tt.desc
		reqs := append([]*datasource.Request(nil), tt.requests...)
		s.mu.Unlock()

		if len(reqs) == 0 {
			continue
		}
		var rows []Row
		if err := s.db.Where("station = ? AND table_name = ? AND record_no > ?", station, table, lastRec).
			Order("record_no asc").Find(&rows).Error; err != nil {
			s.log.WithField("source", s.name).WithField("err", err).Warn("database: poll query failed")
			continue
		}
		if len(rows) == 0 {
			continue
		}
		recs := rowsToRecords(desc, rows)

		s.mu.Lock()
		for _, r := range recs {
			if r.RecordNo > tt.lastRec {
				tt.lastRec = r.RecordNo
			}
		}
		s.mu.Unlock()

		s.manager.DeliverRecords(reqs, recs)
	}
}

// OnClockRebase implements timer.SchedClient; the next poll simply resumes
// at the rebased schedule, the record-number cursor already preventing
// redelivery.
func (s *Source) OnClockRebase(id timer.SchedID, shift time.Duration) {}

func splitKey(key string) (station, table string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func descriptorFor(station, table string, rows []Row) *datasource.Description {
	seen := make(map[string]bool)
	desc := &datasource.Description{Station: station, Table: table}
	for _, r := range rows {
		if seen[r.Column] {
			continue
		}
		seen[r.Column] = true
		desc.Values = append(desc.Values, datasource.ValueDescriptor{
			Name: r.Column,
			Type: datasource.ValueType(r.ValueType),
		})
	}
	return desc
}

// rowsToRecords groups rows (one row per column per record number) into
// Records aligned with desc's column order.
func rowsToRecords(desc *datasource.Description, rows []Row) []*datasource.Record {
	byRecNo := make(map[int64]*datasource.Record)
	var order []int64
	for _, r := range rows {
		rec, ok := byRecNo[r.RecordNo]
		if !ok {
			rec = &datasource.Record{
				Desc:     desc,
				Time:     r.Time,
				RecordNo: r.RecordNo,
				Slots:    make([]datasource.Value, len(desc.Values)),
			}
			byRecNo[r.RecordNo] = rec
			order = append(order, r.RecordNo)
		}
		for i, vd := range desc.Values {
			if vd.Name != r.Column {
				continue
			}
			rec.Slots[i] = valueOf(r)
		}
	}
	recs := make([]*datasource.Record, 0, len(order))
	for _, recNo := range order {
		recs = append(recs, byRecNo[recNo])
	}
	return recs
}

func valueOf(r Row) datasource.Value {
	switch datasource.ValueType(r.ValueType) {
	case datasource.ValBool:
		return datasource.Value{Type: datasource.ValBool, Bool: r.ValueBool}
	case datasource.ValInt64:
		return datasource.Value{Type: datasource.ValInt64, Int: r.ValueInt}
	case datasource.ValFloat64:
		return datasource.Value{Type: datasource.ValFloat64, Float: r.ValueFloat}
	case datasource.ValString:
		return datasource.Value{Type: datasource.ValString, String: r.ValueString}
	default:
		return datasource.Value{}
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
