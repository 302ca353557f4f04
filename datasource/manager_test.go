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
	"testing"

	"github.com/lnetcore/corelink/errs"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name    string
	added   []*Request
	removed []*Request
}

func (f *fakeSource) Name() string     { return f.name }
func (f *fakeSource) Connect()         {}
func (f *fakeSource) Disconnect()      {}
func (f *fakeSource) AddRequest(req *Request, more bool) errs.Error {
	f.added = append(f.added, req)
	return nil
}
func (f *fakeSource) RemoveRequest(req *Request) { f.removed = append(f.removed, req) }
func (f *fakeSource) SetValue(SetSink, string, Value) bool       { return true }
func (f *fakeSource) SendFile(FileSink, string, string) bool     { return true }
func (f *fakeSource) GetNewestFile(FileSink, string) bool        { return true }
func (f *fakeSource) ClockCheck(FileSink) bool                   { return true }
func (f *fakeSource) FileControl(FileSink, string, string) bool  { return true }
func (f *fakeSource) ListFiles(FileSink, string) bool             { return true }
func (f *fakeSource) StartTerminal(TerminalSink, int64) bool      { return true }
func (f *fakeSource) SendTerminal(int64, []byte) bool             { return true }
func (f *fakeSource) CloseTerminal(int64)                         {}
func (f *fakeSource) BreakdownURI(uri string) []Segment           { return BreakdownURI(uri) }

type fakeSink struct {
	ready    []*Record
	failures []FailureCode
	batches  int
}

func (s *fakeSink) OnSinkReady(req *Request, rec *Record)      { s.ready = append(s.ready, rec) }
func (s *fakeSink) OnSinkFailure(req *Request, code FailureCode) { s.failures = append(s.failures, code) }
func (s *fakeSink) OnSinkRecords(reqs []*Request, recs []*Record) { s.batches++ }

func TestAddRequestRoutesToSourceByURIPrefix(t *testing.T) {
	m := NewManager(nil)
	src := &fakeSource{name: "stationA"}
	m.AddSource(src)

	sink := &fakeSink{}
	req := NewRequest(sink, "stationA:station1.Table1.Temp")
	m.AddRequest(req, false)

	require.Len(t, src.added, 1)
	require.Equal(t, StateStarted, req.State())
	require.True(t, req.Frozen())
}

func TestAddRequestUnknownSourceFailsSink(t *testing.T) {
	m := NewManager(nil)
	sink := &fakeSink{}
	req := NewRequest(sink, "missing:station1.Table1.Temp")
	m.AddRequest(req, false)

	require.Equal(t, StateFailed, req.State())
	require.Equal(t, []FailureCode{FailureInvalidURI}, sink.failures)
}

func TestRemoveRequestIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	src := &fakeSource{name: "stationA"}
	m.AddSource(src)
	sink := &fakeSink{}
	req := NewRequest(sink, "stationA:station1.Table1.Temp")
	m.AddRequest(req, false)

	m.RemoveRequest(req)
	m.RemoveRequest(req)
	require.Len(t, src.removed, 1)
}

func TestDeliverRecordsGroupsBySink(t *testing.T) {
	m := NewManager(nil)
	src := &fakeSource{name: "stationA"}
	m.AddSource(src)
	sink := &fakeSink{}
	req1 := NewRequest(sink, "stationA:station1.Table1.Temp")
	req2 := NewRequest(sink, "stationA:station1.Table1.Humidity")
	m.AddRequest(req1, true)
	m.AddRequest(req2, false)

	m.DeliverRecords([]*Request{req1, req2}, []*Record{{}})
	require.Equal(t, 1, sink.batches)
	require.Equal(t, StateReceivedAdvise, req1.State())
}
