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

package alarm

import (
	"context"
	"testing"
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/expression"
	"github.com/lnetcore/corelink/timer"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{ name string }

func (f *fakeSource) Name() string                                         { return f.name }
func (f *fakeSource) Connect()                                             {}
func (f *fakeSource) Disconnect()                                          {}
func (f *fakeSource) AddRequest(*datasource.Request, bool) errs.Error      { return nil }
func (f *fakeSource) RemoveRequest(*datasource.Request)                    {}
func (f *fakeSource) SetValue(datasource.SetSink, string, datasource.Value) bool { return true }
func (f *fakeSource) SendFile(datasource.FileSink, string, string) bool    { return true }
func (f *fakeSource) GetNewestFile(datasource.FileSink, string) bool       { return true }
func (f *fakeSource) ClockCheck(datasource.FileSink) bool                  { return true }
func (f *fakeSource) FileControl(datasource.FileSink, string, string) bool { return true }
func (f *fakeSource) ListFiles(datasource.FileSink, string) bool           { return true }
func (f *fakeSource) StartTerminal(datasource.TerminalSink, int64) bool    { return true }
func (f *fakeSource) SendTerminal(int64, []byte) bool                     { return true }
func (f *fakeSource) CloseTerminal(int64)                                 {}
func (f *fakeSource) BreakdownURI(uri string) []datasource.Segment        { return datasource.BreakdownURI(uri) }

func newTestProgram(t *testing.T, src string) (*datasource.Manager, *expression.Program) {
	t.Helper()
	m := datasource.NewManager(nil)
	m.AddSource(&fakeSource{name: "stationA"})
	prog, err := expression.Compile(src, m, fakeSinkFor(m), false)
	require.Nil(t, err)
	return m, prog
}

// fakeSinkFor returns a no-op sink; the alarm under test evaluates the
// program directly rather than through the manager's dispatch, so the
// compiled program's own sink binding is never exercised.
func fakeSinkFor(m *datasource.Manager) datasource.Sink { return noopSink{} }

type noopSink struct{}

func (noopSink) OnSinkReady(*datasource.Request, *datasource.Record)       {}
func (noopSink) OnSinkFailure(*datasource.Request, datasource.FailureCode) {}
func (noopSink) OnSinkRecords([]*datasource.Request, []*datasource.Record) {}

func recordFor(req *datasource.Request, value float64) (*datasource.Request, *datasource.Record) {
	segs := datasource.BreakdownURI(req.URI)
	col := segs[len(segs)-1].Name
	desc := &datasource.Description{Values: []datasource.ValueDescriptor{{Name: col, Type: datasource.ValFloat64}}}
	rec := &datasource.Record{Desc: desc, Slots: []datasource.Value{{Type: datasource.ValFloat64, Float: value}}}
	return req, rec
}

func TestAlarmFiresWhenTrueWithoutDebounce(t *testing.T) {
	loop := timer.NewLoop(nil)
	_, prog := newTestProgram(t, "stationA:stn.tbl.v1 > 10")

	a := New("high-temp", loop, prog, TriggerWhenTrue, 0, 1, nil)
	var fired int
	a.AddAction(CallbackAction{Fn: func(*Alarm) { fired++ }})

	req, rec := recordFor(prog.Requests[0], 20)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec})

	require.True(t, a.Triggered())
	require.Equal(t, Unacknowledged, a.AckState())
	require.Equal(t, 1, fired)
}

func TestAlarmDoesNotFireBelowMinCount(t *testing.T) {
	loop := timer.NewLoop(nil)
	_, prog := newTestProgram(t, "stationA:stn.tbl.v1 > 10")

	a := New("high-temp", loop, prog, TriggerWhenTrue, 0, 3, nil)
	var fired int
	a.AddAction(CallbackAction{Fn: func(*Alarm) { fired++ }})

	req, rec1 := recordFor(prog.Requests[0], 20)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec1})
	require.False(t, a.Triggered())

	_, rec2 := recordFor(prog.Requests[0], 20)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec2})
	require.False(t, a.Triggered())

	_, rec3 := recordFor(prog.Requests[0], 20)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec3})
	require.True(t, a.Triggered())
	require.Equal(t, 1, fired)
}

func TestAlarmDebounceDelaysFire(t *testing.T) {
	loop := timer.NewLoop(nil)
	_, prog := newTestProgram(t, "stationA:stn.tbl.v1 > 10")

	a := New("high-temp", loop, prog, TriggerWhenTrue, 50*time.Millisecond, 1, nil)
	var fired int
	a.AddAction(CallbackAction{Fn: func(*Alarm) { fired++ }})

	req, rec := recordFor(prog.Requests[0], 20)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec})
	require.False(t, a.Triggered())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go loop.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	require.True(t, a.Triggered())
	require.Equal(t, 1, fired)
}

func TestAlarmAcknowledgeAndClear(t *testing.T) {
	loop := timer.NewLoop(nil)
	_, prog := newTestProgram(t, "stationA:stn.tbl.v1 > 10")

	a := New("high-temp", loop, prog, TriggerWhenTrue, 0, 1, nil)
	req, rec := recordFor(prog.Requests[0], 20)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec})
	require.Equal(t, Unacknowledged, a.AckState())

	a.Acknowledge()
	require.Equal(t, Acknowledged, a.AckState())

	a.Clear()
	require.False(t, a.Triggered())
	require.Equal(t, Cleared, a.AckState())
}

func TestAlarmTriggerOnChange(t *testing.T) {
	loop := timer.NewLoop(nil)
	_, prog := newTestProgram(t, "stationA:stn.tbl.v1")

	a := New("value-changed", loop, prog, TriggerOnChange, 0, 1, nil)
	var fired int
	a.AddAction(CallbackAction{Fn: func(*Alarm) { fired++ }})

	req, rec1 := recordFor(prog.Requests[0], 1)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec1})
	require.Equal(t, 1, fired)

	_, rec2 := recordFor(prog.Requests[0], 1)
	a.consecutive = 0
	a.triggered = false
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec2})
	require.Equal(t, 1, fired)

	_, rec3 := recordFor(prog.Requests[0], 2)
	a.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec3})
	require.Equal(t, 2, fired)
}
