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

package virtual

import (
	"testing"
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/stretchr/testify/require"
)

type constSource struct {
	name  string
	value float64
}

func (f *constSource) Name() string    { return f.name }
func (f *constSource) Connect()        {}
func (f *constSource) Disconnect()     {}
func (f *constSource) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	col := columnOf(req.URI)
	desc := &datasource.Description{Values: []datasource.ValueDescriptor{{Name: col, Type: datasource.ValFloat64}}}
	rec := &datasource.Record{Desc: desc, Slots: []datasource.Value{{Type: datasource.ValFloat64, Float: f.value}}}
	req.Sink.OnSinkRecords([]*datasource.Request{req}, []*datasource.Record{rec})
	return nil
}
func (f *constSource) RemoveRequest(*datasource.Request)                        {}
func (f *constSource) SetValue(datasource.SetSink, string, datasource.Value) bool { return true }
func (f *constSource) SendFile(datasource.FileSink, string, string) bool         { return true }
func (f *constSource) GetNewestFile(datasource.FileSink, string) bool            { return true }
func (f *constSource) ClockCheck(datasource.FileSink) bool                       { return true }
func (f *constSource) FileControl(datasource.FileSink, string, string) bool      { return true }
func (f *constSource) ListFiles(datasource.FileSink, string) bool                { return true }
func (f *constSource) StartTerminal(datasource.TerminalSink, int64) bool         { return true }
func (f *constSource) SendTerminal(int64, []byte) bool                          { return true }
func (f *constSource) CloseTerminal(int64)                                      {}
func (f *constSource) BreakdownURI(uri string) []datasource.Segment            { return datasource.BreakdownURI(uri) }

type captureSink struct {
	recs []*datasource.Record
}

func (c *captureSink) OnSinkReady(*datasource.Request, *datasource.Record) {}
func (c *captureSink) OnSinkFailure(*datasource.Request, datasource.FailureCode) {}
func (c *captureSink) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	c.recs = append(c.recs, recs...)
}

func TestVirtualSourceComputesFromDependency(t *testing.T) {
	m := datasource.NewManager(nil)
	m.AddSource(&constSource{name: "stationA", value: 21})

	now := time.Now()
	v := New("calc", "virt", "tbl", m, nil, time.Second, now, nil)
	m.AddSource(v)

	err := v.AddColumn("doubled", "stationA:stn.tbl.v1 * 2", false)
	require.Nil(t, err)

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "calc:virt.tbl.doubled")
	m.AddRequest(req, false)

	v.OnScheduledFiring(0, now)

	require.Len(t, sink.recs, 1)
	val, ok := sink.recs[0].Value("doubled")
	require.True(t, ok)
	require.Equal(t, 42.0, val.AsFloat())
}

func TestVirtualSourceRejectsUnknownColumn(t *testing.T) {
	m := datasource.NewManager(nil)
	v := New("calc", "virt", "tbl", m, nil, time.Second, time.Now(), nil)
	m.AddSource(v)

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "calc:virt.tbl.missing")
	err := v.AddRequest(req, false)
	require.NotNil(t, err)
}
