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

package expression

import (
	"testing"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name string
}

func (f *fakeSource) Name() string                               { return f.name }
func (f *fakeSource) Connect()                                   {}
func (f *fakeSource) Disconnect()                                 {}
func (f *fakeSource) AddRequest(*datasource.Request, bool) errs.Error { return nil }
func (f *fakeSource) RemoveRequest(*datasource.Request)                  {}
func (f *fakeSource) SetValue(datasource.SetSink, string, datasource.Value) bool { return true }
func (f *fakeSource) SendFile(datasource.FileSink, string, string) bool  { return true }
func (f *fakeSource) GetNewestFile(datasource.FileSink, string) bool     { return true }
func (f *fakeSource) ClockCheck(datasource.FileSink) bool                { return true }
func (f *fakeSource) FileControl(datasource.FileSink, string, string) bool { return true }
func (f *fakeSource) ListFiles(datasource.FileSink, string) bool          { return true }
func (f *fakeSource) StartTerminal(datasource.TerminalSink, int64) bool   { return true }
func (f *fakeSource) SendTerminal(int64, []byte) bool                     { return true }
func (f *fakeSource) CloseTerminal(int64)                                 {}
func (f *fakeSource) BreakdownURI(uri string) []datasource.Segment       { return datasource.BreakdownURI(uri) }

type fakeSink struct{}

func (fakeSink) OnSinkReady(*datasource.Request, *datasource.Record)            {}
func (fakeSink) OnSinkFailure(*datasource.Request, datasource.FailureCode)      {}
func (fakeSink) OnSinkRecords([]*datasource.Request, []*datasource.Record)      {}

func TestCompileWorkedExampleFromSection8(t *testing.T) {
	m := datasource.NewManager(nil)
	m.AddSource(&fakeSource{name: "stationA"})

	src := "StartRelativeToNewest(nsecPerWeek, OrderCollected); stationA:stn.tbl.v1 + stationA:stn.tbl.v2"
	prog, err := Compile(src, m, fakeSink{}, false)
	require.Nil(t, err)
	require.Len(t, prog.Requests, 2)

	for _, req := range prog.Requests {
		require.Equal(t, datasource.StartRelativeToNewest, req.Start)
		require.Equal(t, datasource.OrderCollected, req.Order)
		require.Equal(t, int64(7*24*60*60*1e9), req.Offset)
	}

	values := map[string]float64{
		"stationA:stn.tbl.v1": 3,
		"stationA:stn.tbl.v2": 4,
	}
	result, err := prog.Eval(values)
	require.Nil(t, err)
	require.Equal(t, 7.0, result)
}

func TestCompileSingleVariableNoSetup(t *testing.T) {
	m := datasource.NewManager(nil)
	m.AddSource(&fakeSource{name: "stationA"})

	prog, err := Compile("stationA:stn.tbl.temp * 1.8 + 32", m, fakeSink{}, false)
	require.Nil(t, err)
	require.Len(t, prog.Requests, 1)

	result, err := prog.Eval(map[string]float64{"stationA:stn.tbl.temp": 10})
	require.Nil(t, err)
	require.Equal(t, 50.0, result)
}

func TestCompileUnaryMinusAndPrecedence(t *testing.T) {
	m := datasource.NewManager(nil)
	prog, err := Compile("-2 + 3 * 4", m, fakeSink{}, false)
	require.Nil(t, err)
	result, err := prog.Eval(nil)
	require.Nil(t, err)
	require.Equal(t, 10.0, result)
}

func TestAvgRunAccumulatesAcrossEvaluations(t *testing.T) {
	m := datasource.NewManager(nil)
	m.AddSource(&fakeSource{name: "stationA"})
	prog, err := Compile("AvgRun(stationA:stn.tbl.v1)", m, fakeSink{}, false)
	require.Nil(t, err)

	r1, err := prog.Eval(map[string]float64{"stationA:stn.tbl.v1": 2})
	require.Nil(t, err)
	require.Equal(t, 2.0, r1)

	r2, err := prog.Eval(map[string]float64{"stationA:stn.tbl.v1": 4})
	require.Nil(t, err)
	require.Equal(t, 3.0, r2)
}
