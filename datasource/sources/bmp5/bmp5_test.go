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

package bmp5

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/pakbus"
	"github.com/lnetcore/corelink/timer"
)

type fakePort struct{ frames [][]byte }

func (p *fakePort) WriteFrame(frame []byte) error {
	p.frames = append(p.frames, frame)
	return nil
}

const (
	bodyAddRequest = "add"
	bodyRecords    = "rec"
	bodyOutcome    = "out"
)

type fakeCodec struct {
	lastAddURI string
}

func (c *fakeCodec) EncodeAddRequest(req *datasource.Request) ([]byte, bool) {
	c.lastAddURI = req.URI
	return []byte(bodyAddRequest + ":" + req.URI), false
}
func (c *fakeCodec) EncodeRemoveRequest(req *datasource.Request) ([]byte, bool) {
	return []byte(bodyAddRequest + ":" + req.URI), false
}
func (c *fakeCodec) EncodeSetValue(uri string, value datasource.Value) ([]byte, bool) {
	return []byte(bodyAddRequest + ":" + uri), false
}
func (c *fakeCodec) DecodeRecords(body []byte) ([]string, []*datasource.Record, bool) {
	s := string(body)
	if len(s) < 4 || s[:3] != bodyRecords {
		return nil, nil, false
	}
	uri := s[4:]
	desc := &datasource.Description{Values: []datasource.ValueDescriptor{{Name: "v", Type: datasource.ValFloat64}}}
	rec := &datasource.Record{Desc: desc, Slots: []datasource.Value{{Type: datasource.ValFloat64, Float: 7}}}
	return []string{uri}, []*datasource.Record{rec}, true
}
func (c *fakeCodec) DecodeSetOutcome(body []byte) (datasource.SetOutcome, bool) {
	if string(body) != bodyOutcome {
		return 0, false
	}
	return datasource.SetSuccess, true
}

type captureSink struct{ recs [][]*datasource.Record }

func (c *captureSink) OnSinkReady(*datasource.Request, *datasource.Record)       {}
func (c *captureSink) OnSinkFailure(*datasource.Request, datasource.FailureCode) {}
func (c *captureSink) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	c.recs = append(c.recs, recs)
}

type captureSetSink struct{ outcome *datasource.SetOutcome }

func (c *captureSetSink) OnSetComplete(outcome datasource.SetOutcome) { c.outcome = &outcome }

func TestBMP5DeliversDecodedRecords(t *testing.T) {
	loop := timer.NewLoop(nil)
	port := &fakePort{}
	link := pakbus.NewLink(loop, port, 1, 0, nil)
	codec := &fakeCodec{}
	m := datasource.NewManager(nil)
	src := New("bmp1", m, link, codec, nil)
	m.AddSource(src)
	src.Connect()

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "bmp1:station1.tbl.v")
	m.AddRequest(req, false)
	require.Equal(t, "bmp1:station1.tbl.v", codec.lastAddURI)
	require.Len(t, port.frames, 1)

	src.OnFrame([]byte(bodyRecords + ":bmp1:station1.tbl.v"))

	require.Len(t, sink.recs, 1)
	v, ok := sink.recs[0][0].Value("v")
	require.True(t, ok)
	require.Equal(t, float64(7), v.AsFloat())
}

func TestBMP5SetValueDeliversOutcome(t *testing.T) {
	loop := timer.NewLoop(nil)
	port := &fakePort{}
	link := pakbus.NewLink(loop, port, 1, 0, nil)
	codec := &fakeCodec{}
	m := datasource.NewManager(nil)
	src := New("bmp1", m, link, codec, nil)
	m.AddSource(src)
	src.Connect()

	setSink := &captureSetSink{}
	ok := src.SetValue(setSink, "bmp1:station1.tbl.v", datasource.Value{Type: datasource.ValFloat64, Float: 1})
	require.True(t, ok)

	src.OnFrame([]byte(bodyOutcome))

	require.NotNil(t, setSink.outcome)
	require.Equal(t, datasource.SetSuccess, *setSink.outcome)
}
