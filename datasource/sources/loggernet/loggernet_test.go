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

package loggernet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/messaging"
)

// fakeConn is a minimal messaging.Connection double: it records sent
// messages and lets the test push inbound ones straight into the Router's
// dispatcher, with no real framing or transport involved.
type fakeConn struct {
	dispatch func(*messaging.Message)
	closeFn  func(messaging.ConnCloseReason)
	sent     []*messaging.Message
}

func (c *fakeConn) Attach() errs.Error { return nil }
func (c *fakeConn) Detach()            {}
func (c *fakeConn) Send(m *messaging.Message) errs.Error {
	c.sent = append(c.sent, m)
	return nil
}
func (c *fakeConn) SetDispatcher(fn func(*messaging.Message))         { c.dispatch = fn }
func (c *fakeConn) SetCloseNotify(fn func(messaging.ConnCloseReason)) { c.closeFn = fn }

const (
	msgTypeAddRequest = 9001
	msgTypeRecords    = 9002
	msgTypeSetOutcome = 9003
)

// fakeCodec is a test Codec that round-trips one float value per URI
// through an opaque payload, without modeling any real wire layout.
type fakeCodec struct {
	lastAddURI string
}

func (c *fakeCodec) EncodeAddRequest(req *datasource.Request) (uint32, []byte) {
	c.lastAddURI = req.URI
	return msgTypeAddRequest, []byte(req.URI)
}
func (c *fakeCodec) EncodeRemoveRequest(req *datasource.Request) (uint32, []byte) {
	return msgTypeAddRequest, []byte(req.URI)
}
func (c *fakeCodec) EncodeSetValue(uri string, value datasource.Value) (uint32, []byte) {
	return msgTypeAddRequest, []byte(uri)
}
func (c *fakeCodec) DecodeRecords(m *messaging.Message) ([]string, []*datasource.Record, bool) {
	if m.Type != msgTypeRecords {
		return nil, nil, false
	}
	uri := string(m.Payload)
	desc := &datasource.Description{Values: []datasource.ValueDescriptor{{Name: "v", Type: datasource.ValFloat64}}}
	rec := &datasource.Record{Desc: desc, Slots: []datasource.Value{{Type: datasource.ValFloat64, Float: 42}}}
	return []string{uri}, []*datasource.Record{rec}, true
}
func (c *fakeCodec) DecodeSetOutcome(m *messaging.Message) (datasource.SetOutcome, bool) {
	if m.Type != msgTypeSetOutcome {
		return 0, false
	}
	return datasource.SetSuccess, true
}

type captureSink struct {
	recs    [][]*datasource.Record
	failure *datasource.FailureCode
}

func (c *captureSink) OnSinkReady(*datasource.Request, *datasource.Record) {}
func (c *captureSink) OnSinkFailure(req *datasource.Request, code datasource.FailureCode) {
	c.failure = &code
}
func (c *captureSink) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	c.recs = append(c.recs, recs)
}

type captureSetSink struct{ outcome *datasource.SetOutcome }

func (c *captureSetSink) OnSetComplete(outcome datasource.SetOutcome) { c.outcome = &outcome }

func TestLoggernetDeliversDecodedRecords(t *testing.T) {
	conn := &fakeConn{}
	router := messaging.NewRouter(conn, nil)
	codec := &fakeCodec{}
	m := datasource.NewManager(nil)
	src := New("ln1", m, router, codec, nil)
	m.AddSource(src)
	src.Connect()

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "ln1:station1.tbl.v")
	m.AddRequest(req, false)
	require.Equal(t, "ln1:station1.tbl.v", codec.lastAddURI)

	conn.dispatch(messaging.NewMessage(1, msgTypeRecords, []byte("ln1:station1.tbl.v")))

	require.Len(t, sink.recs, 1)
	v, ok := sink.recs[0][0].Value("v")
	require.True(t, ok)
	require.Equal(t, float64(42), v.AsFloat())
}

func TestLoggernetSetValueDeliversOutcome(t *testing.T) {
	conn := &fakeConn{}
	router := messaging.NewRouter(conn, nil)
	codec := &fakeCodec{}
	m := datasource.NewManager(nil)
	src := New("ln1", m, router, codec, nil)
	m.AddSource(src)
	src.Connect()

	setSink := &captureSetSink{}
	ok := src.SetValue(setSink, "ln1:station1.tbl.v", datasource.Value{Type: datasource.ValFloat64, Float: 1})
	require.True(t, ok)

	conn.dispatch(messaging.NewMessage(1, msgTypeSetOutcome, nil))

	require.NotNil(t, setSink.outcome)
	require.Equal(t, datasource.SetSuccess, *setSink.outcome)
}

func TestLoggernetOnBrokenFailsOutstandingRequests(t *testing.T) {
	conn := &fakeConn{}
	router := messaging.NewRouter(conn, nil)
	codec := &fakeCodec{}
	m := datasource.NewManager(nil)
	src := New("ln1", m, router, codec, nil)
	m.AddSource(src)
	src.Connect()

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "ln1:station1.tbl.v")
	m.AddRequest(req, false)

	conn.closeFn(messaging.ConnCloseReason(0))

	require.NotNil(t, sink.failure)
	require.Equal(t, datasource.FailureSourceDisconnected, *sink.failure)
}
