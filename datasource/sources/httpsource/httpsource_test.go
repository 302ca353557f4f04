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

package httpsource

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/httpclient"
	"github.com/lnetcore/corelink/timer"
)

type captureSink struct {
	batches [][]*datasource.Record
}

func (c *captureSink) OnSinkReady(*datasource.Request, *datasource.Record)       {}
func (c *captureSink) OnSinkFailure(*datasource.Request, datasource.FailureCode) {}
func (c *captureSink) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	c.batches = append(c.batches, recs)
}

// newTestServer starts a plain-HTTP listener serving body for every
// request, returning its "host:port" address for httpclient.Connection.
func newTestServer(t *testing.T, body string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

func TestHTTPSourcePollsAndDeliversRows(t *testing.T) {
	body := `[{"timestamp":"2024-01-01T00:00:00Z","record_no":1,"values":{"Temp":12.5}}]`
	addr := newTestServer(t, body)

	loop := timer.NewLoop(nil)
	sched := timer.NewScheduler(loop)
	conn := httpclient.New(loop, nil, addr, false)
	m := datasource.NewManager(nil)
	src := New("http1", "station1", "tbl", "/data", nil, m, loop, conn, sched, time.Second, time.Now(), nil)
	m.AddSource(src)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go loop.Run(ctx)

	src.Connect()
	defer src.Disconnect()

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "http1:station1.tbl.Temp")

	require.Eventually(t, func() bool {
		src.mu.Lock()
		n := len(src.rows)
		src.mu.Unlock()
		return n > 0
	}, 900*time.Millisecond, 10*time.Millisecond)

	loop.Post(func() { m.AddRequest(req, false) })

	require.Eventually(t, func() bool {
		return len(sink.batches) > 0
	}, 900*time.Millisecond, 10*time.Millisecond)

	v, ok := sink.batches[0][0].Value("Temp")
	require.True(t, ok)
	require.Equal(t, 12.5, v.AsFloat())
}
