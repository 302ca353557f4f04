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

package httpclient

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/timer"
)

// newEchoServer starts a plain-HTTP listener that answers every request
// with body immediately.
func newEchoServer(t *testing.T, body string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

// newStallingServer accepts connections and reads the request but never
// writes a response, simulating a hung server for timeout testing.
func newStallingServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 4096)
				c.Read(buf) // drain the request, then sit idle
			}(nc)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

// TestConnectionDoesNotBlockLoop exercises the off-loop pump/runRequest
// split: a slow-to-finish HTTP exchange must not prevent a concurrently
// armed loop timer from firing, proving the write/read state machine runs
// off the single cooperative timer.Loop goroutine.
func TestConnectionDoesNotBlockLoop(t *testing.T) {
	addr := newStallingServer(t)

	loop := timer.NewLoop(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loop.Run(ctx)

	conn := New(loop, nil, addr, false)
	req := NewRequest("GET", "/")
	req.Timeout = 500 * time.Millisecond
	loop.Post(func() { conn.Do(req) })

	fired := make(chan struct{})
	loop.Post(func() {
		loop.Arm(20*time.Millisecond, func() { close(fired) })
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("loop timer did not fire while an HTTP exchange was in flight")
	}

	err := req.Wait()
	require.Error(t, err, "request should fail once its Timeout expires")
}

// TestConnectionEnforcesRequestTimeout checks that a per-request Timeout
// fails only that request without tearing down unrelated loop state.
func TestConnectionEnforcesRequestTimeout(t *testing.T) {
	addr := newStallingServer(t)

	loop := timer.NewLoop(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loop.Run(ctx)

	conn := New(loop, nil, addr, false)
	req := NewRequest("GET", "/")
	req.Timeout = 200 * time.Millisecond

	start := time.Now()
	loop.Post(func() { conn.Do(req) })
	err := req.Wait()
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Less(t, elapsed, time.Second, "request should fail near its Timeout, not hang")
}

// TestConnectionRoundTrip exercises the ordinary success path end-to-end
// through the off-loop pump/runRequest split.
func TestConnectionRoundTrip(t *testing.T) {
	addr := newEchoServer(t, "hello")

	loop := timer.NewLoop(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go loop.Run(ctx)

	conn := New(loop, nil, addr, false)
	req := NewRequest("GET", "/")
	loop.Post(func() { conn.Do(req) })

	require.NoError(t, req.Wait())
	require.Equal(t, 200, req.StatusCode)
	require.Equal(t, "hello", req.RespBody.String())
}
