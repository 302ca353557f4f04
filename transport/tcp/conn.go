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

// Package tcp wires the messaging frame codec onto a net.Conn, with the
// reader running on its own goroutine and everything else — the transmit
// and receive watch-dogs, the dispatch and close-notify callbacks — posted
// onto the owning timer.Loop, per section 5's concurrency model.
package tcp

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/lnetcore/corelink/bytelog"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/messaging"
	"github.com/lnetcore/corelink/timer"
)

// Metrics receives byte and lifecycle counts for ambient observability. A
// Conn with no metrics set uses noopMetrics.
type Metrics interface {
	BytesSent(n int)
	BytesReceived(n int)
	ConnectionClosed(reason messaging.ConnCloseReason)
}

type noopMetrics struct{}

func (noopMetrics) BytesSent(int)                              {}
func (noopMetrics) BytesReceived(int)                          {}
func (noopMetrics) ConnectionClosed(messaging.ConnCloseReason) {}

// Conn adapts a net.Conn to messaging.Connection.
type Conn struct {
	loop *timer.Loop
	log  logctx.Logger
	nc   net.Conn
	blog *bytelog.Log

	writeMu sync.Mutex

	dispatch    func(*messaging.Message)
	closeNotify func(messaging.ConnCloseReason)

	txWatch timer.ID
	rxWatch timer.ID

	closedOnce sync.Once
	closed     chan struct{}

	metrics Metrics
}

// New wraps nc, starting its reader goroutine immediately. blog may be nil
// to disable byte logging for this connection.
func New(loop *timer.Loop, log logctx.Logger, nc net.Conn, blog *bytelog.Log) *Conn {
	if log == nil {
		log = logctx.NewNop()
	}
	c := &Conn{
		loop:    loop,
		log:     log,
		nc:      nc,
		blog:    blog,
		closed:  make(chan struct{}),
		metrics: noopMetrics{},
	}
	go c.readLoop()
	return c
}

// SetMetrics installs m as the Conn's metrics sink, replacing the default
// no-op. m must not be nil.
func (c *Conn) SetMetrics(m Metrics) {
	c.metrics = m
}

func (c *Conn) Attach() errs.Error {
	c.loop.Post(func() {
		c.txWatch = c.loop.Arm(heartbeatDuration(), c.onTxSilence)
		c.rxWatch = c.loop.Arm(2*heartbeatDuration(), c.onRxSilence)
	})
	return nil
}

func (c *Conn) Detach() {
	c.loop.Post(func() {
		c.loop.Disarm(c.txWatch)
		c.loop.Disarm(c.rxWatch)
	})
}

func (c *Conn) Send(m *messaging.Message) errs.Error {
	buf := messaging.Encode(m)
	return c.writeRaw(buf)
}

// writeRaw pushes bytes to the wire and resets the transmit watch-dog; used
// both for application messages and for the heartbeat frame itself.
func (c *Conn) writeRaw(buf []byte) errs.Error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(buf); err != nil {
		return errs.New(errs.ClassTransport, 0, "tcp write failed", err)
	}
	if c.blog != nil {
		c.blog.Write(bytelog.DirectionTx, buf)
	}
	c.metrics.BytesSent(len(buf))
	c.loop.Post(func() { c.loop.Reset(c.txWatch, heartbeatDuration()) })
	return nil
}

func (c *Conn) SetDispatcher(fn func(*messaging.Message))         { c.dispatch = fn }
func (c *Conn) SetCloseNotify(fn func(messaging.ConnCloseReason)) { c.closeNotify = fn }

func heartbeatDuration() time.Duration {
	return time.Duration(messaging.HeartbeatInterval) * time.Nanosecond
}

// onTxSilence fires when nothing has been sent for one heartbeat interval:
// section 3 requires emitting a heartbeat frame to keep the peer's receive
// watch-dog from expiring.
func (c *Conn) onTxSilence() {
	_ = c.writeRaw(messaging.HeartbeatFrame())
}

// onRxSilence fires when nothing has arrived for two heartbeat intervals
// (one interval of grace beyond the peer's own transmit watch-dog), closing
// the connection with reason heartbeat.
func (c *Conn) onRxSilence() {
	c.fail(messaging.CloseHeartbeatExpired)
}

func (c *Conn) readLoop() {
	br := bufio.NewReader(c.nc)
	fr := messaging.NewFrameReader(br)
	for {
		msg, isHeartbeat, perr := fr.ReadOne()
		if perr != nil {
			reason := messaging.CloseRemoteDisconnect
			if errs.Is(perr, errs.ClassResource) {
				reason = messaging.CloseUnknownFailure
			}
			c.loop.Post(func() { c.fail(reason) })
			return
		}
		c.loop.Post(func() {
			c.loop.Reset(c.rxWatch, 2*heartbeatDuration())
			if isHeartbeat {
				c.metrics.BytesReceived(len(messaging.HeartbeatFrame()))
				return
			}
			c.metrics.BytesReceived(len(messaging.Encode(msg)))
			if c.dispatch != nil {
				c.dispatch(msg)
			}
		})
	}
}

func (c *Conn) fail(reason messaging.ConnCloseReason) {
	c.closedOnce.Do(func() {
		close(c.closed)
		c.nc.Close()
		c.metrics.ConnectionClosed(reason)
		if c.closeNotify != nil {
			c.closeNotify(reason)
		}
	})
}

// Close tears the connection down locally, notifying with CloseRequested.
func (c *Conn) Close() {
	c.loop.Post(func() { c.fail(messaging.CloseRequested) })
}
