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

package websocket

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

// PingInterval is the inactivity watch-dog period from section 4.I: after
// this much silence, a ping is sent; three unanswered pings close the
// socket with an unknown failure.
const PingInterval = 60 * time.Second

// MaxUnansweredPings bounds how many pings may go unanswered before the
// connection is considered dead.
const MaxUnansweredPings = 3

// Conn is a connected websocket endpoint, reading frames on its own
// goroutine and posting decoded messages onto the owning loop, matching the
// transport pattern used throughout the rest of corelink.
type Conn struct {
	loop   *timer.Loop
	log    logctx.Logger
	nc     io.ReadWriteCloser
	br     *bufio.Reader
	client bool // true: this side sends masked frames (it is the client)

	writeMu sync.Mutex

	onMessage func(op OpCode, payload []byte)
	onClose   func(error)

	pingID      timer.ID
	unanswered  int
	closedOnce  sync.Once
	fragOp      OpCode
	fragPayload []byte
	fragmenting bool
}

// NewConn wraps nc as an upgraded websocket connection, driven by loop per
// section 5's single-loop concurrency model. br, if non-nil, is the
// buffered reader already holding any bytes read past the HTTP response
// headers during the upgrade handshake.
func NewConn(loop *timer.Loop, log logctx.Logger, nc io.ReadWriteCloser, br *bufio.Reader, client bool) *Conn {
	if log == nil {
		log = logctx.NewNop()
	}
	if br == nil {
		br = bufio.NewReader(nc)
	}
	c := &Conn{loop: loop, log: log, nc: nc, br: br, client: client}
	loop.Post(func() { c.pingID = loop.Arm(PingInterval, c.onPingTimeout) })
	go c.readLoop()
	return c
}

// SetOnMessage installs the callback for completed (possibly reassembled)
// text/binary messages.
func (c *Conn) SetOnMessage(fn func(op OpCode, payload []byte)) { c.onMessage = fn }

// SetOnClose installs the callback invoked exactly once when the connection
// ends, carrying nil for an orderly close-frame teardown.
func (c *Conn) SetOnClose(fn func(error)) { c.onClose = fn }

// Send writes a complete text or binary message as a single unfragmented
// frame.
func (c *Conn) Send(op OpCode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, op, payload, c.client)
}

func (c *Conn) readLoop() {
	for {
		fr, err := ReadFrame(c.br)
		if err != nil {
			c.loop.Post(func() { c.fail(err) })
			return
		}
		frozen := fr
		c.loop.Post(func() { c.handleFrame(frozen) })
	}
}

func (c *Conn) handleFrame(fr Frame) {
	c.loop.Reset(c.pingID, PingInterval)
	c.unanswered = 0

	switch fr.OpCode {
	case OpPing:
		c.writeFrame(OpPong, fr.Payload)
		return
	case OpPong:
		return
	case OpClose:
		c.writeFrame(OpClose, fr.Payload)
		c.fail(nil)
		return
	case OpContinuation:
		if !c.fragmenting {
			return
		}
		c.fragPayload = append(c.fragPayload, fr.Payload...)
		if fr.Fin {
			c.deliver(c.fragOp, c.fragPayload)
			c.fragmenting = false
			c.fragPayload = nil
		}
		return
	default: // OpText, OpBinary
		if !fr.Fin {
			c.fragmenting = true
			c.fragOp = fr.OpCode
			c.fragPayload = append([]byte{}, fr.Payload...)
			return
		}
		c.deliver(fr.OpCode, fr.Payload)
	}
}

func (c *Conn) writeFrame(op OpCode, payload []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.nc, op, payload, c.client); err != nil {
		c.log.WithField("err", err).Warn("websocket frame write failed")
	}
}

func (c *Conn) deliver(op OpCode, payload []byte) {
	if c.onMessage != nil {
		c.onMessage(op, payload)
	}
}

// onPingTimeout runs on the loop (armed via loop.Arm) after PingInterval of
// silence; three consecutive unanswered pings close the socket per
// section 4.I.
func (c *Conn) onPingTimeout() {
	c.unanswered++
	if c.unanswered > MaxUnansweredPings {
		c.fail(io.ErrClosedPipe)
		return
	}
	c.writeFrame(OpPing, nil)
	c.pingID = c.loop.Arm(PingInterval, c.onPingTimeout)
}

func (c *Conn) fail(err error) {
	c.closedOnce.Do(func() {
		c.loop.Disarm(c.pingID)
		c.nc.Close()
		if c.onClose != nil {
			c.onClose(err)
		}
	})
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() {
	c.writeFrame(OpClose, nil)
	c.loop.Post(func() { c.fail(nil) })
}
