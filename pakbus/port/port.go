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

// Package port binds pakbus.Manager to a physical serial port via
// go.bug.st/serial: a reader goroutine feeds raw bytes through a
// pakbus.StreamDecoder and posts completed frames onto the owning
// timer.Loop, matching the reader-goroutine/posted-event split used by
// every other blocking transport in this module.
package port

import (
	"go.bug.st/serial"

	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/pakbus"
	"github.com/lnetcore/corelink/timer"
)

// FrameHandler is invoked on the owning Loop for every decoded, CRC-valid
// frame body (CRC already stripped).
type FrameHandler func(body []byte)

// SerialPort wraps an open go.bug.st/serial port as a pakbus.PortWriter
// and drives a read loop that decodes frames and posts them to loop.
type SerialPort struct {
	log  logctx.Logger
	loop *timer.Loop
	port serial.Port

	onFrame FrameHandler
	onRead  func([]byte)
}

// Open opens name at the given serial.Mode and returns a SerialPort bound
// to loop.
func Open(loop *timer.Loop, name string, mode *serial.Mode, log logctx.Logger) (*SerialPort, error) {
	if log == nil {
		log = logctx.NewNop()
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	sp := &SerialPort{log: log, loop: loop, port: p}
	go sp.readLoop()
	return sp, nil
}

// WriteFrame implements pakbus.PortWriter.
func (sp *SerialPort) WriteFrame(frame []byte) error {
	_, err := sp.port.Write(frame)
	return err
}

// SetFrameHandler installs the callback for decoded frames.
func (sp *SerialPort) SetFrameHandler(fn FrameHandler) { sp.onFrame = fn }

// SetReadBufferObserver installs a callback given every raw chunk read
// from the port, for Manager.NoteReadBuffer to feed the no-carrier check.
func (sp *SerialPort) SetReadBufferObserver(fn func([]byte)) { sp.onRead = fn }

// Close releases the underlying serial port.
func (sp *SerialPort) Close() error { return sp.port.Close() }

func (sp *SerialPort) readLoop() {
	dec := pakbus.NewStreamDecoder()
	buf := make([]byte, 256)
	for {
		n, err := sp.port.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		sp.loop.Post(func() {
			if sp.onRead != nil {
				sp.onRead(chunk)
			}
		})
		for _, b := range chunk {
			if body, complete := dec.Feed(b); complete {
				frame := body
				sp.loop.Post(func() {
					if sp.onFrame != nil {
						sp.onFrame(frame)
					}
				})
			}
		}
	}
}
