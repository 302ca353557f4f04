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

package pakbus

import (
	"time"

	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/timer"
)

// NoCarrierChecker is the derived-class hook of section 4.G: consulted on
// a periodic maintenance tick with whatever has been read from the port
// so far; a true return forces every link on the port offline.
type NoCarrierChecker func(readBuffer []byte) bool

const maintenanceTick = 5 * time.Second

// Manager owns every Link on one physical port and the no-carrier
// maintenance tick. It does not decode frames: pakbus/port's SerialPort
// runs the StreamDecoder and hands decoded bodies to its FrameHandler.
type Manager struct {
	log         logctx.Logger
	loop        *timer.Loop
	port        PortWriter
	linkTimeout time.Duration
	checker     NoCarrierChecker

	links map[uint16]*Link

	lastReadBuf []byte
}

// NewManager creates a Manager driven by loop, writing frames through
// port. linkTimeout <= 0 selects DefaultLinkTimeout for every Link it
// creates.
func NewManager(loop *timer.Loop, port PortWriter, linkTimeout time.Duration, log logctx.Logger) *Manager {
	if log == nil {
		log = logctx.NewNop()
	}
	m := &Manager{
		log:         log,
		loop:        loop,
		port:        port,
		linkTimeout: linkTimeout,
		links:       make(map[uint16]*Link),
	}
	loop.Arm(maintenanceTick, m.onMaintenance)
	return m
}

// SetNoCarrierChecker installs the hook consulted every maintenance tick.
func (m *Manager) SetNoCarrierChecker(fn NoCarrierChecker) { m.checker = fn }

// NoteReadBuffer records the most recent bytes read from the port so the
// no-carrier checker has something to inspect.
func (m *Manager) NoteReadBuffer(buf []byte) { m.lastReadBuf = buf }

// Link returns (creating if necessary) the Link for peerAddr.
func (m *Manager) Link(peerAddr uint16) *Link {
	l, ok := m.links[peerAddr]
	if !ok {
		l = NewLink(m.loop, m.port, peerAddr, m.linkTimeout, m.log)
		m.links[peerAddr] = l
	}
	return l
}

func (m *Manager) onMaintenance() {
	if m.checker != nil && m.checker(m.lastReadBuf) {
		m.log.Warn("pakbus no-carrier detected, forcing all links offline")
		for _, l := range m.links {
			l.ForceOffline()
		}
	}
	m.loop.Arm(maintenanceTick, m.onMaintenance)
}
