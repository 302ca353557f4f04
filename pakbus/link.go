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

// LinkState is one peer's position in the ring/ready/finished state
// machine of section 4.G.
type LinkState uint8

const (
	StateOffline LinkState = iota
	StateRinging
	StateReady
	StateFinished
)

func (s LinkState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateReady:
		return "ready"
	case StateFinished:
		return "finished"
	default:
		return "offline"
	}
}

// RingTimeout is how long a ring waits for the peer to answer before the
// link drops back to offline.
const RingTimeout = 600 * time.Millisecond

// DefaultLinkTimeout is the idle timeout while ready, absent a
// protocol-configured override.
const DefaultLinkTimeout = 40 * time.Second

// sessionKey identifies one ordered (src,dst) pair for expect_more
// tracking.
type sessionKey struct{ src, dst uint16 }

// PortWriter is the minimal contract Link needs from its physical
// transport: write a fully framed, quoted byte sequence.
type PortWriter interface {
	WriteFrame(frame []byte) error
}

// Link is the per-peer state machine: ring/ready/finished transitions,
// half-duplex-aware outbound pacing, beaconing, broadcast queuing and
// expect_more session tracking. One Link exists per neighbor address on a
// port.
type Link struct {
	log  logctx.Logger
	loop *timer.Loop
	port PortWriter

	peerAddr uint16

	state       LinkState
	linkTimeout time.Duration
	fullDuplex  bool
	sendDelay   time.Duration
	beaconIval  time.Duration

	ringTimerID   timer.ID
	idleTimerID   timer.ID
	beaconTimerID timer.ID
	pacingTimerID timer.ID

	outbound   [][]byte
	broadcasts [][]byte
	pacing     bool

	expectMore   map[sessionKey]int
	lastActivity time.Time
}

// NewLink constructs a Link for peerAddr on the given port, driven by
// loop. linkTimeout <= 0 selects DefaultLinkTimeout.
func NewLink(loop *timer.Loop, port PortWriter, peerAddr uint16, linkTimeout time.Duration, log logctx.Logger) *Link {
	if log == nil {
		log = logctx.NewNop()
	}
	if linkTimeout <= 0 {
		linkTimeout = DefaultLinkTimeout
	}
	return &Link{
		log:         log,
		loop:        loop,
		port:        port,
		peerAddr:    peerAddr,
		linkTimeout: linkTimeout,
		sendDelay:   50 * time.Millisecond,
		expectMore:  make(map[sessionKey]int),
	}
}

// State reports the current link state.
func (l *Link) State() LinkState { return l.state }

// SetBeaconInterval enables periodic ringing while idle when interval > 0.
func (l *Link) SetBeaconInterval(interval time.Duration) {
	l.beaconIval = interval
	if interval > 0 && l.state == StateOffline {
		l.armBeacon()
	}
}

// SetFullDuplex marks the peer as known full-duplex, disabling outbound
// pacing delays between packets.
func (l *Link) SetFullDuplex(fd bool) { l.fullDuplex = fd }

// Send queues body for transmission, ringing the link if it is offline.
// Broadcast frames are queued separately and are not retried after a
// failed ring, per section 4.G.
func (l *Link) Send(body []byte, broadcast bool) {
	if broadcast {
		l.broadcasts = append(l.broadcasts, body)
	} else {
		l.outbound = append(l.outbound, body)
	}
	switch l.state {
	case StateOffline:
		l.ring()
	case StateReady:
		l.pump()
	case StateFinished:
		l.state = StateReady
		l.armIdle()
		l.pump()
	}
}

// ring transitions to ringing, sends one ring frame and arms RingTimeout;
// if the peer has not answered when it expires, onRingTimeout returns the
// link to offline. The ring frame is not repeated while ringing.
func (l *Link) ring() {
	l.state = StateRinging
	l.sendRing()
	l.ringTimerID = l.loop.Arm(RingTimeout, l.onRingTimeout)
}

func (l *Link) sendRing() {
	_ = l.port.WriteFrame(EncodeFrame([]byte{byte(l.peerAddr), byte(l.peerAddr >> 8)}))
}

func (l *Link) onRingTimeout() {
	if l.state != StateRinging {
		return
	}
	l.state = StateOffline
	l.broadcasts = nil
	l.log.WithField("peer", l.peerAddr).Debug("pakbus ring timed out")
	if l.beaconIval > 0 {
		l.armBeacon()
	}
}

// OnPeerReady is invoked by the port/router layer when a frame from this
// peer is recognized as a ring response or any valid frame while ringing.
func (l *Link) OnPeerReady() {
	l.loop.Disarm(l.ringTimerID)
	l.state = StateReady
	l.armIdle()
	l.pump()
}

// OnFrameReceived resets the idle timer (any valid frame counts as
// activity) and, if the link was offline or finished, treats the frame as
// a ring from the peer, per section 4.G's "any -> ready on peer ring".
func (l *Link) OnFrameReceived() {
	l.lastActivity = l.loop.Now()
	switch l.state {
	case StateOffline, StateFinished, StateRinging:
		l.OnPeerReady()
	default:
		l.loop.Reset(l.idleTimerID, l.linkTimeout)
	}
}

func (l *Link) armIdle() {
	l.idleTimerID = l.loop.Arm(l.linkTimeout, l.onIdleTimeout)
}

func (l *Link) onIdleTimeout() {
	if l.state != StateReady {
		return
	}
	l.state = StateFinished
}

func (l *Link) armBeacon() {
	l.beaconTimerID = l.loop.Arm(l.beaconIval, l.onBeaconTick)
}

func (l *Link) onBeaconTick() {
	if l.state == StateOffline {
		l.sendRing()
	}
	if l.beaconIval > 0 {
		l.armBeacon()
	}
}

// pump drains the outbound and broadcast queues while ready, pacing
// successive writes by sendDelay unless the peer is known full-duplex.
func (l *Link) pump() {
	if l.state != StateReady || l.pacing {
		return
	}
	var next []byte
	switch {
	case len(l.outbound) > 0:
		next, l.outbound = l.outbound[0], l.outbound[1:]
	case len(l.broadcasts) > 0:
		next, l.broadcasts = l.broadcasts[0], l.broadcasts[1:]
	default:
		return
	}
	_ = l.port.WriteFrame(EncodeFrame(next))
	l.loop.Reset(l.idleTimerID, l.linkTimeout)

	if l.fullDuplex || l.sendDelay <= 0 {
		l.pump()
		return
	}
	l.pacing = true
	l.pacingTimerID = l.loop.Arm(l.sendDelay, func() {
		l.pacing = false
		l.pump()
	})
}

// MarkExpectMore records an outbound frame's expect-more header bit for
// the (src,dst) session pair: set=true increments, set=false decrements.
func (l *Link) MarkExpectMore(src, dst uint16, set bool) {
	key := sessionKey{src, dst}
	if set {
		l.expectMore[key]++
	} else if l.expectMore[key] > 0 {
		l.expectMore[key]--
	}
}

// HasSession reports whether the (src,dst) pair still has an outstanding
// expect-more count, per section 4.G.
func (l *Link) HasSession(src, dst uint16) bool {
	return l.expectMore[sessionKey{src, dst}] > 0
}

// ForceOffline drives the link to offline immediately, for the no-carrier
// watchdog hook of section 4.G.
func (l *Link) ForceOffline() {
	l.loop.Disarm(l.ringTimerID)
	l.loop.Disarm(l.idleTimerID)
	l.loop.Disarm(l.pacingTimerID)
	l.state = StateOffline
	l.pacing = false
}
