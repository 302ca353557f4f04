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

package messaging

import (
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
)

// Node is whatever owns a session: it receives dispatched messages and a
// single broken notification when the session stops being usable.
type Node interface {
	OnMessage(sessionNo uint32, m *Message)
	OnBroken(sessionNo uint32, reason BrokenReason)
}

// Metrics receives counts of router activity for ambient observability. A
// Router with no metrics set uses noopMetrics, so wiring a collector (see
// package metrics) is strictly additive.
type Metrics interface {
	SessionOpened()
	SessionClosed(reason BrokenReason)
	MessageDispatched()
	OrphanRejected()
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened()             {}
func (noopMetrics) SessionClosed(BrokenReason) {}
func (noopMetrics) MessageDispatched()         {}
func (noopMetrics) OrphanRejected()            {}

// route binds one client-visible session number to the Node that opened it.
type route struct {
	sessionNo uint32
	node      Node
}

// Router multiplexes one Connection into many logical sessions. It owns the
// session number allocator and the dispatch table described in section 4.C:
// session_close_cmd and session_closed_not remove the route and notify the
// node; any other recognized message is delivered to the node; anything
// that doesn't match an open route is rejected as an orphaned session.
type Router struct {
	log     logctx.Logger
	conn    Connection
	routes  map[uint32]*route
	lastNo  uint32
	metrics Metrics
}

// NewRouter creates a Router bound to conn. The Router installs itself as
// conn's dispatcher and close-notify callback.
func NewRouter(conn Connection, log logctx.Logger) *Router {
	if log == nil {
		log = logctx.NewNop()
	}
	r := &Router{
		log:     log,
		conn:    conn,
		routes:  make(map[uint32]*route),
		metrics: noopMetrics{},
	}
	conn.SetDispatcher(r.dispatch)
	conn.SetCloseNotify(r.onConnBroken)
	return r
}

// SetMetrics installs m as the Router's metrics sink, replacing the default
// no-op. Safe to call at any time; m must not be nil.
func (r *Router) SetMetrics(m Metrics) {
	r.metrics = m
}

// OpenSession allocates the first session number not already in use,
// scanning from lastNo+1 and wrapping past zero (section 4.C), and binds it
// to node.
func (r *Router) OpenSession(node Node) uint32 {
	candidate := r.lastNo + 1
	for {
		if candidate == 0 {
			candidate = 1
		}
		if _, busy := r.routes[candidate]; !busy {
			break
		}
		candidate++
	}
	r.routes[candidate] = &route{sessionNo: candidate, node: node}
	r.lastNo = candidate
	if len(r.routes) == 1 {
		if e := r.conn.Attach(); e != nil {
			r.log.WithField("err", e).Warn("connection attach failed")
		}
	}
	r.metrics.SessionOpened()
	return candidate
}

// CloseSession tears down a session this side opened, sending a
// session_close_cmd to the peer and removing the local route immediately.
func (r *Router) CloseSession(sessionNo uint32) {
	rt, ok := r.routes[sessionNo]
	if !ok {
		return
	}
	delete(r.routes, sessionNo)
	if e := r.conn.Send(NewMessage(sessionNo, MsgTypeSessionCloseCmd, nil)); e != nil {
		r.log.WithField("err", e).Warn("send session_close_cmd failed")
	}
	rt.node.OnBroken(sessionNo, ReasonShutDown)
	r.metrics.SessionClosed(ReasonShutDown)
	r.detachIfIdle()
}

// Send transmits an application payload on an already-open session.
func (r *Router) Send(sessionNo, msgType uint32, payload []byte) errs.Error {
	if _, ok := r.routes[sessionNo]; !ok {
		return errs.New(errs.ClassPolicy, 0, "send on unknown session", nil)
	}
	return r.conn.Send(NewMessage(sessionNo, msgType, payload))
}

// dispatch is the Connection's inbound callback, invoked on the owning
// Loop for every decoded, non-heartbeat Message.
func (r *Router) dispatch(m *Message) {
	rt, ok := r.routes[m.SessionNo]

	switch m.Type {
	case MsgTypeSessionCloseCmd:
		if ok {
			delete(r.routes, m.SessionNo)
			rt.node.OnBroken(m.SessionNo, ReasonNoObject)
			r.metrics.SessionClosed(ReasonNoObject)
			r.detachIfIdle()
		}
		return
	case MsgTypeSessionClosedNot:
		if ok {
			delete(r.routes, m.SessionNo)
			reason := reasonFromPayload(m)
			rt.node.OnBroken(m.SessionNo, reason)
			r.metrics.SessionClosed(reason)
			r.detachIfIdle()
		}
		return
	case MsgTypeMessageRejectedNot:
		if ok {
			delete(r.routes, m.SessionNo)
			rt.node.OnBroken(m.SessionNo, ReasonOrphanedSession)
			r.metrics.SessionClosed(ReasonOrphanedSession)
			r.detachIfIdle()
		}
		return
	}

	if !ok {
		r.rejectOrphan(m)
		return
	}
	r.metrics.MessageDispatched()
	rt.node.OnMessage(m.SessionNo, m)
}

// reasonFromPayload extracts the single reason byte a session_closed_not
// carries, defaulting to unknown if the payload is empty.
func reasonFromPayload(m *Message) BrokenReason {
	if len(m.Payload) == 0 {
		return ReasonUnknown
	}
	return BrokenReason(m.Payload[0])
}

// rejectOrphan answers an unrecognized, non-close message with a
// message_rejected_not carrying orphaned_session, echoing the original
// session number and body per section 4.C.
func (r *Router) rejectOrphan(m *Message) {
	reply := NewMessage(m.SessionNo, MsgTypeMessageRejectedNot, nil)
	reply.AddBytes([]byte{byte(ReasonOrphanedSession)})
	reply.AddBytes(m.Payload)
	if e := r.conn.Send(reply); e != nil {
		r.log.WithField("err", e).Warn("send orphan rejection failed")
	}
	r.metrics.OrphanRejected()
}

// onConnBroken is the Connection's close-notify callback: every open route
// is notified with a reason derived from why the connection failed, then
// the route table is cleared.
func (r *Router) onConnBroken(reason ConnCloseReason) {
	var br BrokenReason
	switch reason {
	case CloseRemoteDisconnect:
		br = ReasonRemoteDisconnect
	case CloseHeartbeatExpired:
		br = ReasonHeartbeat
	case CloseRequested:
		br = ReasonShutDown
	default:
		br = ReasonUnknown
	}
	for sessionNo, rt := range r.routes {
		rt.node.OnBroken(sessionNo, br)
		r.metrics.SessionClosed(br)
	}
	r.routes = make(map[uint32]*route)
}

// detachIfIdle releases the underlying Connection once the last route is
// gone, mirroring the attach-on-first/detach-on-last life cycle used by the
// default server stub.
func (r *Router) detachIfIdle() {
	if len(r.routes) == 0 {
		r.conn.Detach()
	}
}
