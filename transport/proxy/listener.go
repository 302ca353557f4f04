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

package proxy

import (
	"encoding/binary"
	"sync"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/messaging"
)

// Listener-side relay messages, per spec.md section 1.B's fixed identifier
// range (distinct from the client-side auth/forward identifiers ProxyConn
// already occupies below 2008).
const (
	MsgServerRegisterCmd   uint32 = 2011
	MsgServerRegisterAck   uint32 = 2012
	MsgVirtualConnNot      uint32 = 2008
	MsgVirtualConnCloseCmd uint32 = 2009
)

// NewConnFunc is invoked once per inbound virtual connection the relay
// announces; the caller typically wraps conn in a messaging.Router and a
// stub.Stub, per section 4.E/4.F.
type NewConnFunc func(vcid uint32, conn messaging.Connection)

// Listener registers a server identity behind the relay and manufactures
// one VirtualConn per virtual_conn_not notification, per section 4.F:
// "registers a server behind a relay; demultiplexes virtual connections."
type Listener struct {
	log      logctx.Logger
	relay    *messaging.Router
	password string
	key      [16]byte
	name     string

	controlSession uint32
	dataSession    uint32

	onNewConn NewConnFunc

	mu    sync.Mutex
	conns map[uint32]*VirtualConn
}

// NewListener builds a Listener that will register as name against relay,
// sealing forward traffic with key = MD5(password) exactly as ProxyConn
// does on the client side.
func NewListener(relay *messaging.Router, name, password string, log logctx.Logger) *Listener {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Listener{
		log:      log,
		relay:    relay,
		password: password,
		key:      deriveKey(password),
		name:     name,
		conns:    make(map[uint32]*VirtualConn),
	}
}

// SetNewConnFunc installs the callback invoked for each new virtual
// connection. Must be called before Start.
func (l *Listener) SetNewConnFunc(fn NewConnFunc) { l.onNewConn = fn }

// Start opens the listener's control and data sessions and registers this
// server's name with the relay.
func (l *Listener) Start() errs.Error {
	l.controlSession = l.relay.OpenSession(controlNode{l})
	l.dataSession = l.relay.OpenSession(dataNode{l})

	return l.relay.Send(l.controlSession, MsgServerRegisterCmd, []byte(l.name))
}

// Stop closes both relay sessions, tearing down every outstanding virtual
// connection first.
func (l *Listener) Stop() {
	l.mu.Lock()
	conns := make([]*VirtualConn, 0, len(l.conns))
	for _, c := range l.conns {
		conns = append(conns, c)
	}
	l.conns = make(map[uint32]*VirtualConn)
	l.mu.Unlock()

	for _, c := range conns {
		c.fail(messaging.CloseRequested)
	}
	l.relay.CloseSession(l.controlSession)
	l.relay.CloseSession(l.dataSession)
}

type controlNode struct{ l *Listener }

func (n controlNode) OnMessage(sessionNo uint32, m *messaging.Message) {
	l := n.l
	switch m.Type {
	case MsgServerRegisterAck:
		l.log.WithField("server", l.name).Info("proxy listener: registered with relay")
	case MsgVirtualConnNot:
		if len(m.Payload) < 4 {
			return
		}
		vcid := binary.BigEndian.Uint32(m.Payload[:4])
		vc := newVirtualConn(l, vcid)

		l.mu.Lock()
		l.conns[vcid] = vc
		l.mu.Unlock()

		if l.onNewConn != nil {
			l.onNewConn(vcid, vc)
		}
	case MsgVirtualConnCloseCmd:
		if len(m.Payload) < 4 {
			return
		}
		vcid := binary.BigEndian.Uint32(m.Payload[:4])
		l.mu.Lock()
		vc, ok := l.conns[vcid]
		delete(l.conns, vcid)
		l.mu.Unlock()
		if ok {
			vc.fail(messaging.CloseRemoteDisconnect)
		}
	}
}

func (n controlNode) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	n.l.Stop()
}

type dataNode struct{ l *Listener }

func (n dataNode) OnMessage(sessionNo uint32, m *messaging.Message) {
	l := n.l
	if m.Type != MsgForwardCmd {
		return
	}
	vcid, plain, ok := decodeForward(l.key, m.Payload)
	if !ok {
		l.log.Warn("proxy listener: dropping undecodable forward_cmd")
		return
	}
	l.mu.Lock()
	vc, known := l.conns[vcid]
	l.mu.Unlock()
	if !known {
		return
	}
	vc.deliver(plain)
}

func (n dataNode) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	n.l.Stop()
}

// VirtualConn implements messaging.Connection for one demultiplexed
// inbound tunnel, forwarding Send traffic back through the Listener's
// shared data session tagged with its own virtual_conn_id.
type VirtualConn struct {
	l    *Listener
	vcid uint32

	dispatch    func(*messaging.Message)
	closeNotify func(messaging.ConnCloseReason)

	mu     sync.Mutex
	closed bool
}

func newVirtualConn(l *Listener, vcid uint32) *VirtualConn {
	return &VirtualConn{l: l, vcid: vcid}
}

func (v *VirtualConn) Attach() errs.Error { return nil }

func (v *VirtualConn) Detach() {
	v.mu.Lock()
	already := v.closed
	v.closed = true
	v.mu.Unlock()
	if already {
		return
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, v.vcid)
	_ = v.l.relay.Send(v.l.controlSession, MsgVirtualConnCloseCmd, payload)

	v.l.mu.Lock()
	delete(v.l.conns, v.vcid)
	v.l.mu.Unlock()
}

func (v *VirtualConn) Send(m *messaging.Message) errs.Error {
	plain := messaging.Encode(m)
	body := encodeForward(v.l.key, v.vcid, plain)
	return v.l.relay.Send(v.l.dataSession, MsgForwardCmd, body)
}

func (v *VirtualConn) SetDispatcher(fn func(*messaging.Message))         { v.dispatch = fn }
func (v *VirtualConn) SetCloseNotify(fn func(messaging.ConnCloseReason)) { v.closeNotify = fn }

// deliver decodes one fully-framed inner message recovered from a
// forward_cmd and offers it to the installed dispatcher, the same way
// ProxyConn's proxyNode does on the client side.
func (v *VirtualConn) deliver(plain []byte) {
	if v.dispatch == nil || len(plain) < 4 {
		return
	}
	declared := binary.BigEndian.Uint32(plain[0:4])
	if declared < 4 {
		return
	}
	inner, isHeartbeat, perr := messaging.DecodeBody(declared, plain[4:])
	if perr != nil || isHeartbeat {
		return
	}
	v.dispatch(inner)
}

func (v *VirtualConn) fail(reason messaging.ConnCloseReason) {
	v.mu.Lock()
	already := v.closed
	v.closed = true
	v.mu.Unlock()
	if already {
		return
	}
	if v.closeNotify != nil {
		v.closeNotify(reason)
	}
}
