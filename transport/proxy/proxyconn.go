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

// Package proxy implements the relay tunnel of section 4.D: a ProxyConn
// that stands in for a direct Connection, authenticating over an auth
// session and exchanging application traffic, AES-128-CBC sealed, over a
// proxy session on an underlying Router to the relay.
package proxy

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/messaging"
)

// Reserved relay message types, section 1.B's proxy relay id range.
const (
	MsgAuthChallengeCmd        uint32 = 2000
	MsgAuthChallengeAck        uint32 = 2001
	MsgAuthResponseCmd         uint32 = 2002
	MsgAuthResponseAck         uint32 = 2003
	MsgForwardCmd              uint32 = 2004
	MsgVirtualConnConnectedNot uint32 = 2005
	MsgVirtualConnClosedNot    uint32 = 2006
)

type authState uint8

const (
	authNotStarted authState = iota
	authAwaitingChallengeAck
	authAwaitingResponseAck
	authDone
	authFailed
)

// ProxyConn implements messaging.Connection on top of two sessions opened
// against an underlying Router connected to the relay: an auth session
// used only for the four-step handshake, and a proxy session carrying
// every forward_cmd afterwards.
type ProxyConn struct {
	log      logctx.Logger
	relay    *messaging.Router
	password string
	key      [16]byte

	authSession  uint32
	proxySession uint32
	clientToken  [16]byte

	state         authState
	virtualConnID uint32

	dispatch    func(*messaging.Message)
	closeNotify func(messaging.ConnCloseReason)
}

// New creates a ProxyConn that will authenticate against relay using
// password once Attach is called.
func New(relay *messaging.Router, password string, log logctx.Logger) *ProxyConn {
	if log == nil {
		log = logctx.NewNop()
	}
	return &ProxyConn{
		log:      log,
		relay:    relay,
		password: password,
		key:      deriveKey(password),
	}
}

func (p *ProxyConn) Attach() errs.Error {
	p.authSession = p.relay.OpenSession(authNode{p})
	p.proxySession = p.relay.OpenSession(proxyNode{p})

	token, err := uuid.NewRandom()
	if err != nil {
		return errs.New(errs.ClassResource, 0, "generating client token failed", err)
	}
	p.clientToken = md5.Sum(token[:])

	p.state = authAwaitingChallengeAck
	challenge := messaging.NewMessage(p.authSession, MsgAuthChallengeCmd, nil)
	challenge.AddBytes(p.clientToken[:])
	return p.relay.Send(p.authSession, MsgAuthChallengeCmd, challenge.Payload)
}

func (p *ProxyConn) Detach() {
	p.relay.CloseSession(p.authSession)
	p.relay.CloseSession(p.proxySession)
}

func (p *ProxyConn) Send(m *messaging.Message) errs.Error {
	if p.state != authDone {
		return errs.New(errs.ClassPolicy, 0, "proxy tunnel not authenticated", nil)
	}
	plain := messaging.Encode(m)
	body := encodeForward(p.key, p.virtualConnID, plain)
	return p.relay.Send(p.proxySession, MsgForwardCmd, body)
}

func (p *ProxyConn) SetDispatcher(fn func(*messaging.Message))         { p.dispatch = fn }
func (p *ProxyConn) SetCloseNotify(fn func(messaging.ConnCloseReason)) { p.closeNotify = fn }

// authNode handles the four-step challenge/response on the auth session.
type authNode struct{ p *ProxyConn }

func (n authNode) OnMessage(sessionNo uint32, m *messaging.Message) {
	p := n.p
	switch m.Type {
	case MsgAuthChallengeAck:
		if p.state != authAwaitingChallengeAck || len(m.Payload) < 16 {
			p.fail()
			return
		}
		var serverToken [16]byte
		copy(serverToken[:], m.Payload[:16])

		sum := md5.New()
		sum.Write(serverToken[:])
		sum.Write(p.clientToken[:])
		sum.Write([]byte(p.password))
		response := sum.Sum(nil)

		p.state = authAwaitingResponseAck
		_ = p.relay.Send(p.authSession, MsgAuthResponseCmd, response)
	case MsgAuthResponseAck:
		if p.state != authAwaitingResponseAck || len(m.Payload) < 4 {
			p.fail()
			return
		}
		p.virtualConnID = binary.BigEndian.Uint32(m.Payload[:4])
		p.state = authDone
	}
}

func (n authNode) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	n.p.fail()
}

// proxyNode receives forward_cmd frames carrying application traffic back
// from the relay.
type proxyNode struct{ p *ProxyConn }

func (n proxyNode) OnMessage(sessionNo uint32, m *messaging.Message) {
	p := n.p
	if m.Type != MsgForwardCmd {
		return
	}
	vcid, plain, ok := decodeForward(p.key, m.Payload)
	if !ok || vcid != p.virtualConnID {
		n.p.log.WithField("err", errBadForwardFrame).Warn("dropping forward_cmd")
		p.fail()
		return
	}
	if p.dispatch == nil {
		return
	}
	// plain is a fully framed inner message (length prefix included);
	// decode it the same way a direct FrameReader would.
	if len(plain) < 4 {
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
	p.dispatch(inner)
}

func (n proxyNode) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	n.p.fail()
}

func (p *ProxyConn) fail() {
	if p.state == authFailed {
		return
	}
	p.state = authFailed
	if p.closeNotify != nil {
		p.closeNotify(messaging.CloseUnknownFailure)
	}
}
