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

// Package stub implements the default server-side object described in
// spec.md section 4.E: one Stub per connection, answering
// query_server_cmd synchronously and deleting itself once its last route
// closes.
package stub

import (
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/messaging"
)

// Handler answers an application-defined command carried as an opaque
// message type/payload pair and returns the reply payload to send back.
type Handler func(msgType uint32, payload []byte) (replyType uint32, replyPayload []byte, ok bool)

// Stub is a messaging.Node bound to the router's built-in session. It
// answers query_server_cmd itself and forwards anything else to an
// application Handler, if one is installed.
type Stub struct {
	log     logctx.Logger
	router  *messaging.Router
	session uint32
	handler Handler
	onGone  func()
}

// New opens the stub's session on router and returns the bound Stub. Call
// SetHandler to answer application-specific commands; SetOnGone to learn
// when the stub's session closes (typically used to delete it from
// whatever registry keyed it by connection).
func New(router *messaging.Router, log logctx.Logger) *Stub {
	if log == nil {
		log = logctx.NewNop()
	}
	s := &Stub{log: log, router: router}
	s.session = router.OpenSession(s)
	return s
}

// SetHandler installs the application callback for non-reserved message
// types.
func (s *Stub) SetHandler(h Handler) { s.handler = h }

// SetOnGone installs the callback invoked once the stub's session breaks.
func (s *Stub) SetOnGone(fn func()) { s.onGone = fn }

// SessionNo is the session number the router allocated for this stub.
func (s *Stub) SessionNo() uint32 { return s.session }

// OnMessage implements messaging.Node. query_server_cmd is answered
// synchronously with query_server_ack; anything else is handed to the
// installed Handler, if any.
func (s *Stub) OnMessage(sessionNo uint32, m *messaging.Message) {
	if m.Type == messaging.MsgTypeQueryServerCmd {
		if e := s.router.Send(s.session, messaging.MsgTypeQueryServerAck, nil); e != nil {
			s.log.WithField("err", e).Warn("query_server_ack send failed")
		}
		return
	}
	if s.handler == nil {
		return
	}
	replyType, replyPayload, ok := s.handler(m.Type, m.Payload)
	if !ok {
		return
	}
	if e := s.router.Send(s.session, replyType, replyPayload); e != nil {
		s.log.WithField("err", e).Warn("stub reply send failed")
	}
}

// OnBroken implements messaging.Node: per section 4.E, the stub deletes
// itself once its session (the connection's last route) closes.
func (s *Stub) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	if s.onGone != nil {
		s.onGone()
	}
}
