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

// Package loggernet implements the LoggerNet-family datasource.Source of
// section 4.K's component row K: a thin messaging.Node sitting on one
// messaging.Router session. The actual LoggerNet command/reply wire
// layout is one of spec.md §1's explicit Non-goals ("individual
// device-class command codecs ... are treated as external
// collaborators"), so this source depends on a caller-injected Codec
// rather than implementing that layout itself.
package loggernet

import (
	"sync"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/messaging"
)

// Codec translates between datasource operations and the session's wire
// messages. A concrete implementation (not part of this package, per the
// Non-goal above) knows the actual LoggerNet message-type numbers and
// payload layouts.
type Codec interface {
	EncodeAddRequest(req *datasource.Request) (msgType uint32, payload []byte)
	EncodeRemoveRequest(req *datasource.Request) (msgType uint32, payload []byte)
	EncodeSetValue(uri string, value datasource.Value) (msgType uint32, payload []byte)
	// DecodeRecords reports the URIs a delivered message satisfies and the
	// records it carries; ok is false if m is not a record-delivery message.
	DecodeRecords(m *messaging.Message) (uris []string, recs []*datasource.Record, ok bool)
	// DecodeSetOutcome reports the outcome of a prior set-value command;
	// ok is false if m is not a set-outcome message.
	DecodeSetOutcome(m *messaging.Message) (outcome datasource.SetOutcome, ok bool)
}

// Source bridges one messaging.Router session to the datasource.Source
// contract, per section 4.K.
type Source struct {
	name   string
	log    logctx.Logger
	router *messaging.Router
	codec  Codec
	manager *datasource.Manager

	mu        sync.Mutex
	sessionNo uint32
	byURI     map[string][]*datasource.Request
	setSinks  []datasource.SetSink
}

// New builds a loggernet Source named name, communicating over router
// using codec to translate requests to and from wire messages.
func New(name string, manager *datasource.Manager, router *messaging.Router, codec Codec, log logctx.Logger) *Source {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Source{
		name:    name,
		log:     log,
		router:  router,
		codec:   codec,
		manager: manager,
		byURI:   make(map[string][]*datasource.Request),
	}
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source: opens the session.
func (s *Source) Connect() {
	s.manager.NotifySourceConnecting(s.name)
	s.mu.Lock()
	s.sessionNo = s.router.OpenSession(s)
	s.mu.Unlock()
	s.manager.NotifySourceConnect(s.name)
}

// Disconnect implements datasource.Source.
func (s *Source) Disconnect() {
	s.mu.Lock()
	sessionNo := s.sessionNo
	s.mu.Unlock()
	s.router.CloseSession(sessionNo)
}

// AddRequest implements datasource.Source: encodes and sends the request
// via the codec, registering it to receive delivered records by URI.
func (s *Source) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	msgType, payload := s.codec.EncodeAddRequest(req)
	s.mu.Lock()
	sessionNo := s.sessionNo
	s.byURI[req.URI] = append(s.byURI[req.URI], req)
	s.mu.Unlock()
	return s.router.Send(sessionNo, msgType, payload)
}

// RemoveRequest implements datasource.Source.
func (s *Source) RemoveRequest(req *datasource.Request) {
	msgType, payload := s.codec.EncodeRemoveRequest(req)
	s.mu.Lock()
	sessionNo := s.sessionNo
	reqs := s.byURI[req.URI]
	for i, r := range reqs {
		if r == req {
			s.byURI[req.URI] = append(reqs[:i], reqs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if e := s.router.Send(sessionNo, msgType, payload); e != nil {
		s.log.WithField("err", e).Warn("loggernet: remove request send failed")
	}
}

// SetValue implements datasource.Source.
func (s *Source) SetValue(sink datasource.SetSink, uri string, value datasource.Value) bool {
	msgType, payload := s.codec.EncodeSetValue(uri, value)
	s.mu.Lock()
	sessionNo := s.sessionNo
	s.setSinks = append(s.setSinks, sink)
	s.mu.Unlock()
	return s.router.Send(sessionNo, msgType, payload) == nil
}

func (s *Source) SendFile(datasource.FileSink, string, string) bool    { return false }
func (s *Source) GetNewestFile(datasource.FileSink, string) bool       { return false }
func (s *Source) ClockCheck(datasource.FileSink) bool                  { return false }
func (s *Source) FileControl(datasource.FileSink, string, string) bool { return false }
func (s *Source) ListFiles(datasource.FileSink, string) bool           { return false }
func (s *Source) StartTerminal(datasource.TerminalSink, int64) bool    { return false }
func (s *Source) SendTerminal(int64, []byte) bool                      { return false }
func (s *Source) CloseTerminal(int64)                                  {}

// BreakdownURI implements datasource.Source.
func (s *Source) BreakdownURI(uri string) []datasource.Segment { return datasource.BreakdownURI(uri) }

// OnMessage implements messaging.Node: every inbound message is offered to
// the codec, first as a record delivery, then (if that fails to match) as
// a set-value outcome.
func (s *Source) OnMessage(sessionNo uint32, m *messaging.Message) {
	if uris, recs, ok := s.codec.DecodeRecords(m); ok {
		s.mu.Lock()
		var reqs []*datasource.Request
		for _, uri := range uris {
			reqs = append(reqs, s.byURI[uri]...)
		}
		s.mu.Unlock()
		if len(reqs) > 0 {
			s.manager.DeliverRecords(reqs, recs)
		}
		return
	}
	if outcome, ok := s.codec.DecodeSetOutcome(m); ok {
		s.mu.Lock()
		var sink datasource.SetSink
		if len(s.setSinks) > 0 {
			sink = s.setSinks[0]
			s.setSinks = s.setSinks[1:]
		}
		s.mu.Unlock()
		if sink != nil {
			sink.OnSetComplete(outcome)
		}
	}
}

// OnBroken implements messaging.Node: a broken session fails every
// outstanding request.
func (s *Source) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	s.mu.Lock()
	all := s.byURI
	s.byURI = make(map[string][]*datasource.Request)
	s.mu.Unlock()
	for _, reqs := range all {
		for _, req := range reqs {
			req.Sink.OnSinkFailure(req, datasource.FailureSourceDisconnected)
		}
	}
	s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectTransportFailure)
}
