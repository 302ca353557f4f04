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

// Package bmp5 implements the BMP5-over-PakBus datasource.Source of
// section 4.K: a thin binding between one pakbus.Link and the
// datasource.Source contract. BMP5 is, per spec.md §1's Non-goals, "the
// proprietary application protocol spoken over PakBus" — its packet
// header (transaction numbers, security codes, hi-protocol byte) and its
// command set are both treated as an external collaborator's concern
// here, encapsulated entirely behind a caller-injected Codec.
package bmp5

import (
	"sync"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
	"github.com/lnetcore/corelink/pakbus"
)

// Codec builds and parses complete PakBus frame bodies (header and BMP5
// payload alike) for one peer. A concrete implementation, outside this
// package, knows the actual BMP5 wire layout.
type Codec interface {
	EncodeAddRequest(req *datasource.Request) (body []byte, broadcast bool)
	EncodeRemoveRequest(req *datasource.Request) (body []byte, broadcast bool)
	EncodeSetValue(uri string, value datasource.Value) (body []byte, broadcast bool)
	// DecodeRecords reports the URIs a decoded frame body satisfies and the
	// records it carries; ok is false if body is not a record delivery.
	DecodeRecords(body []byte) (uris []string, recs []*datasource.Record, ok bool)
	// DecodeSetOutcome reports the outcome of a prior set-value command;
	// ok is false if body is not a set-outcome frame.
	DecodeSetOutcome(body []byte) (outcome datasource.SetOutcome, ok bool)
}

// Source bridges one pakbus.Link to the datasource.Source contract.
type Source struct {
	name    string
	log     logctx.Logger
	link    *pakbus.Link
	codec   Codec
	manager *datasource.Manager

	mu       sync.Mutex
	byURI    map[string][]*datasource.Request
	setSinks []datasource.SetSink
}

// New builds a bmp5 Source named name, sending and receiving over link
// using codec to translate requests to and from frame bodies.
func New(name string, manager *datasource.Manager, link *pakbus.Link, codec Codec, log logctx.Logger) *Source {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Source{
		name:    name,
		log:     log,
		link:    link,
		codec:   codec,
		manager: manager,
		byURI:   make(map[string][]*datasource.Request),
	}
}

// Name implements datasource.Source.
func (s *Source) Name() string { return s.name }

// Connect implements datasource.Source. The underlying Link rings the peer
// lazily on first Send, so Connect only announces the transition.
func (s *Source) Connect() {
	s.manager.NotifySourceConnecting(s.name)
	s.manager.NotifySourceConnect(s.name)
}

// Disconnect implements datasource.Source.
func (s *Source) Disconnect() {
	s.link.ForceOffline()
	s.manager.NotifySourceDisconnect(s.name, datasource.DisconnectRequested)
}

// AddRequest implements datasource.Source.
func (s *Source) AddRequest(req *datasource.Request, moreToFollow bool) errs.Error {
	body, broadcast := s.codec.EncodeAddRequest(req)
	s.mu.Lock()
	s.byURI[req.URI] = append(s.byURI[req.URI], req)
	s.mu.Unlock()
	s.link.Send(body, broadcast)
	return nil
}

// RemoveRequest implements datasource.Source.
func (s *Source) RemoveRequest(req *datasource.Request) {
	body, broadcast := s.codec.EncodeRemoveRequest(req)
	s.mu.Lock()
	reqs := s.byURI[req.URI]
	for i, r := range reqs {
		if r == req {
			s.byURI[req.URI] = append(reqs[:i], reqs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.link.Send(body, broadcast)
}

// SetValue implements datasource.Source.
func (s *Source) SetValue(sink datasource.SetSink, uri string, value datasource.Value) bool {
	body, broadcast := s.codec.EncodeSetValue(uri, value)
	s.mu.Lock()
	s.setSinks = append(s.setSinks, sink)
	s.mu.Unlock()
	s.link.Send(body, broadcast)
	return true
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

// OnFrame is wired as the port's FrameHandler (directly, or fanned out by
// caller-side peer-address routing when several bmp5 Sources share one
// port): it marks the link active, then offers the decoded body to the
// codec, first as a record delivery, then as a set-value outcome.
func (s *Source) OnFrame(body []byte) {
	s.link.OnFrameReceived()

	if uris, recs, ok := s.codec.DecodeRecords(body); ok {
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
	if outcome, ok := s.codec.DecodeSetOutcome(body); ok {
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
