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

package datasource

import (
	"strings"
	"sync"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
)

// Manager is the uniform façade of section 4.K: a registry of named
// Sources (selected by URI prefix), request bookkeeping keyed by request
// ID, and ManagerClient /
// Supervisor fan-out. All methods are expected to run on the single event
// loop (section 5); Manager itself holds no locks in its hot path beyond
// the registration map guard used when sources are added from outside the
// loop at startup.
type Manager struct {
	log logctx.Logger

	mu      sync.Mutex
	sources map[string]Source

	supervisor Supervisor
	clients    []ManagerClient

	requests map[string]*Request // by Request.ID
}

// NewManager builds an empty Manager.
func NewManager(log logctx.Logger) *Manager {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Manager{
		log:      log,
		sources:  make(map[string]Source),
		requests: make(map[string]*Request),
	}
}

// AddSource registers source under its own Name(). Replacing an existing
// name disconnects the prior source first.
func (m *Manager) AddSource(src Source) {
	m.mu.Lock()
	prior, had := m.sources[src.Name()]
	m.sources[src.Name()] = src
	m.mu.Unlock()
	if had {
		prior.Disconnect()
	}
}

// RemoveSource disconnects and unregisters a source by name.
func (m *Manager) RemoveSource(name string) {
	m.mu.Lock()
	src, ok := m.sources[name]
	delete(m.sources, name)
	m.mu.Unlock()
	if ok {
		src.Disconnect()
	}
}

// SetSupervisor installs the optional ManagerSupervisor hook.
func (m *Manager) SetSupervisor(s Supervisor) { m.supervisor = s }

// AddClient registers a ManagerClient for source connect/disconnect events.
func (m *Manager) AddClient(c ManagerClient) {
	m.mu.Lock()
	m.clients = append(m.clients, c)
	m.mu.Unlock()
}

func (m *Manager) sourceNameOf(uri string) string {
	if i := strings.IndexByte(uri, ':'); i >= 0 {
		return uri[:i]
	}
	return ""
}

func (m *Manager) sourceFor(uri string) (Source, bool) {
	name := m.sourceNameOf(uri)
	m.mu.Lock()
	src, ok := m.sources[name]
	m.mu.Unlock()
	return src, ok
}

// AddRequest queues req against the source its URI names, per section 4.K's
// request lifecycle: pending -> started on add, -> received-advise on the
// first record. The supervisor, if any, is invoked once here before the
// source is asked to start the request.
func (m *Manager) AddRequest(req *Request, moreToFollow bool) {
	if m.supervisor != nil {
		m.supervisor.OnRequestAdded(req)
	}

	src, ok := m.sourceFor(req.URI)
	if !ok {
		req.transition(StateFailed)
		req.Sink.OnSinkFailure(req, FailureInvalidURI)
		return
	}

	m.mu.Lock()
	m.requests[req.ID] = req
	m.mu.Unlock()

	req.Freeze()
	req.transition(StateStarted)
	if err := src.AddRequest(req, moreToFollow); err != nil {
		m.log.WithField("err", err).Warn("source rejected AddRequest")
		req.transition(StateFailed)
		req.Sink.OnSinkFailure(req, classifyAddErr(err))
		m.mu.Lock()
		delete(m.requests, req.ID)
		m.mu.Unlock()
	}
}

func classifyAddErr(err errs.Error) FailureCode {
	switch err.Class() {
	case errs.ClassPolicy:
		return FailureSecurityBlocked
	case errs.ClassTransport:
		return FailureSourceDisconnected
	default:
		return FailureUnknown
	}
}

// RemoveRequest cancels and releases req; idempotent per section 4.K.
func (m *Manager) RemoveRequest(req *Request) {
	m.mu.Lock()
	_, present := m.requests[req.ID]
	delete(m.requests, req.ID)
	m.mu.Unlock()
	if !present {
		return
	}
	req.transition(StateRemoved)
	if src, ok := m.sourceFor(req.URI); ok {
		src.RemoveRequest(req)
	}
}

// DeliverRecords is called by a Source with one batch shared by any number
// of co-scheduled requests, applying the supervisor hook before fanning out
// to each request's sink per section 4.K's "exactly one sink notification"
// rule.
func (m *Manager) DeliverRecords(reqs []*Request, recs []*Record) {
	if m.supervisor != nil {
		m.supervisor.OnBeforeRecords(reqs, recs)
	}
	if len(reqs) == 0 {
		return
	}
	for _, req := range reqs {
		req.transition(StateReceivedAdvise)
	}
	// Group by sink identity so each sink sees one OnSinkRecords call per
	// batch covering every request of its own that this batch satisfies.
	bySink := make(map[Sink][]*Request)
	for _, req := range reqs {
		bySink[req.Sink] = append(bySink[req.Sink], req)
	}
	for sink, rs := range bySink {
		sink.OnSinkRecords(rs, recs)
	}
}

// NotifySourceConnecting/Connect/Disconnect fan the corresponding event out
// to every registered ManagerClient; sources call these on the Manager they
// were added to.
func (m *Manager) NotifySourceConnecting(name string) {
	for _, c := range m.snapshotClients() {
		c.OnSourceConnecting(name)
	}
}

func (m *Manager) NotifySourceConnect(name string) {
	for _, c := range m.snapshotClients() {
		c.OnSourceConnect(name)
	}
}

func (m *Manager) NotifySourceDisconnect(name string, reason DisconnectReason) {
	for _, c := range m.snapshotClients() {
		c.OnSourceDisconnect(name, reason)
	}
}

func (m *Manager) snapshotClients() []ManagerClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ManagerClient, len(m.clients))
	copy(out, m.clients)
	return out
}

// SetValue, SendFile, GetNewestFile, ClockCheck, FileControl, ListFiles,
// StartTerminal, SendTerminal and CloseTerminal all route to the named
// source per section 4.K, returning false (matching "a source that cannot
// perform the operation returns false from start_*") when the URI names no
// registered source.

func (m *Manager) SetValue(sink SetSink, uri string, value Value) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.SetValue(sink, uri, value)
}

func (m *Manager) SendFile(uri string, sink FileSink, localPath, remotePath string) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.SendFile(sink, localPath, remotePath)
}

func (m *Manager) GetNewestFile(uri string, sink FileSink, remoteDir string) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.GetNewestFile(sink, remoteDir)
}

func (m *Manager) ClockCheck(uri string, sink FileSink) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.ClockCheck(sink)
}

func (m *Manager) FileControl(uri string, sink FileSink, op, arg string) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.FileControl(sink, op, arg)
}

func (m *Manager) ListFiles(uri string, sink FileSink, remoteDir string) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.ListFiles(sink, remoteDir)
}

func (m *Manager) StartTerminal(uri string, sink TerminalSink, token int64) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.StartTerminal(sink, token)
}

func (m *Manager) SendTerminal(uri string, token int64, data []byte) bool {
	src, ok := m.sourceFor(uri)
	if !ok {
		return false
	}
	return src.SendTerminal(token, data)
}

func (m *Manager) CloseTerminal(uri string, token int64) {
	if src, ok := m.sourceFor(uri); ok {
		src.CloseTerminal(token)
	}
}

// BreakdownURI is the total function of section 4.K; invalid URIs return an
// empty slice rather than an error.
func (m *Manager) BreakdownURI(uri string) []Segment {
	return BreakdownURI(uri)
}
