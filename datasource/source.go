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

import "github.com/lnetcore/corelink/errs"

// DisconnectReason classifies why a source disconnected, surfaced to the
// Manager's clients per section 4.K/7.
type DisconnectReason uint8

const (
	DisconnectRequested DisconnectReason = iota
	DisconnectTransportFailure
	DisconnectAuthRejected
)

// Source is the uniform contract every concrete data source (LoggerNet,
// HTTP, BMP5, data file, FTP-delivered file, virtual) implements, per
// section 4.K's operation table.
type Source interface {
	Name() string

	Connect()
	Disconnect()

	AddRequest(req *Request, moreToFollow bool) errs.Error
	RemoveRequest(req *Request)

	SetValue(sink SetSink, uri string, value Value) bool
	SendFile(sink FileSink, localPath, remotePath string) bool
	GetNewestFile(sink FileSink, remoteDir string) bool
	ClockCheck(sink FileSink) bool
	FileControl(sink FileSink, op, arg string) bool
	ListFiles(sink FileSink, remoteDir string) bool

	StartTerminal(sink TerminalSink, token int64) bool
	SendTerminal(token int64, data []byte) bool
	CloseTerminal(token int64)

	BreakdownURI(uri string) []Segment
}

// ManagerClient receives source-level connect/disconnect events, per
// section 4.K.
type ManagerClient interface {
	OnSourceConnecting(source string)
	OnSourceConnect(source string)
	OnSourceDisconnect(source string, reason DisconnectReason)
}

// Supervisor is the optional hook invoked once on add and once per batch of
// records, before sinks are notified, per section 4.K. It may mutate a
// request (for example forcing a date-range query) prior to delivery.
type Supervisor interface {
	OnRequestAdded(req *Request)
	OnBeforeRecords(reqs []*Request, recs []*Record)
}
