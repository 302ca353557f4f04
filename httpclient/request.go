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

package httpclient

import (
	"bytes"
	"net/textproto"
	"time"
)

// Auth is an authorisation strategy applied when a Request's headers are
// written, per section 4.I.
type Auth interface {
	// WriteHeaders appends whatever Authorization (or device-specific)
	// header lines this strategy needs to hdr, given the request it is
	// signing.
	WriteHeaders(hdr *textproto.MIMEHeader, req *Request)
}

// Request holds one HTTP/1.1 request/response exchange queued on a
// Connection, per section 3's "HTTP request" data model.
type Request struct {
	Method string
	URI    string
	Auth   Auth

	Header textproto.MIMEHeader
	Body   *bytes.Buffer // push-only request body

	// Upgrade, when non-empty, requests a protocol upgrade (only
	// "websocket" is recognised) and carries the Sec-WebSocket-Protocol
	// value to offer, if any.
	Upgrade         string
	WebSocketProto  string
	websocketKey    string

	Timeout time.Duration

	// Response fields, populated as the Connection reads.
	StatusCode   int
	RespHeader   textproto.MIMEHeader
	RespBody     bytes.Buffer // pull-only response body
	Chunked      bool
	ContentLen   int64
	WillClose    bool
	SendComplete bool

	done chan struct{}
	err  error
}

// NewRequest builds a Request ready to be queued with Connection.Do.
func NewRequest(method, uri string) *Request {
	return &Request{
		Method: method,
		URI:    uri,
		Header: textproto.MIMEHeader{},
		Body:   &bytes.Buffer{},
		done:   make(chan struct{}),
	}
}

// SetBody replaces the request body and sets Content-Length accordingly;
// mutually exclusive with chunked request bodies (not used by any client
// path here — only response bodies may be chunked per section 4.I).
func (r *Request) SetBody(b []byte) {
	r.Body = bytes.NewBuffer(b)
}

// Wait blocks until the request completes (success or failure).
func (r *Request) Wait() error {
	<-r.done
	return r.err
}

// Done is closed exactly once, when the request's lifecycle ends.
func (r *Request) Done() <-chan struct{} { return r.done }

func (r *Request) complete(err error) {
	r.err = err
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}
