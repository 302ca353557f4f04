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

import "github.com/lnetcore/corelink/errs"

// ConnCloseReason classifies why a Connection stopped being usable.
type ConnCloseReason uint8

const (
	CloseUnknownFailure ConnCloseReason = iota
	CloseRemoteDisconnect
	CloseHeartbeatExpired
	CloseRequested
)

// Connection is the abstraction a Router owns exactly one of: attach/detach,
// send, and a close notification. Every Connection owns a transmit
// watch-dog: if nothing has been sent in 60s, a heartbeat is emitted, and
// resetting the watch-dog is the only side effect of a successful write
// (section 3).
type Connection interface {
	// Attach is called by the Router when the first session opens.
	Attach() errs.Error
	// Detach is called by the Router when the last session closes.
	Detach()
	// Send transmits one already-framed Message.
	Send(m *Message) errs.Error
	// SetDispatcher installs the callback invoked (on the owning Loop) for
	// every decoded inbound Message that is not itself a bare heartbeat.
	SetDispatcher(fn func(*Message))
	// SetCloseNotify installs the callback invoked exactly once when the
	// connection fails or is closed.
	SetCloseNotify(fn func(ConnCloseReason))
}

// HeartbeatInterval is the fixed transmit/receive silence period from
// section 3 and section 5: 60 seconds on the messaging fabric.
const HeartbeatInterval = 60_000_000_000 // 60s in nanoseconds, kept as an
// untyped constant so callers can use it as either int64 or time.Duration
// without an import cycle back into "time" at the constant-declaration site.
