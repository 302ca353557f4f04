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

// FailureCode enumerates why a Request failed terminally, per section 4.K.
type FailureCode uint8

const (
	FailureUnknown FailureCode = iota
	FailureInvalidURI
	FailureSourceDisconnected
	FailureSecurityBlocked
	FailureUnsupportedOperation
)

// Sink is the application object that receives records and outcome
// callbacks, per section 3/4.K. Exactly one of the three notifications is
// delivered per event: ready once schema is known, records for each batch,
// or a terminal failure (after which the request is auto-removed).
type Sink interface {
	OnSinkReady(req *Request, rec *Record)
	OnSinkFailure(req *Request, code FailureCode)
	OnSinkRecords(reqs []*Request, recs []*Record)
}

// SetOutcome is the result of a set_value operation, per section 4.K.
type SetOutcome uint8

const (
	SetSuccess SetOutcome = iota
	SetInvalidURI
	SetPermissionDenied
	SetCommFailure
	SetInvalidValue
)

// SetSink receives the single outcome callback a set_value operation always
// produces, per section 4.K/7 ("setup operations always produce exactly one
// outcome callback").
type SetSink interface {
	OnSetComplete(outcome SetOutcome)
}

// FileOutcome is the result of a file-oriented operation (send_file,
// get_newest_file, file_control, clock_check).
type FileOutcome uint8

const (
	FileSuccess FileOutcome = iota
	FileNotFound
	FilePermissionDenied
	FileCommFailure
	FileAborted
)

// FileSink receives the outcome of one file operation.
type FileSink interface {
	OnFileComplete(outcome FileOutcome, detail string)
}

// TerminalSink receives bytes from a bidirectional terminal stream keyed by
// (sink, token), per section 4.K.
type TerminalSink interface {
	OnTerminalData(token int64, data []byte)
	OnTerminalClosed(token int64)
}
