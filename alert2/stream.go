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

package alert2

import (
	"bufio"
	"io"
	"strings"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/logctx"
)

// Kind is the dispatch category selected by a line's first CSV field.
type Kind uint8

const (
	KindMant Kind = iota
	KindAirLink
	KindConcentration
	KindStatus
)

// IndMessage is one dispatched, still largely unparsed IND line.
type IndMessage struct {
	Kind   Kind
	Fields []string
	Raw    string
}

// Stream reads newline-framed CSV lines from r and dispatches each to a
// Kind by its leading field, per section 4.J. An "ALERT2A" prologue is
// stripped (five standard preamble fields plus the time-quality flag,
// section 9's open question) before reparsing the remainder.
type Stream struct {
	br  *bufio.Reader
	log logctx.Logger
}

// NewStream wraps r.
func NewStream(r io.Reader, log logctx.Logger) *Stream {
	if log == nil {
		log = logctx.NewNop()
	}
	return &Stream{br: bufio.NewReader(r), log: log}
}

// Next reads and dispatches the next IND line. When the stream is
// exhausted it returns a parse-class errs.Error whose parent is io.EOF
// (errors.Is(err, io.EOF) reports true).
func (s *Stream) Next() (*IndMessage, errs.Error) {
	for {
		line, err := s.br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if err != nil {
				return nil, ioErr(err)
			}
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) > 0 && strings.HasPrefix(fields[0], "ALERT2A") {
			// Strip the five-field standard preamble plus the
			// time-quality flag; deviations here are logged, not
			// rejected, per section 9's open question.
			if len(fields) < 7 {
				s.log.WithField("line", line).Warn("alert2: short ALERT2A prologue, skipping")
				if err != nil {
					return nil, ioErr(err)
				}
				continue
			}
			fields = fields[6:]
		}

		kind, ok := classify(fields[0])
		if !ok {
			s.log.WithField("field", fields[0]).Warn("alert2: unrecognized IND leading field")
			if err != nil {
				return nil, ioErr(err)
			}
			continue
		}

		return &IndMessage{Kind: kind, Fields: fields, Raw: line}, nil
	}
}

func classify(lead string) (Kind, bool) {
	switch {
	case lead == "N":
		return KindMant, true
	case lead == "P":
		return KindAirLink, true
	case lead == "C" || lead == "A":
		return KindConcentration, true
	case lead == "S":
		return KindStatus, true
	default:
		return 0, false
	}
}

func ioErr(err error) errs.Error {
	if err == io.EOF {
		return errs.New(errs.ClassParse, 0, "alert2: end of stream", io.EOF)
	}
	return errs.New(errs.ClassTransport, 0, "alert2: stream read failed", err)
}
