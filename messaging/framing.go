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

import (
	"encoding/binary"
	"io"

	"github.com/lnetcore/corelink/errs"
)

// FrameReader implements the receiver state machine of section 4.C:
// between_messages, reading four bytes as a big-endian length, then either
// signalling a heartbeat (declared length < 4) or buffering exactly that
// many bytes and delivering one Message.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader wraps r (typically a bufio.Reader over a net.Conn or serial
// port) with the message framing state machine.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadOne blocks until one frame has arrived. It returns (msg, false, nil)
// for a normal message, (nil, true, nil) for a heartbeat-equivalent frame
// (declared length < 4 — "never draining fewer than 4 bytes" per section
// 9's open question: the 4-byte length prefix is always consumed even when
// the body it describes is empty), and a Resource-class error if the
// declared length exceeds MaxFrameLen.
func (f *FrameReader) ReadOne() (*Message, bool, errs.Error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		return nil, false, errs.New(errs.ClassTransport, 0, "reading frame length", err)
	}
	declared := binary.BigEndian.Uint32(lenBuf[:])

	if declared < 4 {
		return nil, true, nil
	}

	if e := ValidateLen(declared); e != nil {
		return nil, false, e
	}

	body := make([]byte, declared)
	if _, err := io.ReadFull(f.r, body); err != nil {
		return nil, false, errs.New(errs.ClassTransport, 0, "reading frame body", err)
	}

	msg, isHB, perr := DecodeBody(declared, body)
	if perr != nil {
		return nil, false, perr
	}
	return msg, isHB, nil
}
