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

// Package pakbus implements the serial packet link of section 4.G: frame
// quoting, the per-peer ring/ready/finished state machine, outbound
// pacing, beaconing and session tracking, independent of the physical
// transport (see pakbus/port for the go.bug.st/serial binding).
package pakbus

// Byte-stuffing constants. FrameDelim marks a frame boundary; a FrameDelim
// that immediately follows a non-FrameDelim byte ends the frame, so runs
// of FrameDelim bytes are legal idle padding. Escape quotes any in-body
// occurrence of FrameDelim or Escape itself.
const (
	FrameDelim byte = 0xBD
	Escape     byte = 0xBC

	quotedDelim  byte = 0xDD
	quotedEscape byte = 0xDC
)

// crc16 computes the running 16-bit signature used to validate a frame:
// appending crc16(body) to body and recomputing crc16 over the combined
// bytes yields zero, which is what the frame decoder checks at
// end-of-frame per section 4.G.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// quote byte-stuffs raw so it contains no bare FrameDelim or Escape bytes.
func quote(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+4)
	for _, b := range raw {
		switch b {
		case FrameDelim:
			out = append(out, Escape, quotedDelim)
		case Escape:
			out = append(out, Escape, quotedEscape)
		default:
			out = append(out, b)
		}
	}
	return out
}

// EncodeFrame builds the full wire form of one frame: opening delimiter,
// quoted body with its trailing CRC, closing delimiter.
func EncodeFrame(body []byte) []byte {
	crc := crc16(body)
	withCRC := make([]byte, len(body)+2)
	copy(withCRC, body)
	withCRC[len(body)] = byte(crc)
	withCRC[len(body)+1] = byte(crc >> 8)

	quoted := quote(withCRC)
	out := make([]byte, 0, len(quoted)+2)
	out = append(out, FrameDelim)
	out = append(out, quoted...)
	out = append(out, FrameDelim)
	return out
}

// StreamDecoder turns a raw byte stream into framed, unquoted, CRC-checked
// bodies. Feed one byte at a time (as bytes arrive from the serial
// reader); a non-nil return means a complete, valid frame was found.
// Frames that fail their CRC are silently dropped and the decoder resets,
// per section 4.G ("failure drops the frame and resets the reader").
type StreamDecoder struct {
	inFrame    bool
	afterDelim bool // not read or written by Feed; termination depends only on whether buf is empty
	escaping   bool
	buf        []byte
}

// NewStreamDecoder returns a decoder ready to scan a fresh byte stream.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Feed consumes one byte and returns the decoded body (without its
// trailing CRC) whenever a complete, CRC-valid frame closes on this byte.
func (d *StreamDecoder) Feed(b byte) (body []byte, complete bool) {
	if !d.inFrame {
		if b == FrameDelim {
			d.inFrame = true
			d.buf = d.buf[:0]
			d.escaping = false
		}
		return nil, false
	}

	if b == FrameDelim {
		// A FrameDelim while in-frame: if the buffer is still empty this
		// is leading idle padding (BD BD BD ...), not a terminator.
		if len(d.buf) == 0 {
			return nil, false
		}
		d.inFrame = false
		frame := d.buf
		d.buf = nil
		if len(frame) < 2 {
			return nil, false
		}
		if crc16(frame) != 0 {
			return nil, false
		}
		return frame[:len(frame)-2], true
	}

	if d.escaping {
		d.escaping = false
		switch b {
		case quotedDelim:
			d.buf = append(d.buf, FrameDelim)
		case quotedEscape:
			d.buf = append(d.buf, Escape)
		default:
			// Malformed escape sequence: reset and wait for the next
			// frame boundary.
			d.inFrame = false
			d.buf = nil
		}
		return nil, false
	}

	if b == Escape {
		d.escaping = true
		return nil, false
	}

	d.buf = append(d.buf, b)
	return nil, false
}
