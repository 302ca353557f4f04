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
	"fmt"
	"io"

	"github.com/lnetcore/corelink/errs"
)

// Reserved message types used directly by the router; everything else is
// opaque payload handed to a Node.
const (
	MsgTypeHeartbeat         uint32 = 1
	MsgTypeSessionCloseCmd   uint32 = 2
	MsgTypeSessionClosedNot  uint32 = 3
	MsgTypeMessageRejectedNot uint32 = 4
	MsgTypeQueryServerCmd    uint32 = 5
	MsgTypeQueryServerAck    uint32 = 6
)

// BrokenReason classifies why a session stopped receiving messages, whether
// because the whole connection failed or because that one session was
// closed or rejected.
type BrokenReason uint8

const (
	ReasonUnknown BrokenReason = iota
	ReasonRemoteDisconnect
	ReasonHeartbeat
	ReasonNoObject
	ReasonNoResources
	ReasonShutDown
	ReasonOrphanedSession
)

// headerLen is the two fixed 32-bit fields (session number, message type)
// that count towards the wire length prefix.
const headerLen = 8

// Message is a mutable frame: a client session number, a message type, and
// a payload with a positioned read cursor.
type Message struct {
	SessionNo uint32
	Type      uint32
	Payload   []byte
	pos       int
}

// NewMessage builds a Message ready to be sent.
func NewMessage(sessionNo, msgType uint32, payload []byte) *Message {
	return &Message{SessionNo: sessionNo, Type: msgType, Payload: payload}
}

// Len is the encoded length field: the two fixed header words plus the
// payload, matching section 3's "encoded length >= 4 bytes" rule (the
// fixed fields alone already total 8 on the wire, not 4 — the minimum of 4
// is the boundary for deciding whether an incoming frame must be treated as
// a heartbeat, per section 6).
func (m *Message) Len() uint32 { return headerLen + uint32(len(m.Payload)) }

// Reset rewinds the read cursor to the start of the payload.
func (m *Message) Reset() { m.pos = 0 }

// Remaining is how many unread payload bytes are left.
func (m *Message) Remaining() int { return len(m.Payload) - m.pos }

// ReadBytes consumes and returns the next n bytes of the payload.
func (m *Message) ReadBytes(n int) ([]byte, error) {
	if m.pos+n > len(m.Payload) {
		return nil, io.ErrUnexpectedEOF
	}
	b := m.Payload[m.pos : m.pos+n]
	m.pos += n
	return b, nil
}

// ReadUint32 consumes a big-endian uint32 from the payload.
func (m *Message) ReadUint32() (uint32, error) {
	b, err := m.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// AddBytes appends raw bytes to the payload.
func (m *Message) AddBytes(b []byte) { m.Payload = append(m.Payload, b...) }

// AddUint32 appends a big-endian uint32 to the payload.
func (m *Message) AddUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	m.Payload = append(m.Payload, b[:]...)
}

// Encode writes the wire form: big-endian 32-bit length prefix, then the
// session number, message type and payload.
func Encode(m *Message) []byte {
	buf := make([]byte, 4+m.Len())
	binary.BigEndian.PutUint32(buf[0:4], m.Len())
	binary.BigEndian.PutUint32(buf[4:8], m.SessionNo)
	binary.BigEndian.PutUint32(buf[8:12], m.Type)
	copy(buf[12:], m.Payload)
	return buf
}

// heartbeatFrame is the canonical zero-payload heartbeat: N=2, session=0,
// type=1, per section 6. Its declared length (2) is intentionally below the
// 8-byte "real" header size; readers must treat any N<4 as a heartbeat.
var heartbeatFrame = []byte{0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 1}

// HeartbeatFrame returns the canonical wire encoding of a heartbeat.
func HeartbeatFrame() []byte {
	out := make([]byte, len(heartbeatFrame))
	copy(out, heartbeatFrame)
	return out
}

// DecodeBody parses a message body (everything after the length prefix) of
// the given declared length. A declared length under 4 is a heartbeat:
// DecodeBody returns (nil, true, nil) and the caller must not route
// anything. A body between 4 and 8 bytes inclusive that is not a full
// header is treated as malformed and reported as a parse error.
func DecodeBody(declaredLen uint32, body []byte) (*Message, bool, errs.Error) {
	if declaredLen < 4 {
		return nil, true, nil
	}
	if len(body) < headerLen {
		return nil, false, errs.New(errs.ClassParse, 0, "message body shorter than header", nil)
	}
	sn := binary.BigEndian.Uint32(body[0:4])
	mt := binary.BigEndian.Uint32(body[4:8])
	payload := make([]byte, len(body)-headerLen)
	copy(payload, body[headerLen:])
	return &Message{SessionNo: sn, Type: mt, Payload: payload}, false, nil
}

// MaxFrameLen bounds how large a declared frame length may be before the
// connection is considered to have failed with a resource error (section 6:
// "a length exceeding available virtual memory fails the connection"). This
// is a conservative static ceiling rather than a live memory probe.
const MaxFrameLen = 64 << 20

// ValidateLen reports whether declaredLen is encodable without tripping the
// resource-failure boundary.
func ValidateLen(declaredLen uint32) errs.Error {
	if declaredLen > MaxFrameLen {
		return errs.New(errs.ClassResource, 0, fmt.Sprintf("frame length %d exceeds maximum %d", declaredLen, MaxFrameLen), nil)
	}
	return nil
}
