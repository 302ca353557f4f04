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

// Package websocket implements the frame codec and upgrade handshake of
// section 4.I/6: RFC6455 framing (masking, fragmentation, control frames)
// layered onto an already-upgraded net.Conn handed off by httpclient.
package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
)

// OpCode identifies a frame's payload interpretation.
type OpCode uint8

const (
	OpContinuation OpCode = 0x0
	OpText         OpCode = 0x1
	OpBinary       OpCode = 0x2
	OpClose        OpCode = 0x8
	OpPing         OpCode = 0x9
	OpPong         OpCode = 0xA
)

// websocketGUID is the fixed RFC6455 accept-key suffix.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// NewKey generates a fresh 16-byte base64 Sec-WebSocket-Key per section 6.
func NewKey() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b[:]), nil
}

// AcceptFor computes the expected Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key, per section 6's
// "base64(SHA1(key ++ 258EAFA5-E914-47DA-95CA-C5AB0DC85B11))" rule.
func AcceptFor(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Frame is one decoded websocket frame.
type Frame struct {
	Fin     bool
	OpCode  OpCode
	Payload []byte
}

// ErrFrameTooLarge guards against a malicious or corrupt length field.
var ErrFrameTooLarge = errors.New("websocket: frame payload too large")

// MaxFramePayload bounds a single frame's payload length.
const MaxFramePayload = 16 << 20

// mask applies the RFC6455 4-byte rolling XOR mask to payload in place.
func mask(payload []byte, key [4]byte) {
	for i := range payload {
		payload[i] ^= key[i%4]
	}
}

// WriteFrame encodes and writes one frame to w. Client frames must be
// masked per section 4.I ("the client sends masked, receives unmasked").
func WriteFrame(w io.Writer, op OpCode, payload []byte, masked bool) error {
	var hdr [14]byte
	hdr[0] = 0x80 | byte(op) // always send fin=1; fragmentation is not used
	// by this client's outbound path.

	n := len(payload)
	maskBit := byte(0)
	if masked {
		maskBit = 0x80
	}
	var extra int
	switch {
	case n < 126:
		hdr[1] = maskBit | byte(n)
		extra = 2
	case n <= 0xFFFF:
		hdr[1] = maskBit | 126
		binary.BigEndian.PutUint16(hdr[2:4], uint16(n))
		extra = 4
	default:
		hdr[1] = maskBit | 127
		binary.BigEndian.PutUint64(hdr[2:10], uint64(n))
		extra = 10
	}

	buf := make([]byte, extra, extra+4+n)
	copy(buf, hdr[:extra])

	if masked {
		var key [4]byte
		if _, err := rand.Read(key[:]); err != nil {
			return err
		}
		buf = append(buf, key[:]...)
		masked := make([]byte, n)
		copy(masked, payload)
		mask(masked, key)
		buf = append(buf, masked...)
	} else {
		buf = append(buf, payload...)
	}

	_, err := w.Write(buf)
	return err
}

// ReadFrame decodes exactly one frame from r, applying the receiver state
// machine of section 3: before_frame -> read_len -> read_mask ->
// read_payload -> before_frame.
func ReadFrame(r io.Reader) (Frame, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Frame{}, err
	}
	fin := b[0]&0x80 != 0
	op := OpCode(b[0] & 0x0F)
	isMasked := b[1]&0x80 != 0
	length := uint64(b[1] & 0x7F)

	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > MaxFramePayload {
		return Frame{}, ErrFrameTooLarge
	}

	var key [4]byte
	if isMasked {
		if _, err := io.ReadFull(r, key[:]); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	if isMasked {
		mask(payload, key)
	}

	return Frame{Fin: fin, OpCode: op, Payload: payload}, nil
}
