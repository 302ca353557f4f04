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

package pakbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bodies := [][]byte{
		{0x01, 0x02, 0x03},
		{},
		{FrameDelim, Escape, FrameDelim, Escape},
		make([]byte, 300),
	}
	for _, body := range bodies {
		frame := EncodeFrame(body)
		dec := NewStreamDecoder()
		var got []byte
		var ok bool
		for _, b := range frame {
			if out, complete := dec.Feed(b); complete {
				got, ok = out, true
			}
		}
		require.True(t, ok)
		require.Equal(t, body, got)
	}
}

func TestStreamDecoderIgnoresIdlePadding(t *testing.T) {
	dec := NewStreamDecoder()
	frame := EncodeFrame([]byte{0x42})

	padded := append([]byte{FrameDelim, FrameDelim, FrameDelim}, frame...)
	padded = append(padded, FrameDelim, FrameDelim)

	var results [][]byte
	for _, b := range padded {
		if out, complete := dec.Feed(b); complete {
			results = append(results, out)
		}
	}
	require.Len(t, results, 1)
	require.Equal(t, []byte{0x42}, results[0])
}

func TestStreamDecoderDropsCorruptFrame(t *testing.T) {
	dec := NewStreamDecoder()
	frame := EncodeFrame([]byte{0x01, 0x02, 0x03})
	frame[2] ^= 0xFF // corrupt a body byte after the opening delimiter

	var sawComplete bool
	for _, b := range frame {
		if _, complete := dec.Feed(b); complete {
			sawComplete = true
		}
	}
	require.False(t, sawComplete)
}

func TestCRC16ResidueIsZero(t *testing.T) {
	body := []byte("pakbus")
	crc := crc16(body)
	withCRC := append(append([]byte{}, body...), byte(crc), byte(crc>>8))
	require.Equal(t, uint16(0), crc16(withCRC))
}
