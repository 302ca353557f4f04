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

package websocket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		op      OpCode
		payload []byte
		masked  bool
	}{
		{"empty-text", OpText, nil, true},
		{"small-binary", OpBinary, []byte("hello"), true},
		{"unmasked-server", OpText, []byte("server frame"), false},
		{"exactly-126", OpBinary, bytes.Repeat([]byte{0xAB}, 126), true},
		{"extended-64", OpBinary, bytes.Repeat([]byte{0x01}, 70000), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteFrame(&buf, tc.op, tc.payload, tc.masked))
			fr, err := ReadFrame(&buf)
			require.NoError(t, err)
			require.True(t, fr.Fin)
			require.Equal(t, tc.op, fr.OpCode)
			require.Equal(t, tc.payload, fr.Payload)
		})
	}
}

func TestAcceptForKnownVector(t *testing.T) {
	// The canonical example from RFC 6455 section 1.3.
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptFor("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestMaskUnmaskRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, OpBinary, payload, true))
	fr, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, fr.Payload)
}
