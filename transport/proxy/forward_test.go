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

package proxy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardRoundTrip(t *testing.T) {
	key := deriveKey("s3cr3t")
	plain := []byte("a fully framed inner message payload")

	body := encodeForward(key, 77, plain)
	vcid, decoded, ok := decodeForward(key, body)

	require.True(t, ok)
	require.Equal(t, uint32(77), vcid)
	require.Equal(t, plain, decoded)
}

func TestForwardDetectsTamper(t *testing.T) {
	key := deriveKey("s3cr3t")
	body := encodeForward(key, 1, []byte("hello"))

	body[len(body)-1] ^= 0xFF

	_, _, ok := decodeForward(key, body)
	require.False(t, ok)
}

func TestForwardWrongKeyFails(t *testing.T) {
	body := encodeForward(deriveKey("right"), 1, []byte("hello"))
	_, _, ok := decodeForward(deriveKey("wrong"), body)
	require.False(t, ok)
}

func TestPad16RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32} {
		plain := make([]byte, n)
		for i := range plain {
			plain[i] = byte(i)
		}
		padded := pad16(plain)
		require.Equal(t, 0, len(padded)%16)
		unpadded, ok := unpad16(padded)
		require.True(t, ok)
		require.Equal(t, plain, unpadded)
	}
}
