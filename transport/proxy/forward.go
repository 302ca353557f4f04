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
	"encoding/binary"

	"github.com/lnetcore/corelink/errs"
)

// forwardHeaderLen is the fixed 14-byte header whose MD5 seeds the CBC IV
// for that frame (section 4.D). Chosen layout: virtual_conn_id(4) |
// cipher(1) | reserved(1) | original_len(4) | sig16(2) | reserved(2).
const forwardHeaderLen = 14

const cipherAES128CBC = 1

// encodeForward builds the wire body of a forward_cmd carrying plain on
// behalf of virtualConnID, encrypted under key.
func encodeForward(key [16]byte, virtualConnID uint32, plain []byte) []byte {
	sig := sig16(plain)

	header := make([]byte, forwardHeaderLen)
	binary.BigEndian.PutUint32(header[0:4], virtualConnID)
	header[4] = cipherAES128CBC
	header[5] = 0
	binary.BigEndian.PutUint32(header[6:10], uint32(len(plain)))
	binary.BigEndian.PutUint16(header[10:12], sig)
	header[12], header[13] = 0, 0

	iv := deriveIV(header)
	padded := pad16(plain)
	ciphertext := encryptCBC(key, iv, padded)

	out := make([]byte, 0, forwardHeaderLen+len(ciphertext))
	out = append(out, header...)
	out = append(out, ciphertext...)
	return out
}

// decodeForward reverses encodeForward, rejecting the frame on any
// signature mismatch so a corrupted or desynchronised tunnel is dropped
// immediately rather than delivering garbage (section 4.D: "drops the
// frame (and the tunnel) on mismatch").
func decodeForward(key [16]byte, body []byte) (virtualConnID uint32, plain []byte, ok bool) {
	if len(body) < forwardHeaderLen {
		return 0, nil, false
	}
	header := body[:forwardHeaderLen]
	ciphertext := body[forwardHeaderLen:]

	virtualConnID = binary.BigEndian.Uint32(header[0:4])
	if header[4] != cipherAES128CBC {
		return 0, nil, false
	}
	originalLen := binary.BigEndian.Uint32(header[6:10])
	wantSig := binary.BigEndian.Uint16(header[10:12])

	iv := deriveIV(header)
	padded, ok := decryptCBC(key, iv, ciphertext)
	if !ok {
		return 0, nil, false
	}
	unpadded, ok := unpad16(padded)
	if !ok || uint32(len(unpadded)) != originalLen {
		return 0, nil, false
	}
	if sig16(unpadded) != wantSig {
		return 0, nil, false
	}
	return virtualConnID, unpadded, true
}

// errBadForwardFrame is returned by ProxyConn when decodeForward fails.
var errBadForwardFrame = errs.New(errs.ClassProtocol, 0, "forward_cmd signature mismatch", nil)
