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
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
)

// sig16 is the running 16-bit signature used to detect tampering or
// desynchronisation of the tunnel: the same reflected CRC-16 (poly 0xA001)
// the PakBus serial link uses for its own frame signature in
// pakbus/framing.go, computed over the plaintext before encryption and
// verified after decryption.
func sig16(plain []byte) uint16 {
	var crc uint16
	for _, b := range plain {
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

// pad16 applies PKCS#7 padding to a 16-byte block size, as AES-128-CBC
// requires.
func pad16(plain []byte) []byte {
	padLen := 16 - (len(plain) % 16)
	out := make([]byte, len(plain)+padLen)
	copy(out, plain)
	for i := len(plain); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

func unpad16(padded []byte) ([]byte, bool) {
	if len(padded) == 0 || len(padded)%16 != 0 {
		return nil, false
	}
	padLen := int(padded[len(padded)-1])
	if padLen == 0 || padLen > 16 || padLen > len(padded) {
		return nil, false
	}
	return padded[:len(padded)-padLen], true
}

// deriveKey turns the tunnel password into the 16-byte AES key, following
// section 4.D: key = MD5(password).
func deriveKey(password string) [16]byte {
	return md5.Sum([]byte(password))
}

// deriveIV turns the 14-byte forward header into the CBC initialization
// vector: IV = MD5(header14).
func deriveIV(header14 []byte) [16]byte {
	return md5.Sum(header14)
}

// encryptCBC encrypts padded plaintext (already a multiple of 16 bytes)
// with AES-128 in CBC mode under key/iv.
func encryptCBC(key, iv [16]byte, padded []byte) []byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic("proxy: invalid AES-128 key length")
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
	return out
}

// decryptCBC reverses encryptCBC.
func decryptCBC(key, iv [16]byte, ciphertext []byte) ([]byte, bool) {
	if len(ciphertext)%16 != 0 {
		return nil, false
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, false
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, ciphertext)
	return out, true
}
