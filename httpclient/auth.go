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

package httpclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// BasicAuth implements the "Authorization: Basic" strategy of section 4.I.
type BasicAuth struct {
	User     string
	Password string
}

func (b *BasicAuth) WriteHeaders(hdr *textproto.MIMEHeader, _ *Request) {
	token := base64.StdEncoding.EncodeToString([]byte(b.User + ":" + b.Password))
	hdr.Set("Authorization", "Basic "+token)
}

// BearerAuth implements the "Authorization: Bearer" strategy.
type BearerAuth struct {
	Token string
}

func (b *BearerAuth) WriteHeaders(hdr *textproto.MIMEHeader, _ *Request) {
	hdr.Set("Authorization", "Bearer "+b.Token)
}

// KDAPIAuth implements the Konect device API signing scheme: an HMAC-SHA256
// signature over (device_id, message-type, body, nonce, timestamp, secret),
// written as separate headers rather than a single Authorization line, per
// section 4.I.
type KDAPIAuth struct {
	DeviceID    string
	MessageType string
	Secret      string

	nowFn func() time.Time
}

func (k *KDAPIAuth) WriteHeaders(hdr *textproto.MIMEHeader, req *Request) {
	now := time.Now
	if k.nowFn != nil {
		now = k.nowFn
	}
	ts := strconv.FormatInt(now().Unix(), 10)
	nonce := uuid.NewString()

	mac := hmac.New(sha256.New, []byte(k.Secret))
	mac.Write([]byte(k.DeviceID))
	mac.Write([]byte(k.MessageType))
	mac.Write(req.Body.Bytes())
	mac.Write([]byte(nonce))
	mac.Write([]byte(ts))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	hdr.Set("X-Kdapi-Device-Id", k.DeviceID)
	hdr.Set("X-Kdapi-Timestamp", ts)
	hdr.Set("X-Kdapi-Nonce", nonce)
	hdr.Set("X-Kdapi-Signature", sig)
}
