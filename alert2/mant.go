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

package alert2

import (
	"encoding/binary"
	"time"

	"github.com/lnetcore/corelink/errs"
)

// MantPDU is a decoded MANT (medium access layer) PDU: the control byte
// fields plus the zero-or-more sensor reports it carries, per section 4.J.
type MantPDU struct {
	Version    uint8
	FromTest   bool
	ApduID     uint8
	PDUTime    time.Time
	Values     []SensorValue
}

// control byte layout: bit7-6 version, bit5 timestamp-present, bit4
// from-test, bit3-1 apdu-id, bit0 extended. This concrete bit assignment is
// corelink's own choice (spec.md names the fields but not their bit
// positions); see DESIGN.md.
func decodeControl(b byte) (version uint8, tsPresent, fromTest bool, apduID uint8, extended bool) {
	version = (b >> 6) & 0x03
	tsPresent = b&0x20 != 0
	fromTest = b&0x10 != 0
	apduID = (b >> 1) & 0x07
	extended = b&0x01 != 0
	return
}

func encodeControl(version uint8, tsPresent, fromTest bool, apduID uint8, extended bool) byte {
	var b byte
	b |= (version & 0x03) << 6
	if tsPresent {
		b |= 0x20
	}
	if fromTest {
		b |= 0x10
	}
	b |= (apduID & 0x07) << 1
	if extended {
		b |= 0x01
	}
	return b
}

// snapToBoundary implements section 4.J's timestamp recovery: the two-byte
// payload is seconds since the most recent noon or midnight; the effective
// time is the received time snapped to that boundary and offset forward,
// corrected backward by 12h if the result would be after the received time.
func snapToBoundary(received time.Time, secondsSinceBoundary uint16) time.Time {
	recUTC := received.UTC()
	midnight := time.Date(recUTC.Year(), recUTC.Month(), recUTC.Day(), 0, 0, 0, 0, time.UTC)
	noon := midnight.Add(12 * time.Hour)

	var boundary time.Time
	if recUTC.Before(noon) {
		boundary = midnight
	} else {
		boundary = noon
	}

	candidate := boundary.Add(time.Duration(secondsSinceBoundary) * time.Second)
	if candidate.After(received) {
		candidate = candidate.Add(-12 * time.Hour)
	}
	return candidate
}

// secondsSinceBoundary is the inverse of snapToBoundary's boundary
// selection, used when building test PDUs.
func secondsSinceBoundary(t time.Time) uint16 {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	noon := midnight.Add(12 * time.Hour)
	boundary := midnight
	if u.After(noon) || u.Equal(noon) {
		boundary = noon
	}
	return uint16(u.Sub(boundary) / time.Second)
}

// DecodeMant parses a MANT PDU payload given the time it was received.
func DecodeMant(received time.Time, payload []byte) (*MantPDU, errs.Error) {
	if len(payload) < 1 {
		return nil, errs.New(errs.ClassParse, 0, "alert2: empty MANT payload", nil)
	}
	pos := 0
	version, tsPresent, fromTest, apduID, extended := decodeControl(payload[pos])
	pos++
	if version != 0 {
		return nil, errs.New(errs.ClassParse, 0, "alert2: unsupported MANT version", nil)
	}
	if extended {
		if pos >= len(payload) {
			return nil, errs.New(errs.ClassParse, 0, "alert2: truncated extended control byte", nil)
		}
		pos++
	}

	pduTime := received
	if tsPresent {
		if pos+2 > len(payload) {
			return nil, errs.New(errs.ClassParse, 0, "alert2: truncated MANT timestamp", nil)
		}
		secs := binary.BigEndian.Uint16(payload[pos : pos+2])
		pos += 2
		pduTime = snapToBoundary(received, secs)
	}

	values, perr := decodeSensorReports(payload[pos:], pduTime)
	if perr != nil {
		return nil, perr
	}

	return &MantPDU{
		Version:  version,
		FromTest: fromTest,
		ApduID:   apduID,
		PDUTime:  pduTime,
		Values:   values,
	}, nil
}

// BuildMant encodes a MantPDU back to its wire payload, for round-trip
// tests and for a future MANT-speaking data source.
func BuildMant(received time.Time, apduID uint8, fromTest bool, reports []SensorReport) []byte {
	buf := []byte{encodeControl(0, true, fromTest, apduID, false)}
	var ts [2]byte
	binary.BigEndian.PutUint16(ts[:], secondsSinceBoundary(received))
	buf = append(buf, ts[:]...)
	for _, r := range reports {
		buf = append(buf, r.encode()...)
	}
	return buf
}
