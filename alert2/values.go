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
	"math"
	"time"

	"github.com/lnetcore/corelink/errs"
)

// NumericType is the high nibble of an ALERT2 F/L byte (glossary): the
// numeric format of the value that follows.
type NumericType uint8

const (
	NumUnsigned NumericType = 0
	NumSigned   NumericType = 1
	NumFloat    NumericType = 2
)

// FL packs a NumericType and byte count into the single F/L byte the
// glossary describes: high nibble = type, low nibble = byte count.
type FL struct {
	Type NumericType
	Len  uint8 // 1, 2, 4, or 8
}

func (f FL) encode() byte { return byte(f.Type)<<4 | (f.Len & 0x0F) }

func decodeFL(b byte) FL {
	return FL{Type: NumericType(b >> 4), Len: b & 0x0F}
}

// SensorValue is one decoded (or to-be-encoded) ALERT2 sensor reading:
// sensor id, numeric type, magnitude, and a time offset relative to the
// enclosing PDU's timestamp (section 3's "sensor value" data model).
type SensorValue struct {
	SensorID   uint8
	Type       NumericType
	Magnitude  float64
	TimeOffset time.Duration
}

// encodeMagnitude writes v as an FL-tagged value of fl.Len bytes.
func encodeMagnitude(fl FL, v float64) []byte {
	buf := make([]byte, fl.Len)
	switch fl.Type {
	case NumFloat:
		switch fl.Len {
		case 4:
			binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v)))
		default:
			binary.BigEndian.PutUint64(buf, math.Float64bits(v))
		}
	case NumSigned:
		putInt(buf, int64(v))
	default: // NumUnsigned
		putUint(buf, uint64(v))
	}
	return buf
}

func decodeMagnitude(fl FL, buf []byte) (float64, errs.Error) {
	if len(buf) < int(fl.Len) {
		return 0, errs.New(errs.ClassParse, 0, "alert2: short sensor value payload", nil)
	}
	b := buf[:fl.Len]
	switch fl.Type {
	case NumFloat:
		switch fl.Len {
		case 4:
			return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
		case 8:
			return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
		default:
			return 0, errs.New(errs.ClassParse, 0, "alert2: unsupported float width", nil)
		}
	case NumSigned:
		return float64(getInt(b)), nil
	default:
		return float64(getUint(b)), nil
	}
}

func putUint(buf []byte, v uint64) {
	switch len(buf) {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.BigEndian.PutUint64(buf, v)
	}
}

func getUint(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(buf))
	case 4:
		return uint64(binary.BigEndian.Uint32(buf))
	case 8:
		return binary.BigEndian.Uint64(buf)
	}
	return 0
}

func putInt(buf []byte, v int64) { putUint(buf, uint64(v)) }

func getInt(buf []byte) int64 {
	switch len(buf) {
	case 1:
		return int64(int8(buf[0]))
	case 2:
		return int64(int16(binary.BigEndian.Uint16(buf)))
	case 4:
		return int64(int32(binary.BigEndian.Uint32(buf)))
	case 8:
		return int64(binary.BigEndian.Uint64(buf))
	}
	return 0
}
