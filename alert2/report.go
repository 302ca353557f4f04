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
	"time"

	"github.com/lnetcore/corelink/errs"
)

// ReportType is the first byte of a sensor report: section 4.J's table of
// general / rain-gauge / multi-sensor / measurement-suite / time-series /
// concentration report kinds.
type ReportType uint8

const (
	ReportConcentration    ReportType = 0
	ReportGeneral          ReportType = 1
	ReportRainGauge        ReportType = 2
	ReportMultiEnglish     ReportType = 3
	ReportMultiMetric      ReportType = 4
	ReportMeasurementSuite ReportType = 5
	ReportTimeSeries       ReportType = 7
)

// canonicalSensorIDs is the fixed order multi-sensor english/metric reports
// present their flag-selected values in (section 4.J: "flag byte selects
// presence of 8 canonical sensors"). corelink assigns ids 0-7 to this fixed
// order; see DESIGN.md. The report decoder does not consult this table.
var canonicalSensorIDs = [8]uint8{0, 1, 2, 3, 4, 5, 6, 7}

// SensorReport is one pending report to be encoded by BuildMant, or the
// in-memory result of decoding one.
type SensorReport struct {
	Type   ReportType
	Values []SensorValue

	// RainGauge-only fields, populated by NewRainGaugeReport.
	sensorID    uint8
	accumulator uint64
	tipSeconds  []uint8

	// General/MultiSensor raw encode path.
	generalFL FL
}

// NewGeneralReport builds a type-1 general report from explicit sensor
// values (callers set Type on each SensorValue; the encoded byte width is 4
// for NumFloat and 2 for the integer types).
func NewGeneralReport(values []SensorValue) SensorReport {
	return SensorReport{Type: ReportGeneral, Values: values}
}

// NewRainGaugeReport builds a type-2 rain-gauge report: sensorID, an
// accumulator total, and tipSeconds — seconds-ago of each tip, newest tip
// (smallest seconds-ago) first in the slice; the slice is written to the
// wire in this order. Decoding reverses it, so ascending seconds-ago input
// yields descending time offsets paired with an ascending 1-based tip
// count, matching the example in section 8.
func NewRainGaugeReport(sensorID uint8, accumulator uint64, tipSeconds []uint8) SensorReport {
	return SensorReport{Type: ReportRainGauge, sensorID: sensorID, accumulator: accumulator, tipSeconds: tipSeconds}
}

func (r SensorReport) encode() []byte {
	var body []byte
	switch r.Type {
	case ReportRainGauge:
		fl := FL{Type: NumUnsigned, Len: accumulatorWidth(r.accumulator)}
		body = append(body, r.sensorID, fl.encode())
		body = append(body, encodeMagnitude(fl, float64(r.accumulator))...)
		body = append(body, uint8(len(r.tipSeconds)))
		body = append(body, r.tipSeconds...)
	case ReportGeneral, ReportMultiEnglish, ReportMultiMetric:
		for _, v := range r.Values {
			fl := FL{Type: v.Type, Len: defaultWidth(v.Type)}
			body = append(body, v.SensorID, fl.encode())
			body = append(body, encodeMagnitude(fl, v.Magnitude)...)
		}
	case ReportTimeSeries:
		body = encodeTimeSeries(r.Values)
	default:
		// Concentration and measurement-suite reports are handled by their
		// own dedicated decoders elsewhere; encode() is only exercised by
		// BuildMant's round-trip tests for the types above.
	}

	lenByte := encodeReportLen(len(body))
	out := []byte{byte(r.Type)}
	out = append(out, lenByte...)
	out = append(out, body...)
	return out
}

func accumulatorWidth(v uint64) uint8 {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	default:
		return 4
	}
}

func defaultWidth(t NumericType) uint8 {
	if t == NumFloat {
		return 4
	}
	return 2
}

// encodeReportLen implements the len field's high-bit extension rule:
// lengths under 128 fit in one byte; otherwise two bytes carry a 15-bit
// value with the top bit of the first byte set.
func encodeReportLen(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	return []byte{byte(0x80 | (n >> 8)), byte(n)}
}

func decodeReportLen(buf []byte) (int, int, errs.Error) {
	if len(buf) < 1 {
		return 0, 0, errs.New(errs.ClassParse, 0, "alert2: missing report length byte", nil)
	}
	if buf[0]&0x80 == 0 {
		return int(buf[0]), 1, nil
	}
	if len(buf) < 2 {
		return 0, 0, errs.New(errs.ClassParse, 0, "alert2: truncated extended report length", nil)
	}
	n := (int(buf[0]&0x7F) << 8) | int(buf[1])
	return n, 2, nil
}

// decodeSensorReports walks a sequence of {type, len, body} reports to end
// of buf, producing the flattened SensorValue list each report yields.
func decodeSensorReports(buf []byte, pduTime time.Time) ([]SensorValue, errs.Error) {
	var out []SensorValue
	pos := 0
	for pos < len(buf) {
		rt := ReportType(buf[pos])
		pos++
		n, consumed, perr := decodeReportLen(buf[pos:])
		if perr != nil {
			return nil, perr
		}
		pos += consumed
		if pos+n > len(buf) {
			return nil, errs.New(errs.ClassParse, 0, "alert2: report body runs past end of PDU", nil)
		}
		body := buf[pos : pos+n]
		pos += n

		values, perr := decodeOneReport(rt, body, pduTime)
		if perr != nil {
			return nil, perr
		}
		out = append(out, values...)
	}
	return out, nil
}

func decodeOneReport(rt ReportType, body []byte, pduTime time.Time) ([]SensorValue, errs.Error) {
	switch rt {
	case ReportGeneral, ReportMultiEnglish, ReportMultiMetric:
		return decodeGeneralValues(body, pduTime)
	case ReportRainGauge:
		return decodeRainGauge(body, pduTime)
	case ReportTimeSeries:
		return decodeTimeSeries(body, pduTime)
	case ReportMeasurementSuite:
		return nil, nil // reserved, per section 4.J's table
	case ReportConcentration:
		return decodeConcentration(body, pduTime)
	default:
		return nil, errs.New(errs.ClassParse, 0, "alert2: unknown report type", nil)
	}
}

// decodeGeneralValues parses a flat {sensor_id, FL, value}* sequence, used
// by type 1 (general) and, with the same flat layout, by types 3/4
// (multi-sensor): no flag byte is read for types 3/4 and canonical sensor
// ids are not assigned. Every value carries TimeOffset 0 (all
// general-report values are contemporaneous with the PDU).
func decodeGeneralValues(body []byte, pduTime time.Time) ([]SensorValue, errs.Error) {
	var out []SensorValue
	pos := 0
	for pos < len(body) {
		if pos+2 > len(body) {
			return nil, errs.New(errs.ClassParse, 0, "alert2: truncated general sensor entry", nil)
		}
		sensorID := body[pos]
		fl := decodeFL(body[pos+1])
		pos += 2
		if pos+int(fl.Len) > len(body) {
			return nil, errs.New(errs.ClassParse, 0, "alert2: truncated general sensor value", nil)
		}
		mag, perr := decodeMagnitude(fl, body[pos:pos+int(fl.Len)])
		if perr != nil {
			return nil, perr
		}
		pos += int(fl.Len)
		out = append(out, SensorValue{SensorID: sensorID, Type: fl.Type, Magnitude: mag, TimeOffset: 0})
	}
	_ = pduTime
	return out, nil
}

func decodeRainGauge(body []byte, _ time.Time) ([]SensorValue, errs.Error) {
	if len(body) < 3 {
		return nil, errs.New(errs.ClassParse, 0, "alert2: truncated rain gauge header", nil)
	}
	sensorID := body[0]
	fl := decodeFL(body[1])
	pos := 2
	if pos+int(fl.Len) > len(body) {
		return nil, errs.New(errs.ClassParse, 0, "alert2: truncated rain gauge accumulator", nil)
	}
	pos += int(fl.Len)
	if pos >= len(body) {
		return nil, errs.New(errs.ClassParse, 0, "alert2: missing rain gauge tip count", nil)
	}
	tipCount := int(body[pos])
	pos++
	if pos+tipCount > len(body) {
		return nil, errs.New(errs.ClassParse, 0, "alert2: truncated rain gauge tip offsets", nil)
	}
	tips := body[pos : pos+tipCount]

	out := make([]SensorValue, tipCount)
	for i := 0; i < tipCount; i++ {
		out[i] = SensorValue{
			SensorID:   sensorID,
			Type:       NumUnsigned,
			Magnitude:  float64(i + 1),
			TimeOffset: time.Duration(tips[tipCount-1-i]) * time.Second,
		}
	}
	return out, nil
}

// encodeTimeSeries and decodeTimeSeries implement type 7: an optional posix
// timestamp prologue flag byte, sensor id, a packed interval byte (2-bit
// unit + 6-bit value), an FL byte, then N packed values oldest-first,
// newest-last (section 4.J).
type timeSeriesUnit uint8

const (
	unitSeconds timeSeriesUnit = 0
	unitMinutes timeSeriesUnit = 1
	unitHours   timeSeriesUnit = 2
	unitDays    timeSeriesUnit = 3
)

func unitDuration(u timeSeriesUnit) time.Duration {
	switch u {
	case unitMinutes:
		return time.Minute
	case unitHours:
		return time.Hour
	case unitDays:
		return 24 * time.Hour
	default:
		return time.Second
	}
}

func encodeTimeSeries(values []SensorValue) []byte {
	if len(values) == 0 {
		return nil
	}
	sensorID := values[0].SensorID
	fl := FL{Type: values[0].Type, Len: defaultWidth(values[0].Type)}

	body := []byte{0x00, sensorID, byte(unitSeconds)<<6 | 0x01, fl.encode()}
	for _, v := range values {
		body = append(body, encodeMagnitude(fl, v.Magnitude)...)
	}
	return body
}

func decodeTimeSeries(body []byte, pduTime time.Time) ([]SensorValue, errs.Error) {
	if len(body) < 1 {
		return nil, errs.New(errs.ClassParse, 0, "alert2: empty time series body", nil)
	}
	pos := 0
	hasPrologue := body[pos] != 0
	pos++
	if hasPrologue {
		if pos+4 > len(body) {
			return nil, errs.New(errs.ClassParse, 0, "alert2: truncated time series prologue", nil)
		}
		pos += 4
	}
	if pos+3 > len(body) {
		return nil, errs.New(errs.ClassParse, 0, "alert2: truncated time series header", nil)
	}
	sensorID := body[pos]
	pos++
	interval := body[pos]
	pos++
	unit := timeSeriesUnit(interval >> 6)
	step := int(interval & 0x3F)
	fl := decodeFL(body[pos])
	pos++

	var out []SensorValue
	idx := 0
	for pos+int(fl.Len) <= len(body) {
		mag, perr := decodeMagnitude(fl, body[pos:pos+int(fl.Len)])
		if perr != nil {
			return nil, perr
		}
		pos += int(fl.Len)
		out = append(out, SensorValue{SensorID: sensorID, Type: fl.Type, Magnitude: mag})
		idx++
	}
	// Oldest first, newest last on the wire: the last decoded value is
	// contemporaneous with the PDU (offset 0), each prior one step*unit
	// further back.
	n := len(out)
	for i := range out {
		stepsBack := n - 1 - i
		out[i].TimeOffset = time.Duration(stepsBack*step) * unitDuration(unit)
	}
	_ = pduTime
	return out, nil
}

// decodeConcentration parses a type-0 concentration report: a fixed 4-byte
// encoding per sensor value (section 3's "Concentration PDU" glossary
// entry) — a sensor id byte followed by a 3-byte big-endian unsigned
// magnitude, repeated to the end of the body.
func decodeConcentration(body []byte, _ time.Time) ([]SensorValue, errs.Error) {
	var out []SensorValue
	pos := 0
	for pos+4 <= len(body) {
		sensorID := body[pos]
		mag := uint32(body[pos+1])<<16 | uint32(body[pos+2])<<8 | uint32(body[pos+3])
		out = append(out, SensorValue{SensorID: sensorID, Type: NumUnsigned, Magnitude: float64(mag)})
		pos += 4
	}
	if pos != len(body) {
		return nil, errs.New(errs.ClassParse, 0, "alert2: concentration body not a multiple of 4 bytes", nil)
	}
	return out, nil
}
