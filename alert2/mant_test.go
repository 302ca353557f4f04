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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRainGaugeWorkedExample(t *testing.T) {
	received := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	report := NewRainGaugeReport(0, 3, []uint8{0, 1, 2})

	payload := BuildMant(received, 1, false, []SensorReport{report})
	pdu, err := DecodeMant(received, payload)
	require.Nil(t, err)
	require.Equal(t, uint8(0), pdu.Values[0].SensorID)
	require.Len(t, pdu.Values, 3)

	wantMagnitudes := []float64{1, 2, 3}
	wantOffsets := []time.Duration{2 * time.Second, 1 * time.Second, 0}
	for i, v := range pdu.Values {
		require.Equal(t, wantMagnitudes[i], v.Magnitude)
		require.Equal(t, wantOffsets[i], v.TimeOffset)
	}
}

func TestGeneralReportRoundTrip(t *testing.T) {
	received := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	values := []SensorValue{
		{SensorID: 4, Type: NumSigned, Magnitude: -17},
		{SensorID: 5, Type: NumFloat, Magnitude: 98.6},
	}
	payload := BuildMant(received, 2, false, []SensorReport{NewGeneralReport(values)})

	pdu, err := DecodeMant(received, payload)
	require.Nil(t, err)
	require.Len(t, pdu.Values, 2)
	require.Equal(t, uint8(4), pdu.Values[0].SensorID)
	require.InDelta(t, -17, pdu.Values[0].Magnitude, 0.001)
	require.Equal(t, uint8(5), pdu.Values[1].SensorID)
	require.InDelta(t, 98.6, pdu.Values[1].Magnitude, 0.01)
}

func TestSnapToBoundaryCorrectsBackwards(t *testing.T) {
	// Received just after noon; a seconds-since-boundary value that would
	// land after the received time must be corrected back 12h.
	received := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	got := snapToBoundary(received, 6*3600) // 6h past noon boundary -> 18:00, after received
	require.True(t, got.Before(received))
}

func TestTimeSeriesOrdering(t *testing.T) {
	received := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	values := []SensorValue{
		{SensorID: 9, Type: NumUnsigned, Magnitude: 10},
		{SensorID: 9, Type: NumUnsigned, Magnitude: 11},
		{SensorID: 9, Type: NumUnsigned, Magnitude: 12},
	}
	body := encodeTimeSeries(values)
	out, err := decodeTimeSeries(body, received)
	require.Nil(t, err)
	require.Len(t, out, 3)
	require.Equal(t, time.Duration(0), out[2].TimeOffset)
	require.True(t, out[0].TimeOffset > out[1].TimeOffset)
}
