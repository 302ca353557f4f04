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

package datafile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lnetcore/corelink/datasource"
	"github.com/lnetcore/corelink/timer"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	recs [][]*datasource.Record
}

func (c *captureSink) OnSinkReady(*datasource.Request, *datasource.Record) {}
func (c *captureSink) OnSinkFailure(*datasource.Request, datasource.FailureCode) {}
func (c *captureSink) OnSinkRecords(reqs []*datasource.Request, recs []*datasource.Record) {
	c.recs = append(c.recs, recs)
}

const toa5Header = "\"TOA5\",\"station1\",\"CR1000\"\n" +
	"\"TIMESTAMP\",\"RECORD\",\"Temp\",\"RH\"\n" +
	"\"TS\",\"RN\",\"DegC\",\"Percent\"\n" +
	"\"\",\"\",\"Smp\",\"Smp\"\n"

func TestDatafileReplaysExistingRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.dat")
	content := toa5Header +
		"\"2024-01-01 00:00:00\",1,12.5,55\n" +
		"\"2024-01-01 00:05:00\",2,12.7,56\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loop := timer.NewLoop(nil)
	m := datasource.NewManager(nil)
	src := New("dl", "station1", "tbl", path, m, loop, nil)
	m.AddSource(src)
	src.Connect()
	defer src.Disconnect()

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "dl:station1.tbl.Temp")
	m.AddRequest(req, false)

	require.Len(t, sink.recs, 1)
	require.Len(t, sink.recs[0], 2)
	v, ok := sink.recs[0][0].Value("Temp")
	require.True(t, ok)
	require.Equal(t, 12.5, v.AsFloat())
}

func TestDatafileTailsAppendedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.dat")
	content := toa5Header + "\"2024-01-01 00:00:00\",1,12.5,55\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loop := timer.NewLoop(nil)
	m := datasource.NewManager(nil)
	src := New("dl", "station1", "tbl", path, m, loop, nil)
	m.AddSource(src)
	src.Connect()
	defer src.Disconnect()

	sink := &captureSink{}
	req := datasource.NewRequest(sink, "dl:station1.tbl.Temp")
	m.AddRequest(req, false)
	require.Len(t, sink.recs, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go loop.Run(ctx)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("\"2024-01-01 00:05:00\",2,13.1,57\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return len(sink.recs) >= 2
	}, 400*time.Millisecond, 10*time.Millisecond)
}
