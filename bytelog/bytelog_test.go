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

package bytelog_test

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/bytelog"
)

// readDirection replays every bale in dir (uncompressed, for test simplicity)
// and extracts the exact bytes recorded for dir.
func readDirection(t *testing.T, root string, want bytelog.Direction) []byte {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []byte
	for _, n := range names {
		f, err := os.Open(filepath.Join(root, n))
		require.NoError(t, err)
		r := bufio.NewReader(f)
		for {
			line, err := r.ReadString('\n')
			if line == "" && err != nil {
				break
			}
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "New File:") {
				if err != nil {
					break
				}
				continue
			}
			parts := strings.SplitN(line, " ", 4)
			// "2006-01-02 15:04:05.000 dir length"
			if len(parts) < 4 {
				if err != nil {
					break
				}
				continue
			}
			dirTok := parts[2]
			length, convErr := strconv.Atoi(parts[3])
			require.NoError(t, convErr)
			payload := make([]byte, length)
			_, rerr := io.ReadFull(r, payload)
			require.NoError(t, rerr)
			if (dirTok == "tx") == (want == bytelog.DirectionTx) {
				out = append(out, payload...)
			}
			if err != nil {
				break
			}
		}
		f.Close()
	}
	return out
}

func TestRoundTripPerDirection(t *testing.T) {
	dir := t.TempDir()
	lg, err := bytelog.New(dir, "port", bytelog.RotatePolicy{MaxBytes: 1 << 20}, false)
	require.NoError(t, err)

	txWant := []byte("hello-tx")
	rxWant := []byte("hello-rx")

	lg.Write(bytelog.DirectionTx, txWant)
	lg.Write(bytelog.DirectionRx, rxWant)
	require.NoError(t, lg.Close())

	require.Equal(t, txWant, readDirection(t, dir, bytelog.DirectionTx))
	require.Equal(t, rxWant, readDirection(t, dir, bytelog.DirectionRx))
}

func TestRotationBySize(t *testing.T) {
	dir := t.TempDir()
	lg, err := bytelog.New(dir, "port", bytelog.RotatePolicy{MaxBytes: 16}, false)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		lg.Write(bytelog.DirectionTx, []byte("0123456789"))
	}
	require.NoError(t, lg.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Greater(t, len(entries), 1, "expected multiple bales once MaxBytes was exceeded")
}

func TestTimeBasedRotationEmitsNewFileHeader(t *testing.T) {
	dir := t.TempDir()
	lg, err := bytelog.New(dir, "port", bytelog.RotatePolicy{MaxAge: 10 * time.Millisecond}, false)
	require.NoError(t, err)

	lg.Write(bytelog.DirectionTx, []byte("a"))
	time.Sleep(20 * time.Millisecond)
	lg.Write(bytelog.DirectionTx, []byte("b"))
	require.NoError(t, lg.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2)

	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(string(data), "New File:"))
	}
}
