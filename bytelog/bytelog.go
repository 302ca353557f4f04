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

package bytelog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Direction marks which way bytes travelled on the transport.
type Direction uint8

const (
	DirectionRx Direction = iota
	DirectionTx
)

func (d Direction) String() string {
	if d == DirectionTx {
		return "tx"
	}
	return "rx"
}

// RotatePolicy bounds how large or how old a bale may get before rotation.
type RotatePolicy struct {
	MaxBytes int64
	MaxAge   time.Duration
}

// Log is a rotated, directional byte recorder. Concatenating all bales it
// has produced, in chronological order, reproduces exactly the byte stream
// written for each direction (the round-trip invariant of section 8).
type Log struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	policy   RotatePolicy
	now      func() time.Time
	compress bool

	cur       *os.File
	curOpened time.Time
	curBytes  int64
	seq       int
}

// New opens (creating dir if needed) a Log writing bales named
// "<prefix>-<seq>.log[.gz]" under dir.
func New(dir, prefix string, policy RotatePolicy, compress bool) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	l := &Log{dir: dir, prefix: prefix, policy: policy, now: time.Now, compress: compress}
	if err := l.roll(); err != nil {
		return nil, err
	}
	return l, nil
}

// Write records n bytes travelling in direction dir at the log's current
// time. It never fails the caller's I/O: a write or rotation error here is
// discarded without being reported, since the byte log is diagnostic only
// and must never break the transport it observes.
func (l *Log) Write(dir Direction, p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.needsRotation(len(p)) {
		_ = l.roll()
	}

	ts := l.now()
	header := fmt.Sprintf("%s %s %d\n", ts.Format("2006-01-02 15:04:05.000"), dir, len(p))
	n, _ := io.WriteString(l.cur, header)
	l.curBytes += int64(n)

	m, _ := l.cur.Write(p)
	l.curBytes += int64(m)
}

func (l *Log) needsRotation(nextWrite int) bool {
	if l.cur == nil {
		return true
	}
	if l.policy.MaxBytes > 0 && l.curBytes+int64(nextWrite) > l.policy.MaxBytes {
		return true
	}
	if l.policy.MaxAge > 0 && l.now().Sub(l.curOpened) > l.policy.MaxAge {
		return true
	}
	return false
}

// roll closes the current bale (compressing it if configured) and opens a
// fresh one, writing the "New File" header line time-based rotation emits.
func (l *Log) roll() error {
	if l.cur != nil {
		name := l.cur.Name()
		_ = l.cur.Close()
		if l.compress {
			if err := gzipInPlace(name); err != nil {
				return err
			}
		}
	}

	l.seq++
	ext := ".log"
	name := filepath.Join(l.dir, fmt.Sprintf("%s-%04d%s", l.prefix, l.seq, ext))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	l.cur = f
	l.curOpened = l.now()
	l.curBytes = 0

	header := fmt.Sprintf("New File: %s\n", l.curOpened.Format("2006-01-02 15:04:05.000"))
	n, _ := io.WriteString(l.cur, header)
	l.curBytes += int64(n)
	return nil
}

// Close flushes and closes the current bale.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur == nil {
		return nil
	}
	name := l.cur.Name()
	err := l.cur.Close()
	l.cur = nil
	if err == nil && l.compress {
		return gzipInPlace(name)
	}
	return err
}

func gzipInPlace(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
