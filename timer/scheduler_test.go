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

package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextFireTimeBaseZeroIgnorePastFalse(t *testing.T) {
	// Boundary behaviour from section 8: base=0, interval=i, ignore_past=false
	// fires first at ceil(now/i)*i.
	base := time.Unix(0, 0)
	now := base.Add(2500 * time.Millisecond)
	got := nextFireTime(now, base, time.Second, false)
	require.Equal(t, base.Add(3*time.Second), got)
}

func TestNextFireTimeIgnorePastAddsInterval(t *testing.T) {
	base := time.Unix(0, 0)
	now := base.Add(2500 * time.Millisecond)
	withoutIgnore := nextFireTime(now, base, time.Second, false)
	withIgnore := nextFireTime(now, base, time.Second, true)
	require.Equal(t, withoutIgnore.Add(time.Second), withIgnore)
}

func TestSchedulerFiresAndAdvancesNextTime(t *testing.T) {
	cur := time.Unix(1000, 0)
	loop := NewLoop(func() time.Time { return cur })
	sch := NewScheduler(loop)

	fired := make(chan time.Time, 8)
	client := &fakeClient{fired: fired}

	sch.Start(client, cur, time.Second, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Close()

	for i := 0; i < 3; i++ {
		cur = cur.Add(time.Second)
		loop.Post(func() {})
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for scheduled firing")
		}
	}
}

func TestSchedulerRebasesOnClockRegression(t *testing.T) {
	cur := time.Unix(10_000, 0)
	loop := NewLoop(func() time.Time { return cur })
	sch := NewScheduler(loop)

	rebased := make(chan time.Duration, 1)
	client := &fakeClient{fired: make(chan time.Time, 8), rebased: rebased}
	sch.Start(client, cur, time.Minute, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	defer loop.Close()

	// Jump the clock backwards by more than RegressionThreshold and let the
	// loop's maintenance pass observe it directly (bypassing the real ticker
	// interval so the test stays fast).
	cur = cur.Add(-10 * time.Minute)
	loop.Post(func() { loop.checkRegression() })

	select {
	case shift := <-rebased:
		require.GreaterOrEqual(t, shift, 10*time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for clock regression callback")
	}
}

type fakeClient struct {
	fired   chan time.Time
	rebased chan time.Duration
}

func (f *fakeClient) OnScheduledFiring(id SchedID, when time.Time) { f.fired <- when }
func (f *fakeClient) OnClockRebase(id SchedID, shift time.Duration) {
	if f.rebased != nil {
		f.rebased <- shift
	}
}
