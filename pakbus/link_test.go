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

package pakbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/pakbus"
	"github.com/lnetcore/corelink/timer"
)

type fakePort struct {
	frames [][]byte
}

func (f *fakePort) WriteFrame(frame []byte) error {
	f.frames = append(f.frames, frame)
	return nil
}

func TestLinkRingsThenBecomesReadyAndSends(t *testing.T) {
	port := &fakePort{}
	loop := timer.NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	var link *pakbus.Link
	done := make(chan struct{})
	loop.Post(func() {
		link = pakbus.NewLink(loop, port, 0x0A, time.Second, nil)
		link.Send([]byte("hello"), false)
		close(done)
	})
	<-done

	require.Eventually(t, func() bool {
		return len(port.frames) >= 1
	}, time.Second, time.Millisecond)

	ready := make(chan struct{})
	loop.Post(func() {
		require.Equal(t, pakbus.StateRinging, link.State())
		link.OnPeerReady()
		close(ready)
	})
	<-ready

	require.Eventually(t, func() bool {
		return len(port.frames) >= 2
	}, time.Second, time.Millisecond)

	state := make(chan pakbus.LinkState, 1)
	loop.Post(func() { state <- link.State() })
	require.Equal(t, pakbus.StateReady, <-state)
}

func TestLinkExpectMoreSessionTracking(t *testing.T) {
	port := &fakePort{}
	loop := timer.NewLoop(nil)
	link := pakbus.NewLink(loop, port, 0x0A, time.Second, nil)

	require.False(t, link.HasSession(1, 2))
	link.MarkExpectMore(1, 2, true)
	require.True(t, link.HasSession(1, 2))
	link.MarkExpectMore(1, 2, false)
	require.False(t, link.HasSession(1, 2))
}
