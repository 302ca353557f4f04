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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/messaging"
)

func TestCollectorCountsRouterActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SessionOpened()
	c.SessionOpened()
	c.SessionClosed(messaging.ReasonHeartbeat)
	c.MessageDispatched()
	c.OrphanRejected()

	require.Equal(t, float64(2), testutil.ToFloat64(c.sessionsOpened))
	require.Equal(t, float64(1), testutil.ToFloat64(c.messagesRouted))
	require.Equal(t, float64(1), testutil.ToFloat64(c.orphansRejected))
	require.Equal(t, float64(1), testutil.ToFloat64(c.sessionsClosed.WithLabelValues("heartbeat")))
}

func TestCollectorCountsSchedulerActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Fired(1)
	c.Fired(2)
	c.ClockRebased(3 * time.Second)

	require.Equal(t, float64(2), testutil.ToFloat64(c.scheduleFirings))
	require.Equal(t, float64(1), testutil.ToFloat64(c.clockRebases))
}

func TestCollectorCountsTransportActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.BytesSent(10)
	c.BytesSent(5)
	c.BytesReceived(7)
	c.ConnectionClosed(messaging.CloseRemoteDisconnect)

	require.Equal(t, float64(15), testutil.ToFloat64(c.bytesSent))
	require.Equal(t, float64(7), testutil.ToFloat64(c.bytesReceived))
	require.Equal(t, float64(1), testutil.ToFloat64(c.connectionsClosed.WithLabelValues("remote_disconnect")))
}

func TestCollectorRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = New(reg)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
