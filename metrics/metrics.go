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

// Package metrics collects a Collector satisfying the optional metrics
// hooks exposed by messaging.Router, timer.Scheduler, and transport/tcp.Conn,
// backed by github.com/prometheus/client_golang. Every counter and gauge is
// registered under the "corelink" namespace so a process wiring a Collector
// in exposes router, scheduler, and transport activity on the usual
// /metrics endpoint alongside whatever else the embedding program already
// registers.
//
// None of the components above import this package: each defines its own
// narrow Metrics interface and falls back to a no-op implementation when
// none is set, so wiring a Collector in is additive and optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lnetcore/corelink/messaging"
	"github.com/lnetcore/corelink/timer"
)

const namespace = "corelink"

// Collector implements messaging.Metrics, timer.Metrics, and
// transport/tcp.Metrics against a single set of prometheus collectors.
type Collector struct {
	sessionsOpened   prometheus.Counter
	sessionsClosed   *prometheus.CounterVec
	messagesRouted   prometheus.Counter
	orphansRejected  prometheus.Counter
	scheduleFirings  prometheus.Counter
	clockRebases     prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	connectionsClosed *prometheus.CounterVec
}

// New builds a Collector and registers every metric on reg. Passing
// prometheus.DefaultRegisterer wires it onto the process-wide default
// registry; a program that wants an isolated registry (as in tests) can
// pass a fresh prometheus.NewRegistry() instead.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "sessions_opened_total",
			Help: "Sessions opened by the messaging router.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "sessions_closed_total",
			Help: "Sessions closed by the messaging router, labeled by reason.",
		}, []string{"reason"}),
		messagesRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "messages_dispatched_total",
			Help: "Messages the router delivered to an open session's node.",
		}),
		orphansRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "orphans_rejected_total",
			Help: "Messages the router rejected for not matching an open session.",
		}),
		scheduleFirings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "firings_total",
			Help: "Periodic schedule firings delivered by the scheduler.",
		}),
		clockRebases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "clock_rebases_total",
			Help: "Times the scheduler rebased every active schedule after a clock regression.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "bytes_sent_total",
			Help: "Bytes written to transport connections, including heartbeat frames.",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "bytes_received_total",
			Help: "Bytes read from transport connections, including heartbeat frames.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "connections_closed_total",
			Help: "Transport connections closed, labeled by close reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.sessionsOpened, c.sessionsClosed, c.messagesRouted, c.orphansRejected,
		c.scheduleFirings, c.clockRebases,
		c.bytesSent, c.bytesReceived, c.connectionsClosed,
	)
	return c
}

// messaging.Metrics

func (c *Collector) SessionOpened() { c.sessionsOpened.Inc() }

func (c *Collector) SessionClosed(reason messaging.BrokenReason) {
	c.sessionsClosed.WithLabelValues(brokenReasonLabel(reason)).Inc()
}

func (c *Collector) MessageDispatched() { c.messagesRouted.Inc() }

func (c *Collector) OrphanRejected() { c.orphansRejected.Inc() }

// timer.Metrics

func (c *Collector) Fired(timer.SchedID) { c.scheduleFirings.Inc() }

func (c *Collector) ClockRebased(shift time.Duration) { c.clockRebases.Inc() }

// transport/tcp.Metrics

func (c *Collector) BytesSent(n int) { c.bytesSent.Add(float64(n)) }

func (c *Collector) BytesReceived(n int) { c.bytesReceived.Add(float64(n)) }

func (c *Collector) ConnectionClosed(reason messaging.ConnCloseReason) {
	c.connectionsClosed.WithLabelValues(connCloseReasonLabel(reason)).Inc()
}

func brokenReasonLabel(r messaging.BrokenReason) string {
	switch r {
	case messaging.ReasonUnknown:
		return "unknown"
	case messaging.ReasonRemoteDisconnect:
		return "remote_disconnect"
	case messaging.ReasonHeartbeat:
		return "heartbeat"
	case messaging.ReasonNoObject:
		return "no_object"
	case messaging.ReasonNoResources:
		return "no_resources"
	case messaging.ReasonShutDown:
		return "shutdown"
	case messaging.ReasonOrphanedSession:
		return "orphaned_session"
	default:
		return "unknown"
	}
}

func connCloseReasonLabel(r messaging.ConnCloseReason) string {
	switch r {
	case messaging.CloseRemoteDisconnect:
		return "remote_disconnect"
	case messaging.CloseHeartbeatExpired:
		return "heartbeat_expired"
	case messaging.CloseRequested:
		return "requested"
	default:
		return "unknown_failure"
	}
}
