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

package messaging_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/messaging"
)

// fakeConn is an in-process Connection double: Send appends to sent and
// dispatch/closeNotify are invoked synchronously, matching how the real
// Connection posts onto the owning Loop.
type fakeConn struct {
	sent        []*messaging.Message
	dispatch    func(*messaging.Message)
	closeNotify func(messaging.ConnCloseReason)
	attached    int
	detached    int
	sendErr     errs.Error
}

func (c *fakeConn) Attach() errs.Error { c.attached++; return nil }
func (c *fakeConn) Detach()            { c.detached++ }
func (c *fakeConn) Send(m *messaging.Message) errs.Error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, m)
	return nil
}
func (c *fakeConn) SetDispatcher(fn func(*messaging.Message))     { c.dispatch = fn }
func (c *fakeConn) SetCloseNotify(fn func(messaging.ConnCloseReason)) { c.closeNotify = fn }

// fakeNode records every callback it receives.
type fakeNode struct {
	msgs   []*messaging.Message
	broken []messaging.BrokenReason
}

func (n *fakeNode) OnMessage(sessionNo uint32, m *messaging.Message) { n.msgs = append(n.msgs, m) }
func (n *fakeNode) OnBroken(sessionNo uint32, reason messaging.BrokenReason) {
	n.broken = append(n.broken, reason)
}

func TestOpenSessionAllocatesConsecutiveSessionNumbers(t *testing.T) {
	conn := &fakeConn{}
	r := messaging.NewRouter(conn, nil)
	node := &fakeNode{}

	first := r.OpenSession(node)
	second := r.OpenSession(node)
	require.Equal(t, first+1, second)
	require.Equal(t, 1, conn.attached, "first open session must attach the connection exactly once")
}

func TestSessionLifeCycleDeliversMessageThenClose(t *testing.T) {
	conn := &fakeConn{}
	r := messaging.NewRouter(conn, nil)
	node := &fakeNode{}
	sn := r.OpenSession(node)

	conn.dispatch(messaging.NewMessage(sn, 42, []byte("payload")))
	require.Len(t, node.msgs, 1)
	require.Equal(t, uint32(42), node.msgs[0].Type)

	conn.dispatch(messaging.NewMessage(sn, messaging.MsgTypeSessionClosedNot, []byte{byte(messaging.ReasonNoResources)}))
	require.Len(t, node.broken, 1)
	require.Equal(t, messaging.ReasonNoResources, node.broken[0])
	require.Equal(t, 1, conn.detached, "last route gone must detach the connection")
}

func TestOrphanedSessionIsRejected(t *testing.T) {
	conn := &fakeConn{}
	r := messaging.NewRouter(conn, nil)
	_ = r

	conn.dispatch(messaging.NewMessage(99, 7, []byte("stray")))

	require.Len(t, conn.sent, 1)
	reply := conn.sent[0]
	require.Equal(t, messaging.MsgTypeMessageRejectedNot, reply.Type)
	require.Equal(t, uint32(99), reply.SessionNo)
	require.Equal(t, byte(messaging.ReasonOrphanedSession), reply.Payload[0])
	require.Equal(t, []byte("stray"), reply.Payload[1:])
}

func TestConnectionBrokenNotifiesAllOpenSessions(t *testing.T) {
	conn := &fakeConn{}
	r := messaging.NewRouter(conn, nil)
	nodeA := &fakeNode{}
	nodeB := &fakeNode{}
	r.OpenSession(nodeA)
	r.OpenSession(nodeB)

	conn.closeNotify(messaging.CloseHeartbeatExpired)

	require.Equal(t, []messaging.BrokenReason{messaging.ReasonHeartbeat}, nodeA.broken)
	require.Equal(t, []messaging.BrokenReason{messaging.ReasonHeartbeat}, nodeB.broken)
}

func TestCloseSessionSendsCloseCmdAndNotifiesLocally(t *testing.T) {
	conn := &fakeConn{}
	r := messaging.NewRouter(conn, nil)
	node := &fakeNode{}
	sn := r.OpenSession(node)

	r.CloseSession(sn)

	require.Len(t, conn.sent, 1)
	require.Equal(t, messaging.MsgTypeSessionCloseCmd, conn.sent[0].Type)
	require.Equal(t, []messaging.BrokenReason{messaging.ReasonShutDown}, node.broken)
	require.Equal(t, 1, conn.detached)
}

func TestSendRejectsUnknownSession(t *testing.T) {
	conn := &fakeConn{}
	r := messaging.NewRouter(conn, nil)

	err := r.Send(123, 1, nil)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ClassPolicy))
}
