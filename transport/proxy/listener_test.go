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

package proxy

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnetcore/corelink/errs"
	"github.com/lnetcore/corelink/messaging"
)

// fakeRelayConn is an in-process messaging.Connection double standing in
// for the real transport to the relay, the same pattern
// messaging/router_test.go uses for the router's own unit tests.
type fakeRelayConn struct {
	sent        []*messaging.Message
	dispatch    func(*messaging.Message)
	closeNotify func(messaging.ConnCloseReason)
}

func (c *fakeRelayConn) Attach() errs.Error { return nil }
func (c *fakeRelayConn) Detach()            {}
func (c *fakeRelayConn) Send(m *messaging.Message) errs.Error {
	c.sent = append(c.sent, m)
	return nil
}
func (c *fakeRelayConn) SetDispatcher(fn func(*messaging.Message))         { c.dispatch = fn }
func (c *fakeRelayConn) SetCloseNotify(fn func(messaging.ConnCloseReason)) { c.closeNotify = fn }

func TestListenerRegistersOnStart(t *testing.T) {
	conn := &fakeRelayConn{}
	relay := messaging.NewRouter(conn, nil)
	l := NewListener(relay, "server1", "s3cr3t", nil)

	require.NoError(t, l.Start())

	require.Len(t, conn.sent, 1)
	require.Equal(t, MsgServerRegisterCmd, conn.sent[0].Type)
	require.Equal(t, "server1", string(conn.sent[0].Payload))
}

func TestListenerManufacturesVirtualConnOnNotification(t *testing.T) {
	conn := &fakeRelayConn{}
	relay := messaging.NewRouter(conn, nil)
	l := NewListener(relay, "server1", "s3cr3t", nil)
	require.NoError(t, l.Start())

	var gotVCID uint32
	var gotConn messaging.Connection
	l.SetNewConnFunc(func(vcid uint32, c messaging.Connection) {
		gotVCID = vcid
		gotConn = c
	})

	vcidPayload := make([]byte, 4)
	binary.BigEndian.PutUint32(vcidPayload, 42)
	notMsg := messaging.NewMessage(l.controlSession, MsgVirtualConnNot, vcidPayload)
	conn.dispatch(notMsg)

	require.Equal(t, uint32(42), gotVCID)
	require.NotNil(t, gotConn)
}

func TestListenerRoundTripsInnerMessageThroughForwardCmd(t *testing.T) {
	conn := &fakeRelayConn{}
	relay := messaging.NewRouter(conn, nil)
	l := NewListener(relay, "server1", "s3cr3t", nil)
	require.NoError(t, l.Start())

	var vc messaging.Connection
	l.SetNewConnFunc(func(vcid uint32, c messaging.Connection) { vc = c })

	vcidPayload := make([]byte, 4)
	binary.BigEndian.PutUint32(vcidPayload, 7)
	conn.dispatch(messaging.NewMessage(l.controlSession, MsgVirtualConnNot, vcidPayload))
	require.NotNil(t, vc)

	var got *messaging.Message
	vc.SetDispatcher(func(m *messaging.Message) { got = m })

	inner := messaging.NewMessage(1, 100, []byte("hello"))
	framed := messaging.Encode(inner)
	body := encodeForward(deriveKey("s3cr3t"), 7, framed)
	conn.dispatch(messaging.NewMessage(l.dataSession, MsgForwardCmd, body))

	require.NotNil(t, got)
	require.Equal(t, uint32(100), got.Type)
	require.Equal(t, []byte("hello"), got.Payload)

	require.NoError(t, vc.Send(messaging.NewMessage(1, 200, []byte("world"))))
	require.NotEmpty(t, conn.sent)
}

func TestListenerClosesVirtualConnOnCloseCmd(t *testing.T) {
	conn := &fakeRelayConn{}
	relay := messaging.NewRouter(conn, nil)
	l := NewListener(relay, "server1", "s3cr3t", nil)
	require.NoError(t, l.Start())

	var vc messaging.Connection
	l.SetNewConnFunc(func(vcid uint32, c messaging.Connection) { vc = c })

	vcidPayload := make([]byte, 4)
	binary.BigEndian.PutUint32(vcidPayload, 9)
	conn.dispatch(messaging.NewMessage(l.controlSession, MsgVirtualConnNot, vcidPayload))

	var closedReason messaging.ConnCloseReason
	closed := false
	vc.SetCloseNotify(func(r messaging.ConnCloseReason) { closed = true; closedReason = r })

	conn.dispatch(messaging.NewMessage(l.controlSession, MsgVirtualConnCloseCmd, vcidPayload))

	require.True(t, closed)
	require.Equal(t, messaging.CloseRemoteDisconnect, closedReason)
}
