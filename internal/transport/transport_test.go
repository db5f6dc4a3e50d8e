package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestSendOneWayMessage(t *testing.T) {
	port := freePort(t)
	received := make(chan message.Message, 1)

	ln, err := Listen(port, func(conn net.Conn, msg message.Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer ln.Close()

	tr := New()
	resp, err := tr.Send(Addr{Host: "127.0.0.1", Port: port}, message.Message{
		Kind:        message.KindRelease,
		SenderPort:  6001,
		LamportTime: 3,
	})
	require.NoError(t, err)
	assert.Nil(t, resp)

	select {
	case msg := <-received:
		assert.Equal(t, message.KindRelease, msg.Kind)
		assert.Equal(t, int64(3), msg.LamportTime)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the message")
	}
}

func TestSendRequestResponseMessage(t *testing.T) {
	port := freePort(t)

	ln, err := Listen(port, func(conn net.Conn, msg message.Message) {
		assert.Equal(t, message.KindPrepare, msg.Kind)
		err := WriteResponse(conn, message.Message{
			Kind:          message.KindVoteYes,
			SenderPort:    7001,
			TransactionID: msg.TransactionID,
		})
		assert.NoError(t, err)
	})
	require.NoError(t, err)
	defer ln.Close()

	tr := New()
	resp, err := tr.Send(Addr{Host: "127.0.0.1", Port: port}, message.Message{
		Kind:          message.KindPrepare,
		SenderPort:    7000,
		TransactionID: "tx-a",
		Writes:        map[string]string{"alert_count": "5"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, message.KindVoteYes, resp.Kind)
	assert.Equal(t, "tx-a", resp.TransactionID)
}

func TestSendUnreachablePeerReturnsError(t *testing.T) {
	port := freePort(t) // nothing listens here

	tr := &Transport{Timeout: 200 * time.Millisecond}
	resp, err := tr.Send(Addr{Host: "127.0.0.1", Port: port}, message.Message{
		Kind:       message.KindRequest,
		SenderPort: 6001,
	})
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestListenerIgnoresMalformedPayload(t *testing.T) {
	port := freePort(t)
	called := make(chan struct{}, 1)

	ln, err := Listen(port, func(conn net.Conn, msg message.Message) {
		called <- struct{}{}
	})
	require.NoError(t, err)
	defer ln.Close()

	conn, err := net.Dial("tcp", Addr{Host: "127.0.0.1", Port: port}.String())
	require.NoError(t, err)
	_, _ = conn.Write([]byte("not json"))
	_ = conn.Close()

	select {
	case <-called:
		t.Fatal("handler should not run for malformed payloads")
	case <-time.After(200 * time.Millisecond):
	}
}
