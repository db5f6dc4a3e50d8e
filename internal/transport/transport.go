// Package transport implements the connection-per-message point-to-point
// transport: one JSON object per TCP connection, framed by the sender's
// half-close, with a short connect/read deadline.
package transport

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
)

// DefaultTimeout is the recommended connect/read deadline from spec §4.2.
const DefaultTimeout = 2 * time.Second

// Addr identifies a remote peer's listening endpoint.
type Addr struct {
	Host string
	Port int
}

func (a Addr) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Transport sends framed messages to remote peers over fresh TCP
// connections. The zero value is usable; Timeout defaults to
// DefaultTimeout when zero.
type Transport struct {
	Timeout time.Duration
}

// New returns a Transport using DefaultTimeout.
func New() *Transport {
	return &Transport{Timeout: DefaultTimeout}
}

func (t *Transport) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

// Send opens a fresh connection to addr, writes msg, and — when msg.Kind
// expects one — reads back a single response message. For one-way kinds it
// returns (nil, err): callers that consider lost sends an abstention (mutex
// REQUEST/REPLY/RELEASE, alert broadcast) swallow a non-nil error themselves.
func (t *Transport) Send(addr Addr, msg message.Message) (*message.Message, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), t.timeout())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	defer conn.Close()

	payload, err := msg.Encode()
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}

	if err := conn.SetDeadline(time.Now().Add(t.timeout())); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}

	if _, err := conn.Write(payload); err != nil {
		return nil, errors.Wrapf(err, "write to %s", addr)
	}

	if !msg.Kind.ExpectsResponse() {
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		return nil, nil
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	dec := json.NewDecoder(conn)
	var resp message.Message
	if err := dec.Decode(&resp); err != nil {
		return nil, errors.Wrapf(err, "read response from %s", addr)
	}
	return &resp, nil
}

// Handler processes one inbound message and, when a response is expected,
// writes it back on conn before returning. The listener closes conn once
// Handler returns.
type Handler func(conn net.Conn, msg message.Message)

// Listener accepts inbound connections and hands each off to a Handler in
// its own goroutine, so a slow or malicious peer can never block the accept
// loop.
type Listener struct {
	ln net.Listener
}

// Listen binds 0.0.0.0:port and begins accepting connections in the
// background, dispatching each decoded message to handle.
func Listen(port int, handle Handler) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %d", port)
	}
	l := &Listener{ln: ln}
	go l.acceptLoop(handle)
	return l, nil
}

func (l *Listener) acceptLoop(handle Handler) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		go l.serveConn(conn, handle)
	}
}

func (l *Listener) serveConn(conn net.Conn, handle Handler) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	dec := json.NewDecoder(conn)
	var msg message.Message
	if err := dec.Decode(&msg); err != nil {
		// Malformed message: close without advancing protocol state
		// beyond the accept already consumed (spec §7).
		return
	}
	handle(conn, msg)
}

// Addr returns the bound network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// WriteResponse encodes and writes resp on conn, the common tail of any
// Handler that answers a PREPARE/COMMIT/ABORT (or an unknown kind, with
// ERROR) on the same connection.
func WriteResponse(conn net.Conn, resp message.Message) error {
	payload, err := resp.Encode()
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	_, err = conn.Write(payload)
	return errors.Wrap(err, "write response")
}
