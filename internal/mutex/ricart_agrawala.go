// Package mutex implements the Ricart–Agrawala distributed mutual exclusion
// state machine described in spec §4.3.
package mutex

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sincronizacion-distribuida/alertmesh/internal/clock"
	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
)

// State is one of the three Ricart–Agrawala states.
type State int

const (
	Idle State = iota
	Requesting
	InCS
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case InCS:
		return "in_cs"
	default:
		return "unknown"
	}
}

// Sender is the outbound half of the engine's contract: broadcast to every
// peer, or reply to one specific peer. Both are fire-and-forget — a lost
// send is interpreted as abstention, never retried (spec §4.3).
type Sender interface {
	Broadcast(msg message.Message)
	SendTo(peerPort int, msg message.Message)
}

// Engine is one peer's Ricart–Agrawala state machine. The zero value is not
// usable; construct with New.
type Engine struct {
	selfPort int
	peers    []int
	clock    *clock.Clock
	sender   Sender
	log      *logrus.Entry

	mu                 sync.Mutex
	state              State
	myRequestTimestamp int64
	repliesOutstanding map[int]struct{}
	deferred           []int
	granted            chan struct{}
}

// New constructs an Engine for selfPort against the given set of peer
// ports, using clk for timestamps and sender for outbound REQUEST/REPLY/
// RELEASE messages.
func New(selfPort int, peerPorts []int, clk *clock.Clock, sender Sender, log *logrus.Entry) *Engine {
	return &Engine{
		selfPort: selfPort,
		peers:    append([]int(nil), peerPorts...),
		clock:    clk,
		sender:   sender,
		log:      log,
		state:    Idle,
	}
}

// Acquire blocks until a REPLY has arrived from every other peer, then
// enters the critical section. Precondition: idle. Postcondition: InCS.
func (e *Engine) Acquire() {
	e.mu.Lock()
	e.state = Requesting
	ts := e.clock.Tick()
	e.myRequestTimestamp = ts
	e.repliesOutstanding = make(map[int]struct{}, len(e.peers))
	for _, p := range e.peers {
		e.repliesOutstanding[p] = struct{}{}
	}
	e.granted = make(chan struct{}, 1)
	peers := len(e.peers)
	e.mu.Unlock()

	if e.log != nil {
		e.log.WithField("request_ts", ts).Info("requesting critical section")
	}

	if peers == 0 {
		e.mu.Lock()
		e.state = InCS
		e.mu.Unlock()
		return
	}

	e.sender.Broadcast(message.Message{
		Kind:        message.KindRequest,
		SenderPort:  e.selfPort,
		LamportTime: ts,
	})

	<-e.granted
}

// Release requires InCS; it flushes every deferred REPLY, broadcasts an
// advisory RELEASE, and returns to idle.
func (e *Engine) Release() {
	e.mu.Lock()
	if e.state != InCS {
		e.mu.Unlock()
		if e.log != nil {
			e.log.Warn("release called while not in critical section")
		}
		return
	}
	deferred := e.deferred
	e.deferred = nil
	e.state = Idle
	e.mu.Unlock()

	for _, port := range deferred {
		e.sendReply(port)
	}

	e.sender.Broadcast(message.Message{
		Kind:        message.KindRelease,
		SenderPort:  e.selfPort,
		LamportTime: e.clock.Tick(),
	})

	if e.log != nil {
		e.log.WithField("deferred_flushed", len(deferred)).Info("released critical section")
	}
}

// OnRequest handles an inbound REQUEST(ts, from). It either replies
// immediately or defers the reply, per the Ricart–Agrawala tie-break.
func (e *Engine) OnRequest(from int, ts int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	shouldDefer := e.state == InCS ||
		(e.state == Requesting && less(e.myRequestTimestamp, e.selfPort, ts, from))

	if shouldDefer {
		e.deferred = append(e.deferred, from)
		return
	}

	e.sendReplyLocked(from)
}

// OnReply handles an inbound REPLY from a peer we are currently requesting
// against.
func (e *Engine) OnReply(from int) {
	e.mu.Lock()
	if e.state != Requesting {
		e.mu.Unlock()
		return
	}
	delete(e.repliesOutstanding, from)
	remaining := len(e.repliesOutstanding)
	if remaining == 0 {
		e.state = InCS
	}
	granted := e.granted
	e.mu.Unlock()

	if remaining == 0 {
		granted <- struct{}{}
	}
}

// sendReply must be called without the engine lock held.
func (e *Engine) sendReply(to int) {
	e.sender.SendTo(to, message.Message{
		Kind:        message.KindReply,
		SenderPort:  e.selfPort,
		LamportTime: e.clock.Tick(),
	})
}

// sendReplyLocked sends while already holding e.mu; the actual network send
// runs in its own goroutine so the caller never does I/O under the lock.
func (e *Engine) sendReplyLocked(to int) {
	ts := e.clock.Tick()
	msg := message.Message{Kind: message.KindReply, SenderPort: e.selfPort, LamportTime: ts}
	go e.sender.SendTo(to, msg)
}

// less implements the (timestamp, port) lexicographic tie-break: true iff
// (ts1, port1) < (ts2, port2).
func less(ts1 int64, port1 int, ts2 int64, port2 int) bool {
	if ts1 != ts2 {
		return ts1 < ts2
	}
	return port1 < port2
}

// Snapshot is a read-only view of the engine's state, used by the status
// endpoint.
type Snapshot struct {
	State          string `json:"state"`
	RequestTS      int64  `json:"request_ts,omitempty"`
	RepliesPending int    `json:"replies_pending"`
	Deferred       int    `json:"deferred"`
}

// Snapshot returns the engine's current state for observability.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:          e.state.String(),
		RequestTS:      e.myRequestTimestamp,
		RepliesPending: len(e.repliesOutstanding),
		Deferred:       len(e.deferred),
	}
}
