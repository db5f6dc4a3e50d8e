package mutex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sincronizacion-distribuida/alertmesh/internal/clock"
	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSender captures every outbound message in-process instead of
// going over the network, keyed by destination port (0 = broadcast).
type recordingSender struct {
	mu  sync.Mutex
	out []sentMsg
}

type sentMsg struct {
	to  int
	msg message.Message
}

func (s *recordingSender) Broadcast(msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sentMsg{to: 0, msg: msg})
}

func (s *recordingSender) SendTo(peerPort int, msg message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sentMsg{to: peerPort, msg: msg})
}

func (s *recordingSender) count(kind message.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.out {
		if m.msg.Kind == kind {
			n++
		}
	}
	return n
}

func TestAcquireWithNoPeersEntersImmediately(t *testing.T) {
	sender := &recordingSender{}
	e := New(6001, nil, clock.New(), sender, nil)

	e.Acquire()
	assert.Equal(t, "in_cs", e.Snapshot().State)
}

func TestAcquireWaitsForAllReplies(t *testing.T) {
	sender := &recordingSender{}
	e := New(6001, []int{6002, 6003}, clock.New(), sender, nil)

	done := make(chan struct{})
	go func() {
		e.Acquire()
		close(done)
	}()

	// Give Acquire time to broadcast REQUEST and start waiting.
	time.Sleep(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("acquire returned before any replies arrived")
	default:
	}

	e.OnReply(6002)
	select {
	case <-done:
		t.Fatal("acquire returned after only one of two replies")
	case <-time.After(50 * time.Millisecond):
	}

	e.OnReply(6003)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire never returned after all replies arrived")
	}

	assert.Equal(t, "in_cs", e.Snapshot().State)
}

func TestReleaseFlushesDeferredReplies(t *testing.T) {
	sender := &recordingSender{}
	e := New(6001, []int{6002, 6003}, clock.New(), sender, nil)

	go e.Acquire()
	time.Sleep(20 * time.Millisecond)

	// A request with a much later ts than ours arrives while we are
	// requesting: (our ts, 6001) < (1_000_000, 6002), so we have priority
	// and should defer.
	e.OnRequest(6002, 1_000_000)

	e.OnReply(6002)
	e.OnReply(6003)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, "in_cs", e.Snapshot().State)
	assert.Equal(t, 1, e.Snapshot().Deferred)

	e.Release()
	assert.Equal(t, "idle", e.Snapshot().State)
	assert.Equal(t, 0, e.Snapshot().Deferred)
	assert.GreaterOrEqual(t, sender.count(message.KindReply), 1)
	assert.Equal(t, 1, sender.count(message.KindRelease))
}

func TestOnRequestTieBreakLowerPortWins(t *testing.T) {
	// Two nodes both request at the same Lamport time (1). Port 6001 has
	// priority over 6002 per the (ts, port) lexicographic order.
	sender := &recordingSender{}
	lowPort := New(6001, []int{6002}, clock.New(), sender, nil)

	lowPort.mu.Lock()
	lowPort.state = Requesting
	lowPort.myRequestTimestamp = 1
	lowPort.mu.Unlock()

	// Incoming REQUEST from 6002 at ts=1: since (1,6001) < (1,6002), the
	// local node (6001) has priority and must defer its reply.
	lowPort.OnRequest(6002, 1)
	assert.Equal(t, 1, lowPort.Snapshot().Deferred)
}

func TestOnRequestRepliesImmediatelyWhenPeerHasPriority(t *testing.T) {
	sender := &recordingSender{}
	highPort := New(6002, []int{6001}, clock.New(), sender, nil)

	highPort.mu.Lock()
	highPort.state = Requesting
	highPort.myRequestTimestamp = 1
	highPort.mu.Unlock()

	// Incoming REQUEST from 6001 at ts=1: (1,6001) < (1,6002), so the
	// remote peer has priority; 6002 must reply immediately, not defer.
	highPort.OnRequest(6001, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, highPort.Snapshot().Deferred)
	assert.Equal(t, 1, sender.count(message.KindReply))
}

func TestOnRequestWhileInCSAlwaysDefers(t *testing.T) {
	sender := &recordingSender{}
	e := New(6001, nil, clock.New(), sender, nil)
	e.Acquire() // no peers: enters CS immediately

	e.OnRequest(6002, 1)
	assert.Equal(t, 1, e.Snapshot().Deferred)
}
