package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
)

// DefaultVoteDeadline is the recommended 5s vote-collection deadline from
// spec §4.4 / §5.
const DefaultVoteDeadline = 5 * time.Second

// ParticipantClient is the coordinator's outbound half: send a PREPARE and
// get back the participant's vote, or send the final decision best-effort
// (ACK loss is not fatal).
type ParticipantClient interface {
	Prepare(peerPort int, txid string, writes map[string]string) (message.Kind, error)
	Decide(peerPort int, txid string, decision message.Kind)
}

type transaction struct {
	writes map[string]string
	votes  map[int]bool
	state  string // "preparing" | "committed" | "aborted"
}

// Coordinator drives begin/prepare/decide for transactions this peer
// originates.
type Coordinator struct {
	peers    []int
	client   ParticipantClient
	deadline time.Duration
	log      *logrus.Entry

	mu   sync.Mutex
	txns map[string]*transaction
}

// NewCoordinator returns a Coordinator that will address every port in
// peers when it begins a transaction.
func NewCoordinator(peers []int, client ParticipantClient, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		peers:    append([]int(nil), peers...),
		client:   client,
		deadline: DefaultVoteDeadline,
		log:      log,
		txns:     make(map[string]*transaction),
	}
}

// NewTransactionID generates a fresh transaction id.
func NewTransactionID() string {
	return uuid.NewString()
}

// Begin drives a full two-phase commit for writes: PREPARE every
// participant, wait for all votes or the deadline (missing votes count as
// no), decide COMMIT iff every vote was yes, send the decision to every
// participant unconditionally and wait for those sends to return, and
// report whether it committed.
func (c *Coordinator) Begin(txid string, writes map[string]string) bool {
	c.mu.Lock()
	c.txns[txid] = &transaction{writes: writes, votes: make(map[int]bool), state: "preparing"}
	c.mu.Unlock()

	if c.log != nil {
		c.log.WithFields(logrus.Fields{"txid": txid, "writes": writes}).Info("beginning transaction")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.deadline)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)
	for _, peer := range c.peers {
		peer := peer
		g.Go(func() error {
			vote, err := c.client.Prepare(peer, txid, writes)
			if err != nil {
				if c.log != nil {
					c.log.WithFields(logrus.Fields{"txid": txid, "peer": peer, "err": err}).
						Warn("prepare send failed, counting as no vote")
				}
				return nil
			}
			c.mu.Lock()
			if tx, ok := c.txns[txid]; ok {
				tx.votes[peer] = vote == message.KindVoteYes
			}
			c.mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Deadline elapsed with votes still outstanding; any goroutine
		// that finishes after this point still writes to tx.votes under
		// the lock, but that write happens after decision has already
		// been read below, so late votes never retroactively change the
		// outcome (spec §9).
	}

	c.mu.Lock()
	tx := c.txns[txid]
	committed := len(tx.votes) == len(c.peers)
	if committed {
		for _, yes := range tx.votes {
			if !yes {
				committed = false
				break
			}
		}
	}
	if committed {
		tx.state = "committed"
	} else {
		tx.state = "aborted"
	}
	decision := message.KindAbort
	if committed {
		decision = message.KindCommit
	}
	c.mu.Unlock()

	var decided sync.WaitGroup
	for _, peer := range c.peers {
		peer := peer
		decided.Add(1)
		go func() {
			defer decided.Done()
			c.client.Decide(peer, txid, decision)
		}()
	}
	decided.Wait()

	if c.log != nil {
		c.log.WithFields(logrus.Fields{"txid": txid, "committed": committed}).Info("transaction decided")
	}

	c.mu.Lock()
	delete(c.txns, txid)
	c.mu.Unlock()

	return committed
}

// CoordinatorSnapshot is a read-only view of an in-flight transaction.
type CoordinatorSnapshot struct {
	State string         `json:"state"`
	Votes map[int]bool   `json:"votes"`
}

// Snapshot returns the current state of txid if the coordinator still has
// it in flight.
func (c *Coordinator) Snapshot(txid string) (CoordinatorSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txns[txid]
	if !ok {
		return CoordinatorSnapshot{}, false
	}
	votes := make(map[int]bool, len(tx.votes))
	for k, v := range tx.votes {
		votes[k] = v
	}
	return CoordinatorSnapshot{State: tx.state, Votes: votes}, true
}
