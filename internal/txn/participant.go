// Package txn implements the two-phase commit coordinator and participant
// state machines of spec §4.4, including the participant's per-key lock
// table and staged-write bookkeeping.
package txn

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
)

// Participant holds one peer's lock table, staged transactions, and
// committed key/value store. All three are guarded by a single mutex
// because the invariant "txid in staged iff some key's lock_table entry is
// txid" spans both tables (spec §3).
type Participant struct {
	mu        sync.Mutex
	lockTable map[string]string            // key -> holding txid
	staged    map[string]map[string]string // txid -> writes
	store     map[string]string            // committed key/value data
	log       *logrus.Entry
}

// NewParticipant returns an empty Participant.
func NewParticipant(log *logrus.Entry) *Participant {
	return &Participant{
		lockTable: make(map[string]string),
		staged:    make(map[string]map[string]string),
		store:     make(map[string]string),
		log:       log,
	}
}

// HandlePrepare processes an inbound PREPARE. It votes VOTE_NO without
// staging anything if any key is already locked by a different
// transaction; otherwise it locks every key, stages the writes, and votes
// VOTE_YES. Re-preparing the same txid with the same writes is a no-op that
// also votes VOTE_YES (idempotence, spec §4.4).
func (p *Participant) HandlePrepare(txid string, writes map[string]string) message.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.staged[txid]; ok && sameWrites(existing, writes) {
		return message.KindVoteYes
	}

	for key := range writes {
		if owner, locked := p.lockTable[key]; locked && owner != txid {
			if p.log != nil {
				p.log.WithFields(logrus.Fields{"txid": txid, "key": key, "holder": owner}).
					Info("prepare rejected: lock conflict")
			}
			return message.KindVoteNo
		}
	}

	for key := range writes {
		p.lockTable[key] = txid
	}
	p.staged[txid] = cloneWrites(writes)
	return message.KindVoteYes
}

// HandleCommit applies a COMMIT decision: staged writes are copied into the
// committed store and every lock held by txid is released. Re-delivery
// after the staged entry is already gone is a no-op (idempotence).
func (p *Participant) HandleCommit(txid string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writes, ok := p.staged[txid]; ok {
		for k, v := range writes {
			p.store[k] = v
		}
		delete(p.staged, txid)
	}
	p.releaseLocksLocked(txid)
}

// HandleAbort applies an ABORT decision: the staged entry (if any) is
// dropped without being applied, and every lock held by txid is released.
func (p *Participant) HandleAbort(txid string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.staged, txid)
	p.releaseLocksLocked(txid)
}

func (p *Participant) releaseLocksLocked(txid string) {
	for key, owner := range p.lockTable {
		if owner == txid {
			delete(p.lockTable, key)
		}
	}
}

// Get returns the committed value for key, if any.
func (p *Participant) Get(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.store[key]
	return v, ok
}

// ParticipantSnapshot is a read-only view used by the status endpoint.
type ParticipantSnapshot struct {
	LockedKeys   int `json:"locked_keys"`
	StagedTxns   int `json:"staged_txns"`
	CommittedKeys int `json:"committed_keys"`
}

// Snapshot returns current table sizes for observability.
func (p *Participant) Snapshot() ParticipantSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ParticipantSnapshot{
		LockedKeys:    len(p.lockTable),
		StagedTxns:    len(p.staged),
		CommittedKeys: len(p.store),
	}
}

// TxnStagedView is a read-only view of one staged (not yet decided)
// transaction as seen by a participant.
type TxnStagedView struct {
	Writes map[string]string `json:"writes"`
}

// TxnSnapshot returns the staged writes for txid if this participant has it
// locked and staged, for the per-transaction status view.
func (p *Participant) TxnSnapshot(txid string) (TxnStagedView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	writes, ok := p.staged[txid]
	if !ok {
		return TxnStagedView{}, false
	}
	return TxnStagedView{Writes: cloneWrites(writes)}, true
}

func sameWrites(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func cloneWrites(writes map[string]string) map[string]string {
	out := make(map[string]string, len(writes))
	for k, v := range writes {
		out[k] = v
	}
	return out
}
