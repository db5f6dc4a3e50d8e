// Package status exposes a read-only HTTP view of one running peer's
// clock, mutex, and transaction state, for operators debugging a live
// peer. It never originates protocol traffic (spec §1, §4.9).
package status

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sincronizacion-distribuida/alertmesh/internal/mutex"
	"github.com/sincronizacion-distribuida/alertmesh/internal/txn"
)

// ClockReader is the read-only slice of *clock.Clock the status server
// needs.
type ClockReader interface {
	Read() int64
}

// TxnLookup resolves a transaction id to a coordinator or participant view,
// if this peer knows about it locally.
type TxnLookup interface {
	Lookup(txid string) (interface{}, bool)
}

// PeerView reports identity fields shown alongside every snapshot.
type PeerView struct {
	Port   int
	Region string
}

// Server is the status HTTP server. Construct with New and call Handler to
// get an http.Handler to mount on an http.Server of the caller's choosing.
type Server struct {
	Peer  PeerView
	Clock ClockReader
	Mutex *mutex.Engine
	Txns  TxnLookup
}

// New constructs a Server.
func New(peer PeerView, clk ClockReader, m *mutex.Engine, txns TxnLookup) *Server {
	return &Server{Peer: peer, Clock: clk, Mutex: m, Txns: txns}
}

// Handler returns the mux.Router implementing GET /status and
// GET /status/txn/{id}.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/status/txn/{id}", s.handleTxn).Methods("GET")
	return r
}

type statusResponse struct {
	Port        int    `json:"port"`
	Region      string `json:"region"`
	LamportTime int64  `json:"lamport_time"`
	Mutex       mutex.Snapshot `json:"mutex"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Port:        s.Peer.Port,
		Region:      s.Peer.Region,
		LamportTime: s.Clock.Read(),
	}
	if s.Mutex != nil {
		resp.Mutex = s.Mutex.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleTxn(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.Txns == nil {
		http.Error(w, "transaction tracking not available", http.StatusNotFound)
		return
	}

	view, ok := s.Txns.Lookup(id)
	if !ok {
		http.Error(w, "unknown transaction "+id, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// coordinatorParticipantLookup is the concrete TxnLookup wiring a peer uses:
// coordinator transactions take priority, falling back to the participant's
// locally-staged view.
type coordinatorParticipantLookup struct {
	Coordinator *txn.Coordinator
	Participant *txn.Participant
}

// NewCoordinatorParticipantLookup builds the standard TxnLookup a peer wires
// into its status server.
func NewCoordinatorParticipantLookup(c *txn.Coordinator, p *txn.Participant) TxnLookup {
	return &coordinatorParticipantLookup{Coordinator: c, Participant: p}
}

func (l *coordinatorParticipantLookup) Lookup(txid string) (interface{}, bool) {
	if l.Coordinator != nil {
		if snap, ok := l.Coordinator.Snapshot(txid); ok {
			return snap, true
		}
	}
	if l.Participant != nil {
		if snap, ok := l.Participant.TxnSnapshot(txid); ok {
			return snap, true
		}
	}
	return nil, false
}
