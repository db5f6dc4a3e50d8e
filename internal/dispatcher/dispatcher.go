// Package dispatcher implements the single inbound pipeline of spec §4.6:
// observe the Lamport clock against every inbound message, then route by
// kind to the mutex engine, the 2PC engine, or the alert sink.
package dispatcher

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sincronizacion-distribuida/alertmesh/internal/clock"
	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
	"github.com/sincronizacion-distribuida/alertmesh/internal/mutex"
	"github.com/sincronizacion-distribuida/alertmesh/internal/region"
	"github.com/sincronizacion-distribuida/alertmesh/internal/transport"
	"github.com/sincronizacion-distribuida/alertmesh/internal/txn"
)

// AlertSink receives alert-class messages that passed the region filter.
type AlertSink interface {
	Deliver(msg message.Message)
}

// EventRecorder is notified of every inbound message after the clock has
// observed it, for audit purposes (internal/eventlog implements this).
// Implementations must not block the dispatcher.
type EventRecorder interface {
	Record(lamport int64, description string)
}

// Dispatcher wires the mutex engine, the 2PC participant table, the region
// filter, and the alert sink to one inbound message stream.
type Dispatcher struct {
	SelfPort    int
	LocalRegion string

	Clock       *clock.Clock
	Mutex       *mutex.Engine
	Participant *txn.Participant
	Coordinator *txn.Coordinator
	Regions     *region.Registry
	Sink        AlertSink
	Recorder    EventRecorder
	Log         *logrus.Entry
}

// Handle is a transport.Handler: it is invoked once per accepted
// connection with the single decoded inbound message.
func (d *Dispatcher) Handle(conn net.Conn, msg message.Message) {
	lamport := d.Clock.Observe(msg.LamportTime)

	if d.Recorder != nil {
		d.Recorder.Record(lamport, describe(msg))
	}

	switch msg.Kind {
	case message.KindAlert, message.KindDisaster, message.KindNational:
		d.routeAlert(msg)

	case message.KindRequest:
		d.Mutex.OnRequest(msg.SenderPort, msg.LamportTime)

	case message.KindReply:
		d.Mutex.OnReply(msg.SenderPort)

	case message.KindRelease:
		// Advisory only; no state change required (spec §4.3/§4.6).

	case message.KindPrepare:
		vote := d.Participant.HandlePrepare(msg.TransactionID, msg.Writes)
		d.reply(conn, vote, msg.TransactionID)

	case message.KindCommit:
		d.Participant.HandleCommit(msg.TransactionID)
		d.reply(conn, message.KindAck, msg.TransactionID)

	case message.KindAbort:
		d.Participant.HandleAbort(msg.TransactionID)
		d.reply(conn, message.KindAck, msg.TransactionID)

	case message.KindVoteYes, message.KindVoteNo, message.KindAck:
		// In this transport, votes and acks are read synchronously as the
		// response to the connection the coordinator itself opened, so
		// they never reach the inbound listener. This branch exists so
		// the routing table of spec §4.6 is total over Kind, in case a
		// future transport delivers them out-of-band.

	default:
		d.reply(conn, message.KindError, msg.TransactionID)
	}
}

func (d *Dispatcher) routeAlert(msg message.Message) {
	isNational := msg.Kind == message.KindNational
	if !region.ShouldDeliver(isNational, d.LocalRegion, msg.TargetRegions) {
		return
	}
	if d.Sink != nil {
		d.Sink.Deliver(msg)
	}
}

func (d *Dispatcher) reply(conn net.Conn, kind message.Kind, txid string) {
	resp := message.Message{
		Kind:          kind,
		SenderPort:    d.SelfPort,
		LamportTime:   d.Clock.Tick(),
		TransactionID: txid,
	}
	if err := transport.WriteResponse(conn, resp); err != nil && d.Log != nil {
		d.Log.WithError(err).Warn("failed to write response")
	}
}

func describe(msg message.Message) string {
	if msg.TransactionID != "" {
		return fmt.Sprintf("%s from peer %d (txid %s)", msg.Kind, msg.SenderPort, msg.TransactionID)
	}
	return fmt.Sprintf("%s from peer %d", msg.Kind, msg.SenderPort)
}
