// Package node wires a single peer's clock, mutex engine, 2PC
// coordinator/participant, dispatcher, region registry, alert originator,
// status server, and event log together into one running process, the way
// the teacher's main.go wires its reservation node.
package node

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sincronizacion-distribuida/alertmesh/internal/alert"
	"github.com/sincronizacion-distribuida/alertmesh/internal/clock"
	"github.com/sincronizacion-distribuida/alertmesh/internal/dispatcher"
	"github.com/sincronizacion-distribuida/alertmesh/internal/eventlog"
	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
	"github.com/sincronizacion-distribuida/alertmesh/internal/mutex"
	"github.com/sincronizacion-distribuida/alertmesh/internal/peerconfig"
	"github.com/sincronizacion-distribuida/alertmesh/internal/region"
	"github.com/sincronizacion-distribuida/alertmesh/internal/status"
	"github.com/sincronizacion-distribuida/alertmesh/internal/transport"
	"github.com/sincronizacion-distribuida/alertmesh/internal/txn"
)

// transportSender adapts internal/transport to mutex.Sender: broadcast to
// every configured peer, or send to one, both fire-and-forget (a dial or
// write failure is logged and swallowed, never retried — spec §4.3).
type transportSender struct {
	self *Peer
}

func (s transportSender) Broadcast(msg message.Message) {
	for _, peer := range s.self.cfg.Peers {
		s.self.send(peer, msg)
	}
}

func (s transportSender) SendTo(peerPort int, msg message.Message) {
	peer, ok := s.self.peerByPort(peerPort)
	if !ok {
		return
	}
	s.self.send(peer, msg)
}

// transportParticipantClient adapts internal/transport to
// txn.ParticipantClient: PREPARE expects a vote back; Decide waits for the
// ACK but ignores it, and a send failure is only logged.
type transportParticipantClient struct {
	self *Peer
}

func (c transportParticipantClient) Prepare(peerPort int, txid string, writes map[string]string) (message.Kind, error) {
	peer, ok := c.self.peerByPort(peerPort)
	if !ok {
		return "", fmt.Errorf("unknown peer port %d", peerPort)
	}
	resp, err := c.self.Transport.Send(transport.Addr{Host: peer.Host, Port: peer.Port}, message.Message{
		Kind:          message.KindPrepare,
		SenderPort:    c.self.cfg.Port,
		LamportTime:   c.self.Clock.Tick(),
		TransactionID: txid,
		Writes:        writes,
	})
	if err != nil {
		return "", err
	}
	return resp.Kind, nil
}

func (c transportParticipantClient) Decide(peerPort int, txid string, decision message.Kind) {
	peer, ok := c.self.peerByPort(peerPort)
	if !ok {
		return
	}
	c.self.send(peer, message.Message{
		Kind:          decision,
		SenderPort:    c.self.cfg.Port,
		LamportTime:   c.self.Clock.Tick(),
		TransactionID: txid,
	})
}

// Peer is one running alertmesh node: every engine, plus the transport
// listener and optional status/event-log observers, wired together.
type Peer struct {
	cfg peerconfig.Config
	log *logrus.Entry

	Clock       *clock.Clock
	Regions     *region.Registry
	Mutex       *mutex.Engine
	Participant *txn.Participant
	Coordinator *txn.Coordinator
	Dispatcher  *dispatcher.Dispatcher
	Originator  *alert.Originator
	Transport   *transport.Transport
	Status      *status.Server
	EventLog    *eventlog.Writer

	listener *transport.Listener
}

// New builds a fully wired Peer from cfg but does not yet start listening.
func New(cfg peerconfig.Config, log *logrus.Entry) *Peer {
	p := &Peer{
		cfg:       cfg,
		log:       log,
		Clock:     clock.New(),
		Regions:   region.NewDefaultRegistry(),
		Transport: transport.New(),
	}

	for _, peer := range cfg.Peers {
		if !p.Regions.Known(peer.Region) {
			p.Regions.Add(peer.Region, "")
		}
	}

	p.Mutex = mutex.New(cfg.Port, cfg.PeerPorts(), p.Clock, transportSender{self: p}, log)
	p.Participant = txn.NewParticipant(log)
	p.Coordinator = txn.NewCoordinator(cfg.PeerPorts(), transportParticipantClient{self: p}, log)

	sink := &logSink{log: log, region: cfg.Region, regions: p.Regions}

	p.Dispatcher = &dispatcher.Dispatcher{
		SelfPort:    cfg.Port,
		LocalRegion: cfg.Region,
		Clock:       p.Clock,
		Mutex:       p.Mutex,
		Participant: p.Participant,
		Coordinator: p.Coordinator,
		Regions:     p.Regions,
		Sink:        sink,
		Log:         log,
	}

	p.Originator = alert.New(cfg.Port, cfg.Region, p.Regions, transportSender{self: p}, p.Clock, log)

	p.Status = status.New(
		status.PeerView{Port: cfg.Port, Region: cfg.Region},
		p.Clock,
		p.Mutex,
		status.NewCoordinatorParticipantLookup(p.Coordinator, p.Participant),
	)

	return p
}

// ListenAndServe starts the transport listener; callers stop it via Close.
func (p *Peer) ListenAndServe() error {
	ln, err := transport.Listen(p.cfg.Port, p.Dispatcher.Handle)
	if err != nil {
		return err
	}
	p.listener = ln
	return nil
}

// WithEventLog attaches an eventlog.Writer as the dispatcher's EventRecorder.
func (p *Peer) WithEventLog(w *eventlog.Writer) {
	p.EventLog = w
	p.Dispatcher.Recorder = w
}

// Close stops the transport listener and the alert emitter, if running.
func (p *Peer) Close() error {
	p.Originator.Stop()
	if p.EventLog != nil {
		p.EventLog.Close()
	}
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

func (p *Peer) peerByPort(port int) (peerconfig.PeerEntry, bool) {
	for _, peer := range p.cfg.Peers {
		if peer.Port == port {
			return peer, true
		}
	}
	return peerconfig.PeerEntry{}, false
}

func (p *Peer) send(peer peerconfig.PeerEntry, msg message.Message) {
	_, err := p.Transport.Send(transport.Addr{Host: peer.Host, Port: peer.Port}, msg)
	if err != nil && p.log != nil {
		p.log.WithFields(logrus.Fields{"peer": peer.Port, "kind": msg.Kind, "err": err}).
			Warn("send failed, treating as abstention")
	}
}

// logSink is the default AlertSink: it logs delivered alerts at Warn level,
// substituting the local region's evacuation location into any "{evac}"
// placeholder in the alert's tips. A real terminal/UI renderer is out of
// scope (spec §1 Non-goals).
type logSink struct {
	log     *logrus.Entry
	region  string
	regions *region.Registry
}

func (s *logSink) Deliver(msg message.Message) {
	if s.log == nil {
		return
	}
	evac := ""
	if s.regions != nil {
		evac = s.regions.EvacuationLocation(s.region)
	}
	tips := make([]string, len(msg.Tips))
	for i, tip := range msg.Tips {
		tips[i] = strings.ReplaceAll(tip, "{evac}", evac)
	}
	s.log.WithFields(logrus.Fields{
		"disaster_type": msg.DisasterType,
		"severity":      msg.Severity,
		"from_region":   msg.SenderRegion,
		"tips":          tips,
	}).Warn(msg.Content)
}
