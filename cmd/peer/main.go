package main

import (
	"log"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/sincronizacion-distribuida/alertmesh/internal/eventlog"
	"github.com/sincronizacion-distribuida/alertmesh/internal/node"
	"github.com/sincronizacion-distribuida/alertmesh/internal/peerconfig"
)

func main() {
	configPath := os.Getenv("ALERTMESH_CONFIG")
	if configPath == "" {
		configPath = "peer.yaml"
	}

	// port/region overrides come from -port/-region flags or
	// ALERTMESH_PORT/ALERTMESH_REGION, parsed by Load itself.
	cfg, err := peerconfig.Load(configPath, nil, os.Args[1:])
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logrus.New()
	entry := logger.WithField("peer", cfg.Port).WithField("region", cfg.Region)

	entry.Infof("starting with %d configured peers", len(cfg.Peers))

	p := node.New(cfg, entry)

	if err := p.ListenAndServe(); err != nil {
		entry.Fatalf("listen on port %d: %v", cfg.Port, err)
	}
	entry.Infof("listening on port %d", cfg.Port)

	if cfg.EventLogDir != "" {
		w, err := eventlog.New(cfg.EventLogDir, cfg.Port, cfg.Region, entry)
		if err != nil {
			entry.Fatalf("opening event log: %v", err)
		}
		p.WithEventLog(w)
	}

	if cfg.StatusAddr != "" {
		go func() {
			entry.Infof("status server listening on %s", cfg.StatusAddr)
			if err := http.ListenAndServe(cfg.StatusAddr, p.Status.Handler()); err != nil {
				entry.WithError(err).Error("status server stopped")
			}
		}()
	}

	if os.Getenv("ALERTMESH_AUTO_EMIT") != "" {
		p.Originator.StartAutoEmitter()
		entry.Info("background disaster emitter started")
	}

	select {}
}
