// Package eventlog implements the append-only per-peer audit log of
// spec.md §6: one line per dispatched event, timestamped and tagged with
// the Lamport clock value that observed it.
package eventlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const bufferSize = 256

type entry struct {
	lamport     int64
	description string
}

// Writer is an EventRecorder (internal/dispatcher.EventRecorder) that
// appends to peer-<port>-<region>.log without ever blocking the
// dispatcher: Record enqueues onto a buffered channel and drops the event,
// logging a warning, if the buffer is full (spec §1, observability is
// best-effort).
type Writer struct {
	path   string
	events chan entry
	done   chan struct{}
	log    *logrus.Entry
}

// New opens (creating if needed) peer-<port>-<region>.log under dir and
// starts the background writer goroutine. Call Close to flush and stop it.
func New(dir string, port int, region string, log *logrus.Entry) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	name := fmt.Sprintf("peer-%d-%s.log", port, region)
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening event log %s", path)
	}

	w := &Writer{
		path:   path,
		events: make(chan entry, bufferSize),
		done:   make(chan struct{}),
		log:    log,
	}
	go w.run(f)
	return w, nil
}

// Record implements dispatcher.EventRecorder. Non-blocking: a full buffer
// drops the event rather than stalling the caller.
func (w *Writer) Record(lamport int64, description string) {
	select {
	case w.events <- entry{lamport: lamport, description: description}:
	default:
		if w.log != nil {
			w.log.WithField("event", description).Warn("event log buffer full, dropping entry")
		}
	}
}

// Close stops accepting new events, flushes the buffer, and closes the
// underlying file.
func (w *Writer) Close() {
	close(w.events)
	<-w.done
}

func (w *Writer) run(f *os.File) {
	defer close(w.done)
	defer f.Close()

	for e := range w.events {
		line := fmt.Sprintf("[LC:%d] %s %s\n", e.lamport, time.Now().Format(time.RFC3339), e.description)
		if _, err := f.WriteString(line); err != nil && w.log != nil {
			w.log.WithError(err).Warn("failed to write event log entry")
		}
	}
}
