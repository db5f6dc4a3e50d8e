// Package peerconfig loads peer startup configuration from a YAML file,
// with flag and environment overrides for the port and region, per
// spec §4.8.
package peerconfig

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// PeerEntry is one row of the configured peer set: another peer this node
// dials to broadcast REQUEST/REPLY/RELEASE, PREPARE/COMMIT/ABORT, and
// alert traffic.
type PeerEntry struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Region string `yaml:"region"`
}

// Config is one peer's full startup configuration.
type Config struct {
	Port   int         `yaml:"port"`
	Region string      `yaml:"region"`
	Peers  []PeerEntry `yaml:"peers"`

	// EventLogDir is the directory the event log adapter writes
	// peer-<port>-<region>.log into. Empty disables the event log.
	EventLogDir string `yaml:"event_log_dir"`

	// StatusAddr is the listen address for the read-only status server,
	// e.g. ":8080". Empty disables the status server.
	StatusAddr string `yaml:"status_addr"`
}

// Load reads a YAML config file from path, then applies flag and
// environment overrides for port and region. fs lets callers pass a
// dedicated flag.FlagSet (tests construct their own to avoid colliding
// with flag.CommandLine); pass nil to register on flag.CommandLine. Flags
// are parsed from args only; a nil args skips flag parsing entirely.
func Load(path string, fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}

	if fs == nil {
		fs = flag.CommandLine
	}
	portFlag := fs.Int("port", 0, "override this peer's listen port")
	regionFlag := fs.String("region", "", "override this peer's region")
	if args != nil {
		if err := fs.Parse(args); err != nil {
			return cfg, errors.Wrap(err, "parsing flags")
		}
	}

	if *portFlag != 0 {
		cfg.Port = *portFlag
	}
	if *regionFlag != "" {
		cfg.Region = *regionFlag
	}

	if v := os.Getenv("ALERTMESH_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "ALERTMESH_PORT=%q is not a valid port", v)
		}
		cfg.Port = p
	}
	if v := os.Getenv("ALERTMESH_REGION"); v != "" {
		cfg.Region = v
	}

	if cfg.Port == 0 {
		return cfg, errors.New("peer port is required (config file, -port, or ALERTMESH_PORT)")
	}
	if cfg.Region == "" {
		return cfg, errors.New("peer region is required (config file, -region, or ALERTMESH_REGION)")
	}

	return cfg, nil
}

// ParsePeerList parses the manual "host:port:region,host:port:region" peer
// list format described in spec.md §6, used as an alternative to the YAML
// peers: block for quick manual wiring.
func ParsePeerList(raw string) ([]PeerEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var out []PeerEntry
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("peer entry %q must be host:port:region", entry)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "peer entry %q has invalid port", entry)
		}
		out = append(out, PeerEntry{Host: parts[0], Port: port, Region: strings.ToUpper(parts[2])})
	}
	return out, nil
}

// PeerPorts extracts just the ports from the configured peer set, the
// shape the mutex and 2PC engines need.
func (c Config) PeerPorts() []int {
	ports := make([]int, 0, len(c.Peers))
	for _, p := range c.Peers {
		ports = append(ports, p.Port)
	}
	return ports
}
