package system

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pwrapi/internal/config"
	"github.com/danmuck/pwrapi/internal/plugins/builtin"
	"github.com/danmuck/pwrapi/internal/transport"
	"github.com/rs/zerolog/log"
)

// Topology sources.
const (
	SourceFile     = "file"
	SourceProbe    = "hwprobe"
	SourceSnapshot = "snapshot"
)

var ErrUnknownSource = errors.New("system: unknown topology source")

// Options are the daemon settings read from its TOML config file.
type Options struct {
	Peer            string
	Listen          string
	Topology        string
	TopologySource  string
	Snapshot        string
	SysRoot         string
	ProbeLib        string
	ProbeInit       string
	ConnectAttempts int
	ConnectInterval time.Duration
	MaxPayloadBytes uint64
	RingSize        int
	LogLevel        string
}

func DefaultOptions() Options {
	def := transport.DefaultConfig()
	return Options{
		Topology:        "topology.toml",
		TopologySource:  SourceFile,
		ConnectAttempts: def.ConnectAttempts,
		ConnectInterval: def.RetryInterval,
		MaxPayloadBytes: def.Limits.MaxPayloadBytes,
	}
}

type fileOptions struct {
	Peer            string `toml:"peer"`
	Listen          string `toml:"listen"`
	Topology        string `toml:"topology"`
	TopologySource  string `toml:"topology_source"`
	Snapshot        string `toml:"snapshot"`
	SysRoot         string `toml:"sysfs_root"`
	ProbeLib        string `toml:"probe_lib"`
	ProbeInit       string `toml:"probe_init"`
	ConnectAttempts int    `toml:"connect_attempts"`
	ConnectInterval string `toml:"connect_interval"`
	MaxPayloadBytes int64  `toml:"max_payload_bytes"`
	RingSize        int    `toml:"ring_size"`
	LogLevel        string `toml:"log_level"`
}

// LoadOptions overlays the keys defined in path onto DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	var raw fileOptions
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Options{}, fmt.Errorf("load daemon config: %w", err)
	}

	if meta.IsDefined("peer") {
		opts.Peer = strings.TrimSpace(raw.Peer)
	}
	if meta.IsDefined("listen") {
		opts.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("topology") {
		opts.Topology = strings.TrimSpace(raw.Topology)
	}
	if meta.IsDefined("topology_source") {
		opts.TopologySource = strings.ToLower(strings.TrimSpace(raw.TopologySource))
	}
	if meta.IsDefined("snapshot") {
		opts.Snapshot = strings.TrimSpace(raw.Snapshot)
	}
	if meta.IsDefined("sysfs_root") {
		opts.SysRoot = strings.TrimSpace(raw.SysRoot)
	}
	if meta.IsDefined("probe_lib") {
		opts.ProbeLib = strings.TrimSpace(raw.ProbeLib)
	}
	if meta.IsDefined("probe_init") {
		opts.ProbeInit = strings.TrimSpace(raw.ProbeInit)
	}
	if meta.IsDefined("connect_attempts") {
		opts.ConnectAttempts = raw.ConnectAttempts
	}
	if meta.IsDefined("connect_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectInterval))
		if err != nil {
			return Options{}, fmt.Errorf("parse connect_interval: %w", err)
		}
		opts.ConnectInterval = d
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 {
			return Options{}, fmt.Errorf("max_payload_bytes must be positive, got %d", raw.MaxPayloadBytes)
		}
		opts.MaxPayloadBytes = uint64(raw.MaxPayloadBytes)
	}
	if meta.IsDefined("ring_size") {
		opts.RingSize = raw.RingSize
	}
	if meta.IsDefined("log_level") {
		opts.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return opts, nil
}

// Transport builds the connection settings.
func (o Options) Transport() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.ConnectAttempts = o.ConnectAttempts
	cfg.RetryInterval = o.ConnectInterval
	if o.MaxPayloadBytes > 0 {
		cfg.Limits.MaxPayloadBytes = o.MaxPayloadBytes
	}
	return cfg
}

// Provider loads the topology from the configured source. A probed
// topology is written to Snapshot when one is set.
func (o Options) Provider() (config.Provider, error) {
	switch o.TopologySource {
	case "", SourceFile:
		return config.LoadFile(o.Topology)
	case SourceSnapshot:
		return config.LoadSnapshot(o.Snapshot)
	case SourceProbe:
		popts := config.DefaultProbeOptions()
		if o.SysRoot != "" {
			popts.SysRoot = o.SysRoot
		}
		if o.ProbeLib != "" {
			popts.Lib = o.ProbeLib
		}
		popts.Init = o.ProbeInit
		topo, err := config.Probe(popts)
		if err != nil {
			return nil, err
		}
		if o.Snapshot != "" {
			if err := config.SaveSnapshot(o.Snapshot, topo); err != nil {
				return nil, err
			}
			log.Info().Str("path", o.Snapshot).Msg("system.Options wrote probe snapshot")
		}
		return topo, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, o.TopologySource)
	}
}

// Config resolves the provider and returns the System config with the
// built-in plugins.
func (o Options) Config() (Config, error) {
	prov, err := o.Provider()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Peer:      o.Peer,
		Listen:    o.Listen,
		Provider:  prov,
		Plugins:   builtin.Registry(),
		Transport: o.Transport(),
		RingSize:  o.RingSize,
	}, nil
}
