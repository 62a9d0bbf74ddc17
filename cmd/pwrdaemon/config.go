package main

import (
	"os"
	"strings"

	"github.com/danmuck/pwrapi/internal/system"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "pwrdaemon.toml"

type flags struct {
	set      *pflag.FlagSet
	config   string
	peer     string
	listen   string
	topology string
	source   string
	logLevel string
}

func newFlags() *flags {
	f := &flags{set: pflag.NewFlagSet("pwrdaemon", pflag.ContinueOnError)}
	f.set.StringVarP(&f.config, "config", "c", defaultConfigPath, "daemon config file (TOML)")
	f.set.StringVar(&f.peer, "peer", "", "this daemon's peer name in the topology")
	f.set.StringVar(&f.listen, "listen", "", "address to accept peers on")
	f.set.StringVar(&f.topology, "topology", "", "topology file")
	f.set.StringVar(&f.source, "topology-source", "", "file, hwprobe, or snapshot")
	f.set.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn, or error")
	return f
}

// options loads the config file, when present, and lets explicit flags win.
// A missing default config file is not an error.
func (f *flags) options() (system.Options, error) {
	opts := system.DefaultOptions()
	if _, err := os.Stat(f.config); err == nil || f.set.Changed("config") {
		loaded, err := system.LoadOptions(f.config)
		if err != nil {
			return system.Options{}, err
		}
		opts = loaded
	}
	if f.set.Changed("peer") {
		opts.Peer = strings.TrimSpace(f.peer)
	}
	if f.set.Changed("listen") {
		opts.Listen = strings.TrimSpace(f.listen)
	}
	if f.set.Changed("topology") {
		opts.Topology = strings.TrimSpace(f.topology)
	}
	if f.set.Changed("topology-source") {
		opts.TopologySource = strings.ToLower(strings.TrimSpace(f.source))
	}
	if f.set.Changed("log-level") {
		opts.LogLevel = strings.TrimSpace(f.logLevel)
	}
	return opts, nil
}
