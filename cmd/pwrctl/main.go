package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danmuck/pwrapi/internal/logging"
	"github.com/danmuck/pwrapi/internal/object"
	"github.com/danmuck/pwrapi/internal/plugins"
	"github.com/danmuck/pwrapi/internal/plugins/builtin"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
	"github.com/danmuck/pwrapi/internal/system"
	"github.com/spf13/pflag"
)

const usage = `usage: pwrctl [flags] <command> [args]

commands:
  get <attr>...            read attributes
  set <attr> <value>       write one attribute
  start-log <attr>         begin sampling an attribute
  stop-log <attr>          stop sampling an attribute
  samples <attr>           read logged samples (see --period, --count, --start)
  plugins                  list built-in device plugins

flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pwrctl: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	set      *pflag.FlagSet
	config   string
	object   string
	timeout  time.Duration
	period   float64
	count    uint32
	start    uint64
	logLevel string
}

func newFlags() *flags {
	f := &flags{set: pflag.NewFlagSet("pwrctl", pflag.ContinueOnError)}
	f.set.StringVarP(&f.config, "config", "c", "pwrdaemon.toml", "daemon config file (TOML) naming the topology")
	f.set.StringVarP(&f.object, "object", "o", "", "object name (default: topology root)")
	f.set.DurationVar(&f.timeout, "timeout", 30*time.Second, "overall request timeout")
	f.set.Float64Var(&f.period, "period", 1, "seconds between samples")
	f.set.Uint32Var(&f.count, "count", 10, "number of samples")
	f.set.Uint64Var(&f.start, "start", 0, "first sample time in ns since epoch (0: oldest)")
	f.set.StringVar(&f.logLevel, "log-level", "warn", "trace, debug, info, warn, or error")
	f.set.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		f.set.PrintDefaults()
	}
	return f
}

func run(args []string, out io.Writer) error {
	logging.ConfigureRuntime()

	f := newFlags()
	if err := f.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if !logging.Level(f.logLevel) {
		return fmt.Errorf("unknown log level %q", f.logLevel)
	}
	rest := f.set.Args()
	if len(rest) == 0 {
		f.set.Usage()
		return errors.New("missing command")
	}
	if rest[0] == "plugins" {
		return listPlugins(builtin.Registry(), out)
	}

	opts, err := system.LoadOptions(f.config)
	if err != nil {
		return err
	}
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	// The client owns nothing and serves nobody.
	cfg.Peer = ""
	cfg.Listen = ""

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	sys, err := system.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer sys.Close()

	name := f.object
	if name == "" {
		name = cfg.Provider.Root()
	}
	obj, ok := sys.Object(name)
	if !ok {
		return fmt.Errorf("unknown object %q", name)
	}
	return execute(ctx, obj, f, rest, out)
}

func execute(ctx context.Context, obj *object.DistObject, f *flags, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "get":
		return get(ctx, obj, rest, out)
	case "set":
		if len(rest) != 2 {
			return errors.New("set needs <attr> <value>")
		}
		name, err := pwr.ParseAttrName(rest[0])
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(rest[1], 64)
		if err != nil {
			return fmt.Errorf("parse value: %w", err)
		}
		if err := obj.SetValue(ctx, name, v); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s = %g\n", obj.Name(), name, v)
		return nil
	case "start-log", "stop-log":
		if len(rest) != 1 {
			return fmt.Errorf("%s needs <attr>", cmd)
		}
		name, err := pwr.ParseAttrName(rest[0])
		if err != nil {
			return err
		}
		if cmd == "start-log" {
			return obj.StartLog(ctx, name)
		}
		return obj.StopLog(ctx, name)
	case "samples":
		if len(rest) != 1 {
			return errors.New("samples needs <attr>")
		}
		name, err := pwr.ParseAttrName(rest[0])
		if err != nil {
			return err
		}
		values := make([]float64, f.count)
		start, n, err := obj.GetSamples(ctx, name, pwr.Time(f.start), f.period, f.count, values)
		if err != nil {
			return err
		}
		step := time.Duration(f.period * float64(time.Second))
		for i := uint32(0); i < n; i++ {
			ts := start.Time().Add(time.Duration(i) * step)
			fmt.Fprintf(out, "%s %s %s %g\n", obj.Name(), name, ts.Format(time.RFC3339Nano), values[i])
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func get(ctx context.Context, obj *object.DistObject, args []string, out io.Writer) error {
	if len(args) == 0 {
		args = attrNames(obj)
	}
	names := make([]pwr.AttrName, 0, len(args))
	for _, raw := range args {
		name, err := pwr.ParseAttrName(raw)
		if err != nil {
			return err
		}
		names = append(names, name)
	}
	values := make([]float64, len(names))
	times := make([]pwr.Time, len(names))
	status := request.NewStatus()
	err := obj.GetValues(ctx, names, values, times, status)
	if err != nil && !errors.Is(err, request.ErrStatus) && !errors.Is(err, request.ErrChannelLost) {
		return err
	}
	failed := make(map[pwr.AttrName]bool)
	for _, e := range status.Entries() {
		failed[e.Name] = true
	}
	for i, name := range names {
		if failed[name] {
			continue
		}
		fmt.Fprintf(out, "%s %s %g %s\n", obj.Name(), name, values[i], times[i].Time().Format(time.RFC3339Nano))
	}
	for _, e := range status.Entries() {
		fmt.Fprintf(out, "%s %s error: %s\n", e.Object, e.Name, e.Code)
	}
	return err
}

func listPlugins(r *plugins.Registry, out io.Writer) error {
	for _, m := range r.Catalog() {
		fmt.Fprintf(out, "%-8s %-16s %s\n", m.ID, m.Name, m.Description)
	}
	return nil
}

func attrNames(obj *object.DistObject) []string {
	attrs := obj.Attrs()
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.String()
	}
	return out
}
