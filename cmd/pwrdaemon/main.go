package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/pwrapi/internal/logging"
	"github.com/danmuck/pwrapi/internal/system"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "pwrdaemon: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logging.ConfigureRuntime()

	flags := newFlags()
	if err := flags.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	opts, err := flags.options()
	if err != nil {
		return err
	}
	if opts.LogLevel != "" && !logging.Level(opts.LogLevel) {
		return fmt.Errorf("unknown log level %q", opts.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	sys, err := system.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer sys.Close()

	logger := logging.Component("pwrdaemon")
	logger.Info().Str("peer", opts.Peer).Str("listen", opts.Listen).Msg("serving")
	err = sys.Serve(ctx)
	logger.Info().Msg("shutdown")
	return err
}
