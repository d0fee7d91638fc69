package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"discoball-controller/internal/agent"
	"discoball-controller/internal/config"
)

// These variables will be set by the build script
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath = "discoball.toml"
	logLevel   = ""
	dryRun     = false
)

func init() {
	pflag.StringVarP(&configPath, "config", "c", configPath, "configuration file (.toml or .json)")
	pflag.StringVarP(&logLevel, "log-level", "l", logLevel, "log level, overrides the config file")
	pflag.BoolVarP(&dryRun, "dry-run", "n", dryRun, "use in-memory drivers instead of hardware")
}

func main() {
	pflag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	log.Info().Str("version", version).Str("commit", commit).Str("built", date).Msg("starting disco ball controller")

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("controller failed")
	}
	log.Info().Msg("controller shut down gracefully")
}

func run() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "log level %q", level)
	}
	logger := log.Logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := agent.NewAgent(cfg, agent.Options{DryRun: dryRun, Version: version}, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create agent")
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "agent failed")
	}
	return nil
}
