// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"
	"github.com/juju/worker/v4"

	"github.com/juju/cartd/cmd"
	"github.com/juju/cartd/internal/config"
	"github.com/juju/cartd/internal/daemon"
	"github.com/juju/cartd/internal/logger"
	"github.com/juju/cartd/internal/worker/simplesignalhandler"
	"github.com/juju/cartd/service/systemd"
)

var runLogger = loggo.GetLogger("cartd.cmd")

const runDoc = `
Run the daemon in the foreground. Settings are read from the config file
and may be overridden by flags. SIGHUP reloads the trust store; SIGINT
and SIGTERM stop the daemon.
`

// RunCommand runs the daemon until it is stopped by a signal or fails.
type RunCommand struct {
	configFile     cmd.FileVar
	trustDir       string
	mediaRoots     []string
	mediaRootsFlag *cmd.StringsValue
	metricsAddress string
	loggingConfig  string
	noJournal      bool

	// Replaceable for tests.
	defaultConfigPath string
	configureLogging  func(logger.Config) (bool, error)
	underSystemd      func() bool
	notify            systemd.NotifyFunc
	watchdogInterval  func() (time.Duration, error)
	newDaemon         func(daemon.Config) (worker.Worker, error)
	signals           func(reload, terminate chan<- os.Signal) (stop func())
}

// NewRunCommand returns a RunCommand wired to the real daemon.
func NewRunCommand() *RunCommand {
	return &RunCommand{
		defaultConfigPath: config.DefaultPath,
		configureLogging:  logger.Configure,
		underSystemd:      systemd.IsRunning,
		watchdogInterval:  systemd.WatchdogInterval,
		newDaemon: func(cfg daemon.Config) (worker.Worker, error) {
			return daemon.New(cfg)
		},
		signals: notifySignals,
	}
}

func notifySignals(reload, terminate chan<- os.Signal) func() {
	signal.Notify(reload, syscall.SIGHUP)
	signal.Notify(terminate, syscall.SIGINT, syscall.SIGTERM)
	return func() {
		signal.Stop(reload)
		signal.Stop(terminate)
	}
}

func (c *RunCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "run",
		Purpose: "run the cart trust daemon",
		Doc:     runDoc,
	}
}

func (c *RunCommand) SetFlags(f *gnuflag.FlagSet) {
	c.configFile.Path = c.defaultConfigPath
	f.Var(&c.configFile, "config", "path to the config file")
	f.StringVar(&c.trustDir, "trust-dir", "", "directory holding allowed_signers")
	c.mediaRootsFlag = cmd.NewStringsValue(nil, &c.mediaRoots)
	f.Var(c.mediaRootsFlag, "media-root", "directory below which carts are mounted (repeatable)")
	f.StringVar(&c.metricsAddress, "metrics-address", "", "address serving /metrics, /carts and /trust")
	f.StringVar(&c.loggingConfig, "logging-config", "", "loggo logging specification")
	f.BoolVar(&c.noJournal, "no-journal", false, "log to stderr even when the journal is available")
}

func (c *RunCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// readConfig loads the config file and applies the flag overrides. The
// default config file may be missing.
func (c *RunCommand) readConfig(ctx *cmd.Context) (config.Config, error) {
	cfg, err := c.readConfigFile(ctx)
	if err != nil {
		return config.Config{}, errors.Trace(err)
	}
	if c.trustDir != "" {
		cfg.TrustDir = ctx.AbsPath(c.trustDir)
	}
	if c.mediaRootsFlag != nil && c.mediaRootsFlag.IsSet() {
		cfg.MediaRoots = nil
		for _, root := range c.mediaRoots {
			cfg.MediaRoots = append(cfg.MediaRoots, ctx.AbsPath(root))
		}
	}
	if c.metricsAddress != "" {
		cfg.MetricsAddress = c.metricsAddress
	}
	if c.loggingConfig != "" {
		cfg.LoggingConfig = c.loggingConfig
	}
	if c.noJournal {
		cfg.Journal = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Trace(err)
	}
	return cfg, nil
}

func (c *RunCommand) readConfigFile(ctx *cmd.Context) (config.Config, error) {
	r, err := c.configFile.Open(ctx)
	if os.IsNotExist(err) && c.configFile.Path == c.defaultConfigPath {
		runLogger.Debugf("no config file at %q, using defaults", c.configFile.Path)
		return config.Default(), nil
	} else if err != nil {
		return config.Config{}, errors.Annotate(err, "reading config")
	}
	defer r.Close()
	return config.ReadFrom(r, ctx.AbsPath(c.configFile.Path))
}

func (c *RunCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.readConfig(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	journal, err := c.configureLogging(logger.Config{
		Spec:    cfg.LoggingConfig,
		Journal: cfg.Journal,
		Output:  ctx.Stderr,
	})
	if err != nil {
		return errors.Trace(err)
	}
	runLogger.Debugf("logging to journal: %v", journal)

	var (
		notifier daemon.Notifier
		interval time.Duration
	)
	if c.underSystemd() {
		notifier = systemd.NewNotifier(c.notify, loggo.GetLogger("cartd.systemd"))
		if interval, err = c.watchdogInterval(); err != nil {
			runLogger.Warningf("watchdog disabled: %v", err)
			interval = 0
		}
	}

	reload := make(chan os.Signal, 1)
	terminate := make(chan os.Signal, 1)
	stop := c.signals(reload, terminate)
	defer stop()

	d, err := c.newDaemon(daemon.Config{
		Config:           cfg,
		Clock:            clock.WallClock,
		Reload:           reload,
		Terminate:        terminate,
		Notifier:         notifier,
		WatchdogInterval: interval,
	})
	if err != nil {
		return errors.Annotate(err, "starting daemon")
	}
	runLogger.Infof("cartd started, trust store %q", cfg.AllowListPath())

	err = d.Wait()
	if errors.Is(err, simplesignalhandler.ErrTerminated) {
		runLogger.Infof("cartd stopped")
		return nil
	}
	return errors.Trace(err)
}
