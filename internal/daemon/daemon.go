// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package daemon runs every worker of cartd under one catacomb: the
// device monitor feeds the cart lifecycle controller, which verifies
// carts against the trust store kept fresh by the trust reloader.
package daemon

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/core/watcher"
	"github.com/juju/cartd/internal/config"
	"github.com/juju/cartd/internal/metrics"
	"github.com/juju/cartd/internal/sshsig"
	"github.com/juju/cartd/internal/trust"
	"github.com/juju/cartd/internal/worker/cartlifecycle"
	"github.com/juju/cartd/internal/worker/devicemonitor"
	"github.com/juju/cartd/internal/worker/filenotifywatcher"
	"github.com/juju/cartd/internal/worker/httpserver"
	"github.com/juju/cartd/internal/worker/simplesignalhandler"
	"github.com/juju/cartd/internal/worker/trustreloader"
	"github.com/juju/cartd/service/systemd"
)

var logger = loggo.GetLogger("cartd.daemon")

// Notifier reports the daemon's state to the service manager.
type Notifier interface {
	Ready(status string)
	Stopping()
	Status(format string, args ...interface{})
}

// Config holds the configuration and the replaceable dependencies of
// the daemon.
type Config struct {
	config.Config

	Clock clock.Clock

	// Hub carries cart outcomes and trust reloads. A new hub is created
	// when nil.
	Hub *pubsub.SimpleHub

	// Reload triggers a trust store reload on every signal.
	Reload <-chan os.Signal

	// Terminate stops the daemon with simplesignalhandler.ErrTerminated.
	Terminate <-chan os.Signal

	// Notifier is told when the daemon is ready and stopping. Optional.
	Notifier Notifier

	// WatchdogInterval is the service manager's watchdog timeout. Zero
	// disables watchdog pings. Requires a *systemd.Notifier.
	WatchdogInterval time.Duration

	// MountSource lists cart candidates. It defaults to the kernel
	// mount table below the media roots.
	MountSource devicemonitor.MountSource

	// NewMountWatcher defaults to devicemonitor.NewMountTableWatcher.
	NewMountWatcher func() (watcher.NotifyWatcher, error)

	// NewFileWatcher defaults to filenotifywatcher.NewWatcher.
	NewFileWatcher filenotifywatcher.WatcherFn
}

// Validate returns an error if the daemon cannot start with c.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.WatchdogInterval < 0 {
		return errors.NotValidf("negative WatchdogInterval")
	}
	if c.WatchdogInterval > 0 {
		if _, ok := c.Notifier.(*systemd.Notifier); !ok {
			return errors.NotValidf("watchdog without a systemd Notifier")
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Hub == nil {
		c.Hub = pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: loggo.GetLogger("cartd.hub"),
		})
	}
	if c.MountSource == nil {
		c.MountSource = devicemonitor.NewMountTable(c.MediaRoots, c.RemovableOnly)
	}
	if c.NewMountWatcher == nil {
		c.NewMountWatcher = devicemonitor.NewMountTableWatcher
	}
	if c.NewFileWatcher == nil {
		c.NewFileWatcher = filenotifywatcher.NewWatcher
	}
	return c
}

// Daemon runs the cartd workers until killed or until one of them fails.
type Daemon struct {
	catacomb catacomb.Catacomb
	config   Config

	store    *trust.Store
	registry *prometheus.Registry

	mu         sync.Mutex
	controller *cartlifecycle.Controller
	monitor    *devicemonitor.Worker
	http       *httpserver.Worker
}

// New starts a daemon.
func New(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	cfg = cfg.withDefaults()

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Trace(err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, errors.Trace(err)
	}

	d := &Daemon{
		config:   cfg,
		store:    trust.NewStore(cfg.AllowListPath(), cfg.Clock),
		registry: registry,
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &d.catacomb,
		Work: d.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}

// Kill is part of the worker.Worker interface.
func (d *Daemon) Kill() {
	d.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (d *Daemon) Wait() error {
	return d.catacomb.Wait()
}

// Hub returns the hub cart outcomes are published on.
func (d *Daemon) Hub() *pubsub.SimpleHub {
	return d.config.Hub
}

// Records returns the carts currently tracked.
func (d *Daemon) Records() []cart.Record {
	d.mu.Lock()
	controller := d.controller
	d.mu.Unlock()
	if controller == nil {
		return nil
	}
	return controller.Records()
}

// Report returns the state of the daemon's workers.
func (d *Daemon) Report() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	report := map[string]interface{}{
		"trust": map[string]interface{}{
			"path":       d.store.Path(),
			"identities": d.store.Len(),
		},
	}
	if err := d.store.Err(); err != nil {
		report["trust"].(map[string]interface{})["error"] = err.Error()
	}
	if d.controller != nil {
		report["controller"] = d.controller.Report()
	}
	if d.monitor != nil {
		report["monitor"] = d.monitor.Report()
	}
	if d.http != nil {
		report["http"] = d.http.Addr().String()
	}
	return report
}

// HTTPAddr returns the address the introspection server listens on, or
// the empty string when it is disabled or not yet started.
func (d *Daemon) HTTPAddr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.http == nil {
		return ""
	}
	return d.http.Addr().String()
}

func (d *Daemon) loop() error {
	cfg := d.config

	collector := metrics.NewCollector()
	if err := d.registry.Register(collector); err != nil {
		return errors.Trace(err)
	}
	unsubscribe := collector.Subscribe(cfg.Hub)
	defer unsubscribe()
	updateStatus := func() {}
	if cfg.Notifier != nil {
		var unsubscribeStatus func()
		updateStatus, unsubscribeStatus = d.notifyStatus(cfg.Notifier)
		defer unsubscribeStatus()
	}

	d.loadTrust()

	if cfg.Terminate != nil {
		handler, err := simplesignalhandler.NewSignalWatcher(
			loggo.GetLogger("cartd.signals"), cfg.Terminate,
			simplesignalhandler.SignalHandler(simplesignalhandler.ErrTerminated, nil),
		)
		if err != nil {
			return errors.Trace(err)
		}
		if err := d.catacomb.Add(handler); err != nil {
			return errors.Trace(err)
		}
	}

	fnw, err := filenotifywatcher.NewWorker(filenotifywatcher.WorkerConfig{
		Logger:     loggo.GetLogger("cartd.filenotifywatcher"),
		NewWatcher: cfg.NewFileWatcher,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.catacomb.Add(fnw); err != nil {
		return errors.Trace(err)
	}
	changes := fnw.(filenotifywatcher.FileNotifyWatcher)

	reloader, err := trustreloader.NewWorker(trustreloader.Config{
		Store:             d.store,
		Hub:               cfg.Hub,
		Clock:             cfg.Clock,
		Logger:            loggo.GetLogger("cartd.trustreloader"),
		FileNotifyWatcher: changes,
		Signals:           cfg.Reload,
		Interval:          cfg.ReloadInterval,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.catacomb.Add(reloader); err != nil {
		return errors.Trace(err)
	}

	monitor, err := devicemonitor.NewWorker(devicemonitor.Config{
		Source:            cfg.MountSource,
		MediaRoots:        cfg.MediaRoots,
		FileNotifyWatcher: changes,
		NewMountWatcher:   cfg.NewMountWatcher,
		Clock:             cfg.Clock,
		Logger:            loggo.GetLogger("cartd.devicemonitor"),
		Debounce:          cfg.Debounce,
		RescanInterval:    cfg.RescanInterval,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.catacomb.Add(monitor); err != nil {
		return errors.Trace(err)
	}

	controller, err := cartlifecycle.NewController(cartlifecycle.Config{
		Devices:        monitor,
		Verifier:       sshsig.NewVerifier(d.store, cfg.Clock),
		Hub:            cfg.Hub,
		Clock:          cfg.Clock,
		Logger:         loggo.GetLogger("cartd.cartlifecycle"),
		LocateAttempts: cfg.LocateAttempts,
		LocateDelay:    cfg.LocateDelay,
		LocateMaxDelay: cfg.LocateMaxDelay,
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.catacomb.Add(controller); err != nil {
		return errors.Trace(err)
	}

	d.mu.Lock()
	d.monitor = monitor
	d.controller = controller
	d.mu.Unlock()

	if cfg.MetricsAddress != "" {
		server, err := httpserver.NewWorker(httpserver.Config{
			ListenAddress:   cfg.MetricsAddress,
			Gatherer:        d.registry,
			Carts:           controller,
			Trust:           d.store,
			Logger:          loggo.GetLogger("cartd.httpserver"),
			ShutdownTimeout: 5 * time.Second,
		})
		if err != nil {
			return errors.Trace(err)
		}
		if err := d.catacomb.Add(server); err != nil {
			return errors.Trace(err)
		}
		d.mu.Lock()
		d.http = server
		d.mu.Unlock()
	}

	if err := d.startWatchdog(); err != nil {
		return errors.Trace(err)
	}

	if cfg.Notifier != nil {
		cfg.Notifier.Ready(fmt.Sprintf("watching %d media roots", len(cfg.MediaRoots)))
		defer cfg.Notifier.Stopping()
	}
	updateStatus()
	logger.Infof("cartd started, trusting %d signers from %s", d.store.Len(), d.store.Path())

	<-d.catacomb.Dying()
	logger.Infof("cartd stopping")
	return d.catacomb.ErrDying()
}

// loadTrust performs the initial load of the trust store. A failed load
// leaves the store failing closed; the reloader retries it.
func (d *Daemon) loadTrust() {
	err := d.store.Reload()
	if err != nil {
		logger.Errorf("trust store unavailable, refusing all carts: %v", err)
	}
	d.config.Hub.Publish(cart.TrustReloadedTopic, cart.TrustReload{
		Identities: d.store.Len(),
		Err:        err,
		Time:       d.config.Clock.Now(),
	})
}

func (d *Daemon) startWatchdog() error {
	if d.config.WatchdogInterval == 0 {
		return nil
	}
	w, err := systemd.NewWatchdog(systemd.WatchdogConfig{
		Notifier: d.config.Notifier.(*systemd.Notifier),
		Clock:    d.config.Clock,
		Interval: d.config.WatchdogInterval,
	})
	if err != nil {
		return errors.Trace(err)
	}
	return d.catacomb.Add(w)
}

// notifyStatus keeps the service manager's status line current with the
// outcome counts of the attached carts. The returned update func sends
// the current counts.
func (d *Daemon) notifyStatus(notifier Notifier) (func(), func()) {
	update := func() {
		var trusted, rejected int
		for _, r := range d.Records() {
			switch r.State {
			case cart.Trusted:
				trusted++
			case cart.Rejected:
				rejected++
			}
		}
		notifier.Status("%d trusted, %d rejected carts attached", trusted, rejected)
	}
	handler := func(string, interface{}) { update() }
	unsubs := []func(){
		d.config.Hub.Subscribe(cart.VerifiedTopic, handler),
		d.config.Hub.Subscribe(cart.RejectedTopic, handler),
	}
	return update, func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

var _ worker.Worker = (*Daemon)(nil)
