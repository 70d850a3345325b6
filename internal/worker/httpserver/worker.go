// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package httpserver provides a worker serving the daemon's prometheus
// metrics and a read-only view of the tracked carts and trust store.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/tomb.v2"

	"github.com/juju/cartd/core/cart"
)

// CartSource lists the carts currently tracked.
type CartSource interface {
	Records() []cart.Record
}

// TrustStatus describes the trust store.
type TrustStatus interface {
	Len() int
	Err() error
	LoadedAt() time.Time
}

// Config holds the dependencies and configuration of the worker.
type Config struct {
	// ListenAddress is the TCP address to serve on.
	ListenAddress string

	Gatherer prometheus.Gatherer
	Carts    CartSource
	Trust    TrustStatus
	Logger   Logger

	// Listen defaults to net.Listen.
	Listen func(network, address string) (net.Listener, error)

	// ShutdownTimeout bounds how long in-flight requests may take to
	// complete once the worker is killed.
	ShutdownTimeout time.Duration
}

// Validate returns an error if the config cannot be used to start the
// worker.
func (c Config) Validate() error {
	if c.ListenAddress == "" {
		return errors.NotValidf("empty ListenAddress")
	}
	if c.Gatherer == nil {
		return errors.NotValidf("nil Gatherer")
	}
	if c.Carts == nil {
		return errors.NotValidf("nil Carts")
	}
	if c.Trust == nil {
		return errors.NotValidf("nil Trust")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.ShutdownTimeout < 0 {
		return errors.NotValidf("negative ShutdownTimeout")
	}
	return nil
}

// Worker serves HTTP until killed.
type Worker struct {
	tomb     tomb.Tomb
	config   Config
	listener net.Listener
	server   *http.Server
}

// NewWorker starts listening on the configured address and returns a
// worker serving requests on it.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	listen := config.Listen
	if listen == nil {
		listen = net.Listen
	}
	listener, err := listen("tcp", config.ListenAddress)
	if err != nil {
		return nil, errors.Annotatef(err, "listening on %q", config.ListenAddress)
	}

	w := &Worker{
		config:   config,
		listener: listener,
	}
	w.server = &http.Server{
		Handler:           w.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Addr returns the address the worker is serving on.
func (w *Worker) Addr() net.Addr {
	return w.listener.Addr()
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.tomb.Wait()
}

func (w *Worker) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(w.config.Gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/carts", &cartsHandler{source: w.config.Carts, logger: w.config.Logger})
	mux.Handle("/trust", &trustHandler{status: w.config.Trust, logger: w.config.Logger})
	return mux
}

func (w *Worker) loop() error {
	served := make(chan error, 1)
	go func() {
		served <- w.server.Serve(w.listener)
	}()
	w.config.Logger.Infof("serving introspection on %s", w.listener.Addr())

	select {
	case <-w.tomb.Dying():
	case err := <-served:
		if err != http.ErrServerClosed {
			return errors.Annotate(err, "serving introspection")
		}
		return nil
	}

	ctx := context.Background()
	if w.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ShutdownTimeout)
		defer cancel()
	}
	if err := w.server.Shutdown(ctx); err != nil {
		w.config.Logger.Warningf("forcing introspection server closed: %v", err)
		_ = w.server.Close()
	}
	<-served
	return tomb.ErrDying
}
