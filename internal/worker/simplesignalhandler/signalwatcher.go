// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package simplesignalhandler provides a worker that stops with an error
// chosen by the first signal it receives.
package simplesignalhandler

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"
)

// ErrTerminated is the default error a signal watcher stops with.
const ErrTerminated = errors.ConstError("terminated by signal")

// Logger represents the methods used by the worker to log details.
type Logger interface {
	Infof(string, ...interface{})
}

// SignalHandlerFunc returns the error the watcher stops with for the
// received signal.
type SignalHandlerFunc func(os.Signal) error

// SignalWatcher is the worker responsible for watching signals and
// returning the appropriate error from a handler.
type SignalWatcher struct {
	catacomb catacomb.Catacomb
	handler  SignalHandlerFunc
	logger   Logger
	sigCh    <-chan os.Signal
}

// NewSignalWatcher constructs a new signal watcher worker with the
// specified signal channel and handler func.
func NewSignalWatcher(
	logger Logger,
	sig <-chan os.Signal,
	handler SignalHandlerFunc,
) (*SignalWatcher, error) {
	s := &SignalWatcher{
		handler: handler,
		logger:  logger,
		sigCh:   sig,
	}

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &s.catacomb,
		Work: s.watch,
	}); err != nil {
		return nil, errors.Annotate(err, "creating catacomb plan")
	}
	return s, nil
}

// SignalHandler maps signals onto errors, falling back to defaultErr.
func SignalHandler(defaultErr error, signalMap map[os.Signal]error) SignalHandlerFunc {
	return func(sig os.Signal) error {
		if err, exists := signalMap[sig]; exists {
			return err
		}
		return defaultErr
	}
}

// Kill implements worker.Kill.
func (s *SignalWatcher) Kill() {
	s.catacomb.Kill(nil)
}

// Wait implements worker.Wait.
func (s *SignalWatcher) Wait() error {
	return s.catacomb.Wait()
}

func (s *SignalWatcher) watch() error {
	select {
	case sig, ok := <-s.sigCh:
		if !ok {
			return errors.New("signal channel closed unexpectedly")
		}
		s.logger.Infof("received %v, shutting down", sig)
		return s.handler(sig)
	case <-s.catacomb.Dying():
		return s.catacomb.ErrDying()
	}
}
