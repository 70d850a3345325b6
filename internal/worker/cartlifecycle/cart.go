// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cartlifecycle

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/retry"
	"gopkg.in/tomb.v2"

	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/manifest"
)

// cartWorker drives one cart from Detected to a terminal state. It is
// the only writer of its record.
type cartWorker struct {
	tomb   tomb.Tomb
	config Config

	// generation is the controller's reload count when the worker
	// started. untrusted is told about a trust store rejection so that a
	// reload racing with it is not missed.
	generation uint64
	untrusted  func(generation uint64)

	mu       sync.Mutex
	record   cart.Record
	detached bool
}

func newCartWorker(config Config, ev cart.DeviceEvent, generation uint64, untrusted func(uint64)) *cartWorker {
	w := &cartWorker{
		config:     config,
		record:     cart.NewRecord(ev),
		generation: generation,
		untrusted:  untrusted,
	}
	w.tomb.Go(w.run)
	return w
}

// Kill is part of the worker.Worker interface.
func (w *cartWorker) Kill() {
	w.tomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *cartWorker) Wait() error {
	return w.tomb.Wait()
}

// Record returns a copy of the cart's record.
func (w *cartWorker) Record() cart.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.record
}

// detach stops the worker. Nothing is emitted for the cart afterwards,
// even by a verification already under way.
func (w *cartWorker) detach() {
	w.mu.Lock()
	w.detached = true
	w.mu.Unlock()
	w.Kill()
}

func (w *cartWorker) run() error {
	path := w.Record().MountPath
	logger := w.config.Logger

	bundle, err := w.locate(path)
	if retry.IsRetryStopped(err) {
		logger.Debugf("cart %s: abandoned while waiting for files", path)
		return tomb.ErrDying
	} else if err != nil {
		w.reject(err)
		return nil
	}

	w.update(func(r *cart.Record) {
		r.State = cart.Verifying
	})
	id, err := w.config.Verifier.Verify(bundle.Manifest, bundle.Signature)
	if err != nil {
		w.reject(err)
		return nil
	}

	m, err := w.config.Parse(bundle.Manifest)
	if err != nil {
		w.reject(err)
		return nil
	}

	w.finish(func(r *cart.Record) {
		r.Trust(m, id.Label, w.config.Clock.Now())
	})
	return nil
}

// locate looks for the cart's files, retrying with backoff while the
// failure may be transient. The record stays Detected meanwhile.
func (w *cartWorker) locate(path string) (manifest.Bundle, error) {
	var bundle manifest.Bundle
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			bundle, err = w.config.Locate(path)
			w.update(func(r *cart.Record) {
				r.Attempts++
				r.Err = err
				r.Reason = cart.ReasonOf(err)
			})
			return err
		},
		IsFatalError: func(err error) bool {
			return !cart.IsRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			w.config.Logger.Debugf("cart %s: attempt %d: %v", path, attempt, err)
		},
		Attempts:    w.config.LocateAttempts,
		Delay:       w.config.LocateDelay,
		MaxDelay:    w.config.LocateMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       w.config.Clock,
		Stop:        w.tomb.Dying(),
	})
	if retry.IsAttemptsExceeded(err) {
		err = retry.LastError(err)
	}
	return bundle, errors.Trace(err)
}

func (w *cartWorker) reject(err error) {
	w.finish(func(r *cart.Record) {
		r.Reject(err, w.config.Clock.Now())
	})
}

func (w *cartWorker) update(f func(*cart.Record)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f(&w.record)
}

// finish applies the terminal transition and announces it, unless the
// cart has been detached.
func (w *cartWorker) finish(f func(*cart.Record)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f(&w.record)

	record := w.record
	if err := record.Validate(); err != nil {
		w.config.Logger.Errorf("cart %s: %v", record.MountPath, err)
	}
	if w.detached {
		w.config.Logger.Debugf("cart %s: detached before %s, not announcing", record.MountPath, record.State)
		return
	}

	switch record.State {
	case cart.Trusted:
		w.config.Logger.Infof("cart %s trusted, signed by %s", record.MountPath, record.Signer)
	case cart.Rejected:
		w.config.Logger.Warningf("cart %s rejected (%s): %v", record.MountPath, record.Reason, record.Err)
	}
	event := cart.EventFromRecord(record)
	w.config.Hub.Publish(event.Topic(), event)

	if record.Reason == cart.ReasonTrustStoreUnavailable && w.untrusted != nil {
		w.untrusted(w.generation)
	}
}
