// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package trust holds the set of signer identities allowed to sign cart
// manifests. The set is read from an administrator owned allow-list and
// replaced atomically on reload; a list that fails to load leaves the
// store refusing every lookup until a later reload succeeds.
package trust

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/juju/cartd/core/cart"
)

// AllowListFile is the name of the allow-list inside the trust directory.
const AllowListFile = "allowed_signers"

// snapshot is an immutable view of the allow-list at one load.
type snapshot struct {
	identities []SignerIdentity
	keys       map[string]struct{}
	err        error
	loadedAt   time.Time
}

// Store is the in-memory trust store. It is safe for concurrent use;
// Reload is the only writer.
type Store struct {
	path      string
	namespace string
	clock     clock.Clock
	current   atomic.Pointer[snapshot]
}

// NewStore returns a store for the allow-list at path that has not been
// loaded yet. Until Reload succeeds every lookup fails.
func NewStore(path string, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	s := &Store{
		path:      path,
		namespace: cart.Namespace,
		clock:     clk,
	}
	s.current.Store(&snapshot{
		err: errors.Annotatef(cart.ErrTrustStore, "allow-list %q not loaded", path),
	})
	return s
}

// Load reads the allow-list at path and returns a store holding it.
func Load(path string) (*Store, error) {
	s := NewStore(path, nil)
	if err := s.Reload(); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

// Path returns the location of the allow-list.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the allow-list and installs its contents in one step.
// On failure the store fails closed and the error is returned.
func (s *Store) Reload() error {
	snap := s.read()
	s.current.Store(snap)
	return snap.err
}

func (s *Store) read() *snapshot {
	now := s.clock.Now()
	f, err := os.Open(s.path)
	if err != nil {
		return &snapshot{
			err:      errors.Annotatef(cart.ErrTrustStore, "opening allow-list: %v", err),
			loadedAt: now,
		}
	}
	defer func() { _ = f.Close() }()

	identities, err := ParseAllowList(f, s.namespace)
	if err != nil {
		return &snapshot{
			err:      errors.Annotatef(err, "allow-list %q", s.path),
			loadedAt: now,
		}
	}
	keys := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		keys[string(id.Key.Marshal())] = struct{}{}
	}
	return &snapshot{
		identities: identities,
		keys:       keys,
		loadedAt:   now,
	}
}

// Identities returns the trusted identities in allow-list order, or the
// error of the last load.
func (s *Store) Identities() ([]SignerIdentity, error) {
	snap := s.current.Load()
	if snap.err != nil {
		return nil, snap.err
	}
	out := make([]SignerIdentity, len(snap.identities))
	copy(out, snap.identities)
	return out, nil
}

// Contains reports whether the key of id is trusted. A failed store
// contains nothing.
func (s *Store) Contains(id SignerIdentity) bool {
	if id.Key == nil {
		return false
	}
	snap := s.current.Load()
	if snap.err != nil {
		return false
	}
	_, ok := snap.keys[string(id.Key.Marshal())]
	return ok
}

// Err returns the error of the last load, if it failed.
func (s *Store) Err() error {
	return s.current.Load().err
}

// LoadedAt returns when the last load was attempted.
func (s *Store) LoadedAt() time.Time {
	return s.current.Load().loadedAt
}

// Len returns the number of trusted identities.
func (s *Store) Len() int {
	return len(s.current.Load().identities)
}
