// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config holds the daemon configuration read from its YAML file.
package config

import (
	"bytes"
	"io"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/juju/cartd/internal/trust"
)

const (
	// DefaultPath is where the daemon looks for its config file.
	DefaultPath = "/etc/cartd/cartd.yaml"

	// DefaultTrustDir holds the allow-list.
	DefaultTrustDir = "/etc/cart_trust"
)

// DefaultMediaRoots are the directories desktop and headless automounters
// mount removable media below.
var DefaultMediaRoots = []string{"/media", "/run/media", "/mnt"}

// Config is the daemon configuration.
type Config struct {
	// TrustDir holds the allowed_signers allow-list.
	TrustDir string `yaml:"trust-dir"`

	// MediaRoots are the directories carts are mounted below.
	MediaRoots []string `yaml:"media-roots"`

	// RemovableOnly ignores mounts not backed by removable media.
	RemovableOnly bool `yaml:"removable-only"`

	// Debounce is how long device changes settle before the mount table
	// is read.
	Debounce time.Duration `yaml:"debounce"`

	// RescanInterval is how often the mount table is read regardless of
	// change notifications. Zero disables it.
	RescanInterval time.Duration `yaml:"rescan-interval"`

	// LocateAttempts bounds the attempts to read a cart's files from
	// slow media.
	LocateAttempts int           `yaml:"locate-attempts"`
	LocateDelay    time.Duration `yaml:"locate-delay"`
	LocateMaxDelay time.Duration `yaml:"locate-max-delay"`

	// ReloadInterval is how often the trust store is reloaded regardless
	// of change notifications. Zero disables it.
	ReloadInterval time.Duration `yaml:"reload-interval"`

	// MetricsAddress is the address serving /metrics, /carts and /trust.
	// Empty disables the HTTP server.
	MetricsAddress string `yaml:"metrics-address"`

	// LoggingConfig is a loggo specification.
	LoggingConfig string `yaml:"logging-config"`

	// Journal sends logs to the systemd journal when it is available.
	Journal bool `yaml:"journal"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		TrustDir:       DefaultTrustDir,
		MediaRoots:     append([]string(nil), DefaultMediaRoots...),
		RemovableOnly:  true,
		Debounce:       500 * time.Millisecond,
		RescanInterval: time.Minute,
		LocateAttempts: 10,
		LocateDelay:    500 * time.Millisecond,
		LocateMaxDelay: 2 * time.Second,
		ReloadInterval: 5 * time.Minute,
		LoggingConfig:  "<root>=INFO",
		Journal:        true,
	}
}

// AllowListPath returns the location of the allow-list.
func (c Config) AllowListPath() string {
	return filepath.Join(c.TrustDir, trust.AllowListFile)
}

// Validate returns an error if the daemon cannot run with c.
func (c Config) Validate() error {
	if c.TrustDir == "" {
		return errors.NotValidf("empty trust-dir")
	}
	if !filepath.IsAbs(c.TrustDir) {
		return errors.NotValidf("relative trust-dir %q", c.TrustDir)
	}
	if len(c.MediaRoots) == 0 {
		return errors.NotValidf("empty media-roots")
	}
	for _, root := range c.MediaRoots {
		if !filepath.IsAbs(root) {
			return errors.NotValidf("relative media root %q", root)
		}
	}
	if c.Debounce < 0 {
		return errors.NotValidf("negative debounce")
	}
	if c.RescanInterval < 0 {
		return errors.NotValidf("negative rescan-interval")
	}
	if c.LocateAttempts < 1 {
		return errors.NotValidf("locate-attempts %d", c.LocateAttempts)
	}
	if c.LocateDelay <= 0 {
		return errors.NotValidf("non-positive locate-delay")
	}
	if c.LocateMaxDelay < c.LocateDelay {
		return errors.NotValidf("locate-max-delay %v below locate-delay %v", c.LocateMaxDelay, c.LocateDelay)
	}
	if c.ReloadInterval < 0 {
		return errors.NotValidf("negative reload-interval")
	}
	return nil
}

// Parse reads a config from YAML. Keys not present keep their default
// value; unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.NotValidf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// ReadFrom reads a config file from r. The name identifies the file in
// errors.
func ReadFrom(r io.Reader, name string) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Annotate(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "config %q", name)
	}
	return cfg, nil
}
