// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/juju/cartd/cmd"
	"github.com/juju/cartd/core/cart"
	"github.com/juju/cartd/internal/config"
	"github.com/juju/cartd/internal/daemon"
	"github.com/juju/cartd/internal/trust"
)

const verifyDoc = `
Verify the cart mounted at --mount once against the trust store and print
the decision. The exit code is 0 only when the cart is trusted.
`

// VerifyCommand checks a single mounted cart without running the daemon.
type VerifyCommand struct {
	mountPath string
	trustDir  string
	out       cmd.Output

	clock clock.Clock
}

// NewVerifyCommand returns a VerifyCommand using the wall clock.
func NewVerifyCommand() *VerifyCommand {
	return &VerifyCommand{clock: clock.WallClock}
}

// VerifyResult is the printed outcome of a verification.
type VerifyResult struct {
	MountPath string         `yaml:"mount-path" json:"mount-path"`
	State     string         `yaml:"state" json:"state"`
	Reason    string         `yaml:"reason,omitempty" json:"reason,omitempty"`
	Error     string         `yaml:"error,omitempty" json:"error,omitempty"`
	Signer    string         `yaml:"signer,omitempty" json:"signer,omitempty"`
	Manifest  map[string]any `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	DecidedAt time.Time      `yaml:"decided-at" json:"decided-at"`
}

func (c *VerifyCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "verify",
		Purpose: "verify a mounted cart once",
		Doc:     verifyDoc,
	}
}

func (c *VerifyCommand) SetFlags(f *gnuflag.FlagSet) {
	f.StringVar(&c.mountPath, "mount", "", "directory the cart is mounted at")
	f.StringVar(&c.trustDir, "trust-dir", config.DefaultTrustDir, "directory holding allowed_signers")
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

func (c *VerifyCommand) Init(args []string) error {
	if c.mountPath == "" {
		return errors.New("--mount is required")
	}
	return cmd.CheckEmpty(args)
}

func (c *VerifyCommand) Run(ctx *cmd.Context) error {
	store, err := trust.Load(filepath.Join(ctx.AbsPath(c.trustDir), trust.AllowListFile))
	if err != nil {
		return errors.Annotate(err, "loading trust store")
	}
	r := daemon.Check(ctx.AbsPath(c.mountPath), store, c.clock)
	if err := c.out.Write(ctx, verifyResult(r)); err != nil {
		return errors.Trace(err)
	}
	if r.State != cart.Trusted {
		return cmd.ErrSilent
	}
	return nil
}

func verifyResult(r cart.Record) VerifyResult {
	result := VerifyResult{
		MountPath: r.MountPath,
		State:     r.State.String(),
		Reason:    string(r.Reason),
		Signer:    r.Signer,
		DecidedAt: r.VerifiedAt,
	}
	if r.Err != nil {
		result.Error = r.Err.Error()
	}
	if r.Manifest != nil {
		result.Manifest = r.Manifest.Data
	}
	return result
}
