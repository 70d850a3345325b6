// Copyright 2012 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmd is a small command framework over gnuflag: commands
// describe themselves with Info, declare their flags, validate their
// arguments and run in a Context.
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
)

// ErrSilent can be returned from Run to signal that Main should exit with
// code 1 without producing error output.
const ErrSilent = errors.ConstError("cmd: error out silently")

// Info holds everything necessary to describe a Command's intent and usage.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string

	// Doc is the long documentation for the Command.
	Doc string
}

// Usage combines Name and Args to describe the Command's intended usage.
func (i *Info) Usage() string {
	if i.Args == "" {
		return i.Name + " [options]"
	}
	return fmt.Sprintf("%s [options] %s", i.Name, i.Args)
}

// Command is implemented by types that interpret command-line arguments.
type Command interface {
	// Info returns information about the command.
	Info() *Info

	// SetFlags adds command specific flags to the flag set.
	SetFlags(f *gnuflag.FlagSet)

	// Init initializes the command from the positional arguments left
	// after flag parsing.
	Init(args []string) error

	// Run executes the command.
	Run(ctx *Context) error
}

// NewFlagSet returns a FlagSet initialized for use with c.
func NewFlagSet(c Command, output io.Writer) *gnuflag.FlagSet {
	f := gnuflag.NewFlagSet(c.Info().Name, gnuflag.ContinueOnError)
	f.SetOutput(output)
	f.Usage = func() {}
	c.SetFlags(f)
	return f
}

// PrintUsage writes usage information for c to w.
func PrintUsage(c Command, w io.Writer) {
	i := c.Info()
	fmt.Fprintf(w, "usage: %s\n", i.Usage())
	if i.Purpose != "" {
		fmt.Fprintf(w, "purpose: %s\n", i.Purpose)
	}
	f := NewFlagSet(c, w)
	var hasFlags bool
	f.VisitAll(func(*gnuflag.Flag) { hasFlags = true })
	if hasFlags {
		fmt.Fprintf(w, "\noptions:\n")
		f.PrintDefaults()
	}
	if i.Doc != "" {
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(i.Doc))
	}
}

// Parse parses args on c. This must be called before c is Run. Errors
// are returned, not written.
func Parse(c Command, ctx *Context, args []string) error {
	f := NewFlagSet(c, io.Discard)
	if err := f.Parse(true, args); err != nil {
		return err
	}
	return c.Init(f.Args())
}

// CheckEmpty is a utility function that returns an error if args is not
// empty.
func CheckEmpty(args []string) error {
	if len(args) != 0 {
		return errors.Errorf("unrecognized args: %q", args)
	}
	return nil
}

// Main parses args on c and runs it, returning the process exit code:
// 0 on success, 1 when Run fails and 2 for usage errors.
func Main(c Command, ctx *Context, args []string) int {
	if err := Parse(c, ctx, args); err != nil {
		if err == gnuflag.ErrHelp {
			PrintUsage(c, ctx.Stdout)
			return 0
		}
		fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		PrintUsage(c, ctx.Stderr)
		return 2
	}
	if err := c.Run(ctx); err != nil {
		if err != ErrSilent {
			fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		}
		return 1
	}
	return 0
}
