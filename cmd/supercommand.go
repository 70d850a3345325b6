// Copyright 2012 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
)

// SuperCommandParams provides a way to have default parameter to the
// NewSuperCommand call.
type SuperCommandParams struct {
	Name    string
	Purpose string
	Doc     string

	// Default is the subcommand run when none is named.
	Default string
}

// SuperCommand is a Command that selects a subcommand and assumes its
// properties; any command line arguments that were not used in selecting
// the subcommand are passed down to it.
type SuperCommand struct {
	params   SuperCommandParams
	subcmds  map[string]Command
	subcmd   Command
	flagArgs []string
}

// NewSuperCommand creates and initializes a new SuperCommand.
func NewSuperCommand(params SuperCommandParams) *SuperCommand {
	return &SuperCommand{
		params:  params,
		subcmds: make(map[string]Command),
	}
}

// Register makes a subcommand available for use on the command line.
func (c *SuperCommand) Register(subcmd Command) {
	name := subcmd.Info().Name
	if _, found := c.subcmds[name]; found {
		panic(fmt.Sprintf("command already registered: %q", name))
	}
	c.subcmds[name] = subcmd
}

// Info returns a description of the currently selected subcommand, or of
// the SuperCommand itself if no subcommand has been specified.
func (c *SuperCommand) Info() *Info {
	if c.subcmd != nil {
		info := *c.subcmd.Info()
		info.Name = fmt.Sprintf("%s %s", c.params.Name, info.Name)
		return &info
	}
	return &Info{
		Name:    c.params.Name,
		Args:    "<command> ...",
		Purpose: c.params.Purpose,
		Doc:     strings.TrimSpace(c.params.Doc + "\n\n" + c.describeCommands()),
	}
}

func (c *SuperCommand) describeCommands() string {
	names := make([]string, 0, len(c.subcmds))
	for name := range c.subcmds {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := []string{"commands:"}
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("    %-10s - %s", name, c.subcmds[name].Info().Purpose))
	}
	return strings.Join(lines, "\n")
}

// SetFlags adds the selected subcommand's flags.
func (c *SuperCommand) SetFlags(f *gnuflag.FlagSet) {
	if c.subcmd != nil {
		c.subcmd.SetFlags(f)
	}
}

// Init selects the subcommand named by the first argument and
// initializes it with the remaining arguments.
func (c *SuperCommand) Init(args []string) error {
	if c.subcmd != nil {
		return c.subcmd.Init(args)
	}
	return errors.New("no command specified")
}

// Select chooses the subcommand from args and returns the arguments it
// should parse.
func (c *SuperCommand) Select(args []string) ([]string, error) {
	name := c.params.Default
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if name == "" {
		return nil, errors.New("no command specified")
	}
	subcmd, found := c.subcmds[name]
	if !found {
		return nil, errors.Errorf("unrecognized command: %s %s", c.params.Name, name)
	}
	c.subcmd = subcmd
	return args, nil
}

// Run executes the subcommand that was selected in Init.
func (c *SuperCommand) Run(ctx *Context) error {
	if c.subcmd == nil {
		return errors.New("no command selected")
	}
	return c.subcmd.Run(ctx)
}

// Main selects a subcommand from args and runs it, returning the exit
// code.
func (c *SuperCommand) Main(ctx *Context, args []string) int {
	if len(args) > 0 && (args[0] == "help" || args[0] == "--help" || args[0] == "-h") {
		PrintUsage(c, ctx.Stdout)
		return 0
	}
	rest, err := c.Select(args)
	if err != nil {
		fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		PrintUsage(c, ctx.Stderr)
		return 2
	}
	return Main(c, ctx, rest)
}
