// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"os"

	"github.com/juju/cartd/cmd"
)

const cartdDoc = `
cartd watches removable media for carts and trusts a cart only when its
manifest carries a valid signature from an identity listed in the trust
store's allowed_signers file.
`

// NewCartdCommand returns the cartd super command with its subcommands
// registered.
func NewCartdCommand() *cmd.SuperCommand {
	sc := cmd.NewSuperCommand(cmd.SuperCommandParams{
		Name:    "cartd",
		Purpose: "cart trust verification daemon",
		Doc:     cartdDoc,
		Default: "run",
	})
	sc.Register(NewRunCommand())
	sc.Register(NewVerifyCommand())
	return sc
}

// Main runs cartd with args and returns the exit code.
func Main(args []string) int {
	ctx, err := cmd.DefaultContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return NewCartdCommand().Main(ctx, args[1:])
}

func main() {
	os.Exit(Main(os.Args))
}
