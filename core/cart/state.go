// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cart

// State is the lifecycle state of a tracked cart. A cart with no record is
// idle; there is no explicit idle state.
type State string

const (
	// Detected is the state of a freshly attached cart whose files are
	// being located.
	Detected State = "detected"

	// Verifying is the state of a cart whose signature is being checked.
	Verifying State = "verifying"

	// Trusted is the terminal state of a cart whose manifest verified and
	// parsed.
	Trusted State = "trusted"

	// Rejected is the terminal state of a cart that failed any step.
	Rejected State = "rejected"
)

// IsTerminal reports whether no further transitions happen from s until
// the cart is detached.
func (s State) IsTerminal() bool {
	return s == Trusted || s == Rejected
}

// String returns the state name.
func (s State) String() string {
	return string(s)
}
