// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cart

const (
	// ManifestFile is the name of the manifest at the root of a cart.
	ManifestFile = "cart.yaml"

	// SignatureFile is the name of the detached signature over
	// ManifestFile.
	SignatureFile = ManifestFile + ".sig"

	// Namespace is the signature namespace carts are signed under.
	Namespace = "cart"
)

// Manifest is the parsed description of a trusted cart. The schema of
// Data belongs to whatever consumes trusted carts.
type Manifest struct {
	// Version is the manifest schema version.
	Version int

	// Data holds every top level key of the manifest, including version.
	Data map[string]any
}

// Get returns the top level value stored under key.
func (m Manifest) Get(key string) (any, bool) {
	v, ok := m.Data[key]
	return v, ok
}

// String returns the string stored under key, if any.
func (m Manifest) String(key string) (string, bool) {
	v, ok := m.Data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
