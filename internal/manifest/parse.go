// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package manifest

import (
	"bytes"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/juju/cartd/core/cart"
)

// Parse interprets verified manifest bytes. The document must be a single
// mapping with an integer version of at least 1.
func Parse(data []byte) (cart.Manifest, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return cart.Manifest{}, errors.Annotatef(cart.ErrManifestMalformed, "decoding: %v", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return cart.Manifest{}, errors.Annotate(cart.ErrManifestMalformed, "more than one document")
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return cart.Manifest{}, errors.Annotate(cart.ErrManifestMalformed, "not a mapping")
	}

	var fields map[string]any
	if err := doc.Content[0].Decode(&fields); err != nil {
		return cart.Manifest{}, errors.Annotatef(cart.ErrManifestMalformed, "decoding: %v", err)
	}
	raw, ok := fields["version"]
	if !ok {
		return cart.Manifest{}, errors.Annotate(cart.ErrManifestMalformed, "missing version")
	}
	version, ok := raw.(int)
	if !ok {
		return cart.Manifest{}, errors.Annotatef(cart.ErrManifestMalformed, "version %v is not an integer", raw)
	}
	if version < 1 {
		return cart.Manifest{}, errors.Annotatef(cart.ErrManifestMalformed, "version %d not supported", version)
	}
	return cart.Manifest{
		Version: version,
		Data:    fields,
	}, nil
}
