// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package manifest retrieves a cart's manifest and signature from its
// mount, and interprets manifest bytes once they have been verified.
package manifest

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/juju/cartd/core/cart"
)

// MaxFileSize is the largest manifest or signature that will be read.
const MaxFileSize = 1 << 20

// Bundle holds the raw bytes read from a cart. Manifest has not been
// interpreted in any way.
type Bundle struct {
	Manifest  []byte
	Signature []byte
}

// Locate reads cart.yaml and cart.yaml.sig from the root of mountPath.
// Each file is read exactly once.
func Locate(mountPath string) (Bundle, error) {
	manifest, err := readFile(filepath.Join(mountPath, cart.ManifestFile), cart.ErrManifestMissing)
	if err != nil {
		return Bundle{}, errors.Trace(err)
	}
	sig, err := readFile(filepath.Join(mountPath, cart.SignatureFile), cart.ErrSignatureMissing)
	if err != nil {
		return Bundle{}, errors.Trace(err)
	}
	return Bundle{
		Manifest:  manifest,
		Signature: sig,
	}, nil
}

func readFile(path string, missing error) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Annotatef(missing, "%s", path)
	} else if err != nil {
		return nil, errors.Annotatef(cart.ErrIO, "opening %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Annotatef(cart.ErrIO, "stat %s: %v", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Annotatef(cart.ErrIO, "%s is not a regular file", path)
	}
	if info.Size() > MaxFileSize {
		return nil, errors.Annotatef(cart.ErrIO, "%s is larger than %d bytes", path, MaxFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, errors.Annotatef(cart.ErrIO, "reading %s: %v", path, err)
	}
	if len(data) > MaxFileSize {
		return nil, errors.Annotatef(cart.ErrIO, "%s is larger than %d bytes", path, MaxFileSize)
	}
	return data, nil
}
