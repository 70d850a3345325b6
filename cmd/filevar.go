// Copyright 2012 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"io"
	"os"

	"github.com/juju/errors"
)

// FileVar represents a path to a file.
type FileVar struct {
	Path string
}

// Set stores the chosen path name in f.Path.
func (f *FileVar) Set(v string) error {
	f.Path = v
	return nil
}

// Open returns a io.ReadCloser to the file relative to the context.
func (f *FileVar) Open(ctx *Context) (io.ReadCloser, error) {
	if f.Path == "" {
		return nil, errors.New("path not set")
	}
	return os.Open(ctx.AbsPath(f.Path))
}

// IsSet reports whether a path was given.
func (f *FileVar) IsSet() bool {
	return f.Path != ""
}

// String returns the path to the file.
func (f *FileVar) String() string {
	return f.Path
}
