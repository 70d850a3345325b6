// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import "strings"

// StringsValue is a gnuflag.Value collecting every occurrence of a
// repeatable flag. Comma separated values are split.
type StringsValue struct {
	target *[]string
	set    bool
}

// NewStringsValue returns a StringsValue writing to target, which keeps
// defaultValue until the flag is first given.
func NewStringsValue(defaultValue []string, target *[]string) *StringsValue {
	*target = defaultValue
	return &StringsValue{target: target}
}

// Set appends s to the collected values. The first call discards the
// defaults.
func (v *StringsValue) Set(s string) error {
	if !v.set {
		*v.target = nil
		v.set = true
	}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*v.target = append(*v.target, part)
		}
	}
	return nil
}

// IsSet reports whether the flag was given.
func (v *StringsValue) IsSet() bool {
	return v.set
}

// String returns the values joined by commas.
func (v *StringsValue) String() string {
	if v.target == nil {
		return ""
	}
	return strings.Join(*v.target, ",")
}
