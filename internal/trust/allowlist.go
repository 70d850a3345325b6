// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package trust

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"golang.org/x/crypto/ssh"

	"github.com/juju/cartd/core/cart"
)

// maxLineLength bounds a single allow-list line.
const maxLineLength = 64 * 1024

// ParseAllowList reads allowed signers in the format accepted by
// ssh-keygen -Y verify:
//
//	principals [options] keytype base64 [comment]
//
// Only entries whose principals include namespace (or "*") and whose
// namespaces option, if any, includes namespace are returned, in file
// order. Any malformed line fails the whole parse.
func ParseAllowList(r io.Reader, namespace string) ([]SignerIdentity, error) {
	var (
		identities []SignerIdentity
		seen       = set.NewStrings()
		lineNum    int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, applies, err := parseEntry(line, namespace)
		if err != nil {
			return nil, errors.Annotatef(cart.ErrTrustStore, "line %d: %v", lineNum, err)
		}
		if !applies {
			continue
		}
		key := string(id.Key.Marshal())
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		identities = append(identities, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotatef(cart.ErrTrustStore, "reading allow-list: %v", err)
	}
	if len(identities) == 0 {
		return nil, errors.Annotatef(cart.ErrTrustStore, "no signers for namespace %q", namespace)
	}
	return identities, nil
}

func parseEntry(line, namespace string) (SignerIdentity, bool, error) {
	principals, rest, err := nextToken(line)
	if err != nil {
		return SignerIdentity{}, false, errors.Trace(err)
	}
	if rest == "" {
		return SignerIdentity{}, false, errors.New("missing public key")
	}

	key, comment, options, trailing, err := ssh.ParseAuthorizedKey([]byte(rest))
	if err != nil {
		return SignerIdentity{}, false, errors.Annotate(err, "invalid public key")
	}
	if len(trailing) != 0 {
		return SignerIdentity{}, false, errors.New("unexpected data after public key")
	}
	if _, ok := key.(*ssh.Certificate); ok {
		return SignerIdentity{}, false, errors.New("certificates are not supported")
	}

	id := SignerIdentity{
		Label: comment,
		Key:   key,
	}
	if id.Label == "" {
		id.Label = principals
	}

	applies := matchPrincipals(principals, namespace)
	for _, opt := range options {
		name, value, hasValue := strings.Cut(opt, "=")
		value = strings.Trim(value, `"`)
		switch strings.ToLower(name) {
		case "namespaces":
			if !hasValue {
				return SignerIdentity{}, false, errors.New("namespaces option needs a value")
			}
			if !set.NewStrings(strings.Split(value, ",")...).Contains(namespace) {
				applies = false
			}
		case "valid-after":
			if id.ValidAfter, err = parseSSHTime(value); err != nil {
				return SignerIdentity{}, false, errors.Annotate(err, "valid-after")
			}
		case "valid-before":
			if id.ValidBefore, err = parseSSHTime(value); err != nil {
				return SignerIdentity{}, false, errors.Annotate(err, "valid-before")
			}
		default:
			return SignerIdentity{}, false, errors.Errorf("unsupported option %q", name)
		}
	}
	if !id.ValidAfter.IsZero() && !id.ValidBefore.IsZero() && !id.ValidBefore.After(id.ValidAfter) {
		return SignerIdentity{}, false, errors.New("valid-before is not after valid-after")
	}
	return id, applies, nil
}

func matchPrincipals(principals, namespace string) bool {
	for _, p := range strings.Split(principals, ",") {
		if p == namespace || p == "*" {
			return true
		}
	}
	return false
}

// nextToken splits the first whitespace separated token, which may be
// double quoted, from s.
func nextToken(s string) (string, string, error) {
	s = strings.TrimLeft(s, " \t")
	if strings.HasPrefix(s, `"`) {
		end := strings.Index(s[1:], `"`)
		if end < 0 {
			return "", "", errors.New("unterminated quote")
		}
		token := s[1 : end+1]
		rest := s[end+2:]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			return "", "", errors.New("missing space after quoted principals")
		}
		return token, strings.TrimSpace(rest), nil
	}
	token, rest, _ := strings.Cut(s, " ")
	if i := strings.IndexByte(token, '\t'); i >= 0 {
		rest = token[i+1:] + " " + rest
		token = token[:i]
	}
	return token, strings.TrimSpace(rest), nil
}

// parseSSHTime parses the YYYYMMDD[HHMM[SS]][Z] timestamps used by
// allowed_signers validity options. Without a trailing Z the time is
// local.
func parseSSHTime(value string) (time.Time, error) {
	loc := time.Local
	if strings.HasSuffix(value, "Z") || strings.HasSuffix(value, "z") {
		loc = time.UTC
		value = value[:len(value)-1]
	}
	var layout string
	switch len(value) {
	case 8:
		layout = "20060102"
	case 12:
		layout = "200601021504"
	case 14:
		layout = "20060102150405"
	default:
		return time.Time{}, errors.NotValidf("timestamp %q", value)
	}
	t, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, errors.NewNotValid(err, fmt.Sprintf("timestamp %q", value))
	}
	return t, nil
}
