// Copyright 2014 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	gc "gopkg.in/check.v1"

	"github.com/juju/cartd/cmd"
)

// Context returns a command context rooted at dir whose output is
// captured in memory.
func Context(c *gc.C, dir string) *cmd.Context {
	return &cmd.Context{
		Dir:    dir,
		Stdin:  strings.NewReader(""),
		Stdout: &bytes.Buffer{},
		Stderr: &bytes.Buffer{},
	}
}

// Stdout returns the captured standard output of ctx.
func Stdout(ctx *cmd.Context) string {
	return ctx.Stdout.(*bytes.Buffer).String()
}

// Stderr returns the captured standard error of ctx.
func Stderr(ctx *cmd.Context) string {
	return ctx.Stderr.(*bytes.Buffer).String()
}

// RunCommand parses args on com and runs it in a context created by
// Context, returning the context and the exit code.
func RunCommand(c *gc.C, com cmd.Command, dir string, args ...string) (*cmd.Context, int) {
	ctx := Context(c, dir)
	code := cmd.Main(com, ctx, args)
	return ctx, code
}

// HelpText returns the usage text of command.
func HelpText(command cmd.Command) string {
	var buf bytes.Buffer
	cmd.PrintUsage(command, &buf)
	return buf.String()
}

// NullContext returns a context that discards all output.
func NullContext(c *gc.C) *cmd.Context {
	ctx := Context(c, c.MkDir())
	ctx.Stdout = io.Discard
	ctx.Stderr = io.Discard
	return ctx
}

type bytesToStringChecker struct {
	*gc.CheckerInfo
}

// BytesToStringMatch matches a []byte against a regular expression.
var BytesToStringMatch gc.Checker = &bytesToStringChecker{
	&gc.CheckerInfo{Name: "BytesToStringMatch", Params: []string{"obtained", "expected"}},
}

func (c *bytesToStringChecker) Check(params []interface{}, names []string) (bool, string) {
	data, ok := params[0].([]byte)
	if !ok {
		return false, "obtained value is not a []byte"
	}
	expr, ok := params[1].(string)
	if !ok {
		return false, "expected value is not a string"
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return false, "cannot compile regexp: " + err.Error()
	}
	return re.Match(data), ""
}
