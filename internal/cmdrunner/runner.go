// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmdrunner runs external programs (hook tools, package managers,
// service bootstrap commands) and turns a non-zero exit into an error that
// carries the program's stderr.
package cmdrunner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/kballard/go-shellquote"
)

var logger = loggo.GetLogger("cloudkitty.cmdrunner")

// Command describes a single program invocation.
type Command struct {
	Name string
	Args []string

	// Env holds extra KEY=value pairs added to the current environment.
	Env []string

	// Stdin, if not nil, is fed to the program.
	Stdin []byte

	// Quiet stops the command itself being logged. Commands run while
	// writing log entries must set it.
	Quiet bool
}

// String returns the command as it would be typed into a shell.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.Name}, c.Args...)...)
}

// Runner runs commands.
type Runner interface {
	// Run runs the command to completion and returns its standard output.
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// New returns a Runner that executes programs on the local machine.
func New() Runner {
	return execRunner{}
}

type execRunner struct{}

// Run is part of the Runner interface.
func (execRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	if !cmd.Quiet {
		logger.Tracef("running %s", cmd)
	}
	ps := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if len(cmd.Env) > 0 {
		ps.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		ps.Stdin = bytes.NewReader(cmd.Stdin)
	}
	var stdout, stderr bytes.Buffer
	ps.Stdout = &stdout
	ps.Stderr = &stderr
	if err := ps.Run(); err != nil {
		return stdout.Bytes(), NewExitError(cmd, strings.TrimSpace(stderr.String()), err)
	}
	return stdout.Bytes(), nil
}

// ExitError is returned when a command could not be started or exited
// with a non-zero status.
type ExitError struct {
	Command Command
	Stderr  string
	err     error
}

// NewExitError returns an ExitError for cmd failing with err.
func NewExitError(cmd Command, stderr string, err error) *ExitError {
	return &ExitError{
		Command: cmd,
		Stderr:  stderr,
		err:     err,
	}
}

// Error is part of the error interface.
func (e *ExitError) Error() string {
	msg := "running " + e.Command.String() + ": " + e.err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Unwrap returns the underlying exec error.
func (e *ExitError) Unwrap() error {
	return e.err
}

// ExitCode returns the exit status of the command, or -1 if the command
// did not run to completion.
func (e *ExitError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
