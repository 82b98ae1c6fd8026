// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package packaging installs the workload's Ubuntu packages.
package packaging

import (
	"context"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"

	"github.com/canonical/charm-cloudkitty/internal/cmdrunner"
)

var logger = loggo.GetLogger("cloudkitty.packaging")

// aptGetOptions stop apt-get from ever waiting on a prompt.
var aptGetOptions = []string{
	"--option=Dpkg::Options::=--force-confold",
	"--option=Dpkg::options::=--force-unsafe-io",
	"--assume-yes",
	"--quiet",
}

var aptGetEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// lockMessages are printed by apt and dpkg when another process holds the
// package database.
var lockMessages = []string{
	"Could not get lock",
	"Could not open lock file",
	"Unable to acquire the dpkg frontend lock",
}

const (
	defaultAttempts = 30
	defaultDelay    = 10 * time.Second
)

// InstallerConfig holds the dependencies of an Installer.
type InstallerConfig struct {
	Runner cmdrunner.Runner
	Clock  clock.Clock

	// Attempts and Delay control how long to wait for the package
	// database lock. Zero values select the defaults.
	Attempts int
	Delay    time.Duration
}

// Validate returns an error if the config cannot be used.
func (config InstallerConfig) Validate() error {
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Attempts < 0 {
		return errors.NotValidf("negative Attempts")
	}
	if config.Delay < 0 {
		return errors.NotValidf("negative Delay")
	}
	return nil
}

// Installer runs apt-get.
type Installer struct {
	config InstallerConfig
}

// NewInstaller returns an Installer using config.
func NewInstaller(config InstallerConfig) (*Installer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Attempts == 0 {
		config.Attempts = defaultAttempts
	}
	if config.Delay == 0 {
		config.Delay = defaultDelay
	}
	return &Installer{config: config}, nil
}

// Update refreshes the package index.
func (i *Installer) Update(ctx context.Context) error {
	return errors.Trace(i.aptGet(ctx, "update"))
}

// Install installs packages, leaving existing configuration files alone.
func (i *Installer) Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}
	return errors.Trace(i.aptGet(ctx, append([]string{"install"}, packages...)...))
}

func (i *Installer) aptGet(ctx context.Context, args ...string) error {
	cmd := cmdrunner.Command{
		Name: "apt-get",
		Args: append(append([]string(nil), aptGetOptions...), args...),
		Env:  aptGetEnv,
	}
	logger.Infof("running: %s", cmd)
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			_, err := i.config.Runner.Run(ctx, cmd)
			return err
		},
		IsFatalError: func(err error) bool {
			return !IsLockError(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Infof("package database locked, retrying (attempt %d)", attempt)
		},
		Attempts: i.config.Attempts,
		Delay:    i.config.Delay,
		Clock:    i.config.Clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	return errors.Trace(err)
}

// IsLockError reports whether err is apt failing because another process
// holds the package database lock.
func IsLockError(err error) bool {
	var exitErr *cmdrunner.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	for _, msg := range lockMessages {
		if strings.Contains(exitErr.Stderr, msg) {
			return true
		}
	}
	return false
}
