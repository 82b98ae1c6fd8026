// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// The cloudkitty command is the charm executable. The dispatch script runs
// it for every hook and action; it works out which one from the
// environment the unit agent sets.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/canonical/charm-cloudkitty/charm"
	"github.com/canonical/charm-cloudkitty/internal/cloudkitty"
	"github.com/canonical/charm-cloudkitty/internal/cmdrunner"
	"github.com/canonical/charm-cloudkitty/internal/dispatch"
	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
	"github.com/canonical/charm-cloudkitty/internal/packaging"
	"github.com/canonical/charm-cloudkitty/internal/render"
	"github.com/canonical/charm-cloudkitty/service/systemd"
	"github.com/canonical/charm-cloudkitty/templates"
)

var logger = loggo.GetLogger("cloudkitty.cmd")

const (
	// exitErr is returned when the hook or action failed.
	exitErr = 1
	// exitUsage is returned when the command was run with bad arguments.
	exitUsage = 2

	defaultLogConfig = "<root>=INFO"
)

type flags struct {
	charmDir  string
	logConfig string
}

func parseArgs(name string, args []string) (flags, error) {
	var f flags
	fs := gnuflag.NewFlagSet(name, gnuflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.charmDir, "charm-dir", "", "the directory the charm is deployed in")
	fs.StringVar(&f.logConfig, "log-config", defaultLogConfig, "logging levels, as <module>=<level>;...")
	if err := fs.Parse(true, args); err != nil {
		return flags{}, errors.Trace(err)
	}
	if fs.NArg() > 0 {
		return flags{}, errors.Errorf("unrecognized args: %q", fs.Args())
	}
	return f, nil
}

func main() {
	os.Exit(Main(os.Args))
}

// Main runs the charm and returns the process exit code.
func Main(args []string) int {
	f, err := parseArgs(filepath.Base(args[0]), args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitUsage
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, args[0], f); err != nil {
		logger.Errorf("%v", err)
		logger.Debugf("%s", errors.ErrorStack(err))
		return exitErr
	}
	return 0
}

func run(ctx context.Context, argv0 string, f flags) error {
	env := dispatch.EnvironmentFromOS(argv0)
	ev, err := dispatch.ParseEvent(env)
	if err != nil {
		return errors.Trace(err)
	}
	charmDir := f.charmDir
	if charmDir == "" {
		charmDir = env.CharmDir
	}

	runner := cmdrunner.New()
	hctx, err := hookcontext.NewToolContext(runner, env.UnitName)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := loggo.ReplaceDefaultWriter(hookcontext.NewJujuLogWriter(hctx, os.Stderr)); err != nil {
		return errors.Trace(err)
	}
	if err := loggo.ConfigureLoggers(f.logConfig); err != nil {
		return errors.Annotate(err, "configuring logging")
	}

	if !systemd.IsRunning() {
		return errors.NotSupportedf("init system other than systemd")
	}
	meta, err := readMeta(charmDir)
	if err != nil {
		return errors.Trace(err)
	}
	installer, err := packaging.NewInstaller(packaging.InstallerConfig{
		Runner: runner,
		Clock:  clock.WallClock,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ch, err := cloudkitty.New(ctx, cloudkitty.Config{
		Context:   hctx,
		Renderer:  render.NewFileRenderer(render.NewLoader(templates.FS, cloudkitty.Release)),
		Services:  systemd.NewManager(systemd.NewDBusAPI),
		Installer: installer,
		Runner:    runner,
		Meta:      meta,
		Target:    cloudkitty.DefaultTarget(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	if ch.Options().Debug {
		loggo.GetLogger("").SetLogLevel(loggo.DEBUG)
	}

	d := dispatch.NewDispatcher()
	ch.RegisterHooks(d)
	logger.Debugf("running %s", ev)
	return errors.Trace(d.Dispatch(ctx, ev))
}

// readMeta reads metadata.yaml from the charm directory. Without it every
// dependency is treated as required.
func readMeta(charmDir string) (*charm.Meta, error) {
	if charmDir == "" {
		return nil, nil
	}
	path := filepath.Join(charmDir, "metadata.yaml")
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		logger.Warningf("%s not found, requiring every relation", path)
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	meta, err := charm.ReadMeta(file)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", path)
	}
	return meta, nil
}
