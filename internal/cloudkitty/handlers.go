// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloudkitty

import (
	"context"
	"fmt"
	"strings"

	"github.com/juju/errors"
	"github.com/kr/pretty"

	"github.com/canonical/charm-cloudkitty/core/status"
	"github.com/canonical/charm-cloudkitty/internal/cmdrunner"
	"github.com/canonical/charm-cloudkitty/internal/dispatch"
	"github.com/canonical/charm-cloudkitty/internal/relation"
)

// bootstrapCommands initialise the rating storage and migrate the schema.
var bootstrapCommands = []cmdrunner.Command{
	{Name: "cloudkitty-storage-init"},
	{Name: "cloudkitty-dbsync", Args: []string{"upgrade"}},
}

func (c *Charm) onInstall(ctx context.Context, _ dispatch.Event) error {
	if err := c.setStatus(ctx, status.Maintenance, "Installing packages"); err != nil {
		return errors.Trace(err)
	}
	if err := c.config.Installer.Update(ctx); err != nil {
		return errors.Annotate(err, "updating package index")
	}
	if err := c.config.Installer.Install(ctx, Packages...); err != nil {
		return errors.Annotate(err, "installing packages")
	}
	return errors.Trace(c.updateStatus(ctx))
}

func (c *Charm) onConfigChanged(ctx context.Context, _ dispatch.Event) error {
	return errors.Trace(c.configure(ctx))
}

func (c *Charm) onUpdateStatus(ctx context.Context, _ dispatch.Event) error {
	return errors.Trace(c.updateStatus(ctx))
}

func (c *Charm) onConnected(_ context.Context, ev relation.Event) error {
	logger.Infof("%s connected (relation %d)", ev.Endpoint, ev.RelationID)
	return nil
}

func (c *Charm) onDependencyChanged(ctx context.Context, ev relation.Event) error {
	logger.Debugf("reconfiguring after %s", ev)
	return errors.Trace(c.configure(ctx))
}

func (c *Charm) onDatabaseCreated(ctx context.Context, _ relation.Event) error {
	if _, err := c.renderConfig(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := c.bootstrapDatabase(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.updateStatus(ctx))
}

// configure renders the configuration, restarts the services if it
// changed, and updates the unit status.
func (c *Charm) configure(ctx context.Context) error {
	if _, err := c.renderConfig(ctx); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.updateStatus(ctx))
}

func (c *Charm) renderConfig(ctx context.Context) (bool, error) {
	rc, err := c.renderContext(ctx)
	if err != nil {
		return false, errors.Annotate(err, "resolving relation data")
	}
	if logger.IsTraceEnabled() {
		logger.Tracef("render context: %# v", pretty.Formatter(rc))
	}
	changed, err := c.config.Renderer.Render(ctx, c.config.Target, rc)
	if err != nil {
		return false, errors.Trace(err)
	}
	if changed {
		logger.Infof("%s changed, restarting services", c.config.Target.Path)
		c.restartServices(ctx)
	}
	return changed, nil
}

// restartServices restarts every service, returning those that failed.
func (c *Charm) restartServices(ctx context.Context) []string {
	var failed []string
	for _, name := range Services {
		if err := c.config.Services.Restart(ctx, name); err != nil {
			logger.Errorf("restarting %s: %v", name, err)
			failed = append(failed, name)
		}
	}
	return failed
}

// bootstrapDatabase initialises the database. Only the leader does this;
// the commands are not safe to run from several units at once.
func (c *Charm) bootstrapDatabase(ctx context.Context) error {
	leader, err := c.hctx.IsLeader(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		logger.Infof("unit is not leader, skipping database bootstrap")
		return nil
	}
	logger.Infof("starting cloudkitty database migration")
	for _, cmd := range bootstrapCommands {
		logger.Infof("executing %s", cmd)
		if _, err := c.config.Runner.Run(ctx, cmd); err != nil {
			return errors.Annotate(err, "bootstrapping database")
		}
	}
	return nil
}

func (c *Charm) onRestartServices(ctx context.Context, _ dispatch.Event) error {
	if err := c.hctx.ActionLog(ctx, "restarting services "+strings.Join(Services, ", ")); err != nil {
		return errors.Trace(err)
	}
	failed := c.restartServices(ctx)
	if len(failed) == 0 {
		return nil
	}
	for _, name := range failed {
		if err := c.hctx.ActionLog(ctx, fmt.Sprintf("Failed to restart service: %s", name)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(c.hctx.ActionFail(ctx, "Failed to restart services: "+strings.Join(failed, ", ")))
}
