// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookcontext

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/names/v5"
	"gopkg.in/yaml.v2"

	"github.com/canonical/charm-cloudkitty/core/status"
	"github.com/canonical/charm-cloudkitty/internal/cmdrunner"
)

var logger = loggo.GetLogger("cloudkitty.hookcontext")

// ToolContext implements Context by running the hook tools.
type ToolContext struct {
	runner   cmdrunner.Runner
	unitName string
	appName  string
}

// NewToolContext returns a Context for the named unit, backed by runner.
func NewToolContext(runner cmdrunner.Runner, unitName string) (*ToolContext, error) {
	if !names.IsValidUnit(unitName) {
		return nil, errors.NotValidf("unit name %q", unitName)
	}
	appName, err := names.UnitApplication(unitName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &ToolContext{
		runner:   runner,
		unitName: unitName,
		appName:  appName,
	}, nil
}

// UnitName is part of the ContextUnit interface.
func (c *ToolContext) UnitName() string {
	return c.unitName
}

// ApplicationName is part of the ContextUnit interface.
func (c *ToolContext) ApplicationName() string {
	return c.appName
}

func (c *ToolContext) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := c.runner.Run(ctx, cmdrunner.Command{Name: name, Args: args})
	return out, errors.Trace(err)
}

func (c *ToolContext) runJSON(ctx context.Context, result interface{}, name string, args ...string) error {
	out, err := c.run(ctx, name, append(args, "--format=json")...)
	if err != nil {
		return errors.Trace(err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return nil
	}
	if err := json.Unmarshal(out, result); err != nil {
		return errors.Annotatef(err, "decoding %s output", name)
	}
	return nil
}

// RelationIDs is part of the ContextRelations interface.
func (c *ToolContext) RelationIDs(ctx context.Context, endpoint string) ([]int, error) {
	var keys []string
	if err := c.runJSON(ctx, &keys, "relation-ids", endpoint); err != nil {
		return nil, errors.Trace(err)
	}
	ids := make([]int, 0, len(keys))
	for _, key := range keys {
		id, err := ParseRelationKey(key)
		if err != nil {
			return nil, errors.Trace(err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RelationList is part of the ContextRelations interface.
func (c *ToolContext) RelationList(ctx context.Context, relationID int) ([]string, error) {
	var units []string
	err := c.runJSON(ctx, &units, "relation-list", "-r", strconv.Itoa(relationID))
	return units, errors.Trace(err)
}

// RelationRemoteApp is part of the ContextRelations interface.
func (c *ToolContext) RelationRemoteApp(ctx context.Context, relationID int) (string, error) {
	var app string
	err := c.runJSON(ctx, &app, "relation-list", "-r", strconv.Itoa(relationID), "--app")
	return app, errors.Trace(err)
}

// RelationGet is part of the ContextRelations interface.
func (c *ToolContext) RelationGet(ctx context.Context, relationID int, participant string, app bool) (map[string]string, error) {
	args := []string{"-r", strconv.Itoa(relationID)}
	if app {
		args = append(args, "--app")
	}
	args = append(args, "-", participant)
	settings := make(map[string]string)
	if err := c.runJSON(ctx, &settings, "relation-get", args...); err != nil {
		return nil, errors.Annotatef(err, "reading relation %d settings for %q", relationID, participant)
	}
	return settings, nil
}

// RelationSet is part of the ContextRelations interface.
func (c *ToolContext) RelationSet(ctx context.Context, relationID int, app bool, settings map[string]string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.Trace(err)
	}
	args := []string{"-r", strconv.Itoa(relationID)}
	if app {
		args = append(args, "--app")
	}
	args = append(args, "--file", "-")
	_, err = c.runner.Run(ctx, cmdrunner.Command{
		Name:  "relation-set",
		Args:  args,
		Stdin: data,
	})
	return errors.Annotatef(err, "writing relation %d settings", relationID)
}

// IsLeader is part of the ContextLeadership interface.
func (c *ToolContext) IsLeader(ctx context.Context) (bool, error) {
	var leader bool
	if err := c.runJSON(ctx, &leader, "is-leader"); err != nil {
		return false, errors.Annotatef(err, "leadership status unknown")
	}
	return leader, nil
}

// ConfigGet is part of the ContextConfig interface.
func (c *ToolContext) ConfigGet(ctx context.Context) (map[string]interface{}, error) {
	config := make(map[string]interface{})
	err := c.runJSON(ctx, &config, "config-get", "--all")
	return config, errors.Trace(err)
}

// NetworkBindAddress is part of the ContextNetwork interface.
func (c *ToolContext) NetworkBindAddress(ctx context.Context, binding string) (string, error) {
	var address string
	if err := c.runJSON(ctx, &address, "network-get", binding, "--bind-address"); err != nil {
		return "", errors.Trace(err)
	}
	if address == "" {
		return "", errors.NotFoundf("bind address for %q", binding)
	}
	return address, nil
}

// SetUnitStatus is part of the ContextStatus interface.
func (c *ToolContext) SetUnitStatus(ctx context.Context, info status.StatusInfo) error {
	if err := info.Validate(); err != nil {
		return errors.Trace(err)
	}
	_, err := c.run(ctx, "status-set", info.Status.String(), info.Message)
	return errors.Trace(err)
}

// ActionLog is part of the ContextAction interface.
func (c *ToolContext) ActionLog(ctx context.Context, message string) error {
	_, err := c.run(ctx, "action-log", message)
	return errors.Trace(err)
}

// ActionFail is part of the ContextAction interface.
func (c *ToolContext) ActionFail(ctx context.Context, message string) error {
	_, err := c.run(ctx, "action-fail", message)
	return errors.Trace(err)
}

// JujuLog is part of the ContextLogger interface.
func (c *ToolContext) JujuLog(ctx context.Context, level, message string) error {
	_, err := c.runner.Run(ctx, cmdrunner.Command{
		Name:  "juju-log",
		Args:  []string{"--log-level", level, message},
		Quiet: true,
	})
	return errors.Trace(err)
}

// ParseRelationKey returns the relation id held in a relation key of the
// form "<endpoint>:<id>", as printed by relation-ids and set in
// JUJU_RELATION_ID.
func ParseRelationKey(key string) (int, error) {
	idx := strings.LastIndex(key, ":")
	id, err := strconv.Atoi(key[idx+1:])
	if err != nil || id < 0 {
		return -1, errors.NotValidf("relation key %q", key)
	}
	return id, nil
}
