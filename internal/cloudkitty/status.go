// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloudkitty

import (
	"context"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	corerelation "github.com/canonical/charm-cloudkitty/core/relation"
	"github.com/canonical/charm-cloudkitty/core/status"
)

func (c *Charm) requiredRelations() []string {
	if c.config.Meta != nil {
		return c.config.Meta.RequiredRelations()
	}
	var names []string
	for _, b := range c.bindings() {
		names = append(names, b.Endpoint())
	}
	return names
}

// AssessStatus works out the workload status from the state of the
// required relations and, once they are all ready, of the services.
func (c *Charm) AssessStatus(ctx context.Context) (status.StatusInfo, error) {
	required := set.NewStrings(c.requiredRelations()...)
	goneAway := set.NewStrings()
	for _, b := range c.bindings() {
		if b.Status() == corerelation.GoneAway {
			goneAway.Add(b.Endpoint())
		}
	}
	missing := set.NewStrings()
	for _, name := range required.Values() {
		// relation-ids still lists a relation while it is being broken.
		if goneAway.Contains(name) {
			missing.Add(name)
			continue
		}
		ids, err := c.hctx.RelationIDs(ctx, name)
		if err != nil {
			return status.StatusInfo{}, errors.Trace(err)
		}
		if len(ids) == 0 {
			missing.Add(name)
		}
	}
	if !missing.IsEmpty() {
		return status.StatusInfo{
			Status:  status.Blocked,
			Message: "Missing relations: " + strings.Join(missing.SortedValues(), ", "),
		}, nil
	}

	incomplete := set.NewStrings()
	for _, b := range c.bindings() {
		if required.Contains(b.Endpoint()) && !b.Ready(ctx) {
			incomplete.Add(b.Endpoint())
		}
	}
	if !incomplete.IsEmpty() {
		return status.StatusInfo{
			Status:  status.Waiting,
			Message: "Incomplete relations: " + strings.Join(incomplete.SortedValues(), ", "),
		}, nil
	}

	var stopped []string
	for _, name := range Services {
		running, err := c.config.Services.Running(ctx, name)
		if err != nil {
			return status.StatusInfo{}, errors.Annotatef(err, "checking %s", name)
		}
		if !running {
			stopped = append(stopped, name)
		}
	}
	if len(stopped) > 0 {
		return status.StatusInfo{
			Status:  status.Blocked,
			Message: "Services not running that should be: " + strings.Join(stopped, ", "),
		}, nil
	}
	return status.StatusInfo{Status: status.Active, Message: "Unit is ready"}, nil
}

func (c *Charm) updateStatus(ctx context.Context) error {
	info, err := c.AssessStatus(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.setStatus(ctx, info.Status, info.Message))
}

func (c *Charm) setStatus(ctx context.Context, s status.Status, message string) error {
	info := status.StatusInfo{Status: s, Message: message}
	if err := info.Validate(); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("setting status %s: %q", s, message)
	return errors.Trace(c.hctx.SetUnitStatus(ctx, info))
}
