// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hookcontext gives the charm access to the unit agent's view of
// the model while a hook or action runs. Everything goes through the hook
// tools (relation-get, is-leader, config-get, ...) the agent puts on PATH.
package hookcontext

import (
	"context"

	"github.com/canonical/charm-cloudkitty/core/status"
)

// Context is the interface to all the hook tools a charm uses.
type Context interface {
	ContextUnit
	ContextRelations
	ContextLeadership
	ContextConfig
	ContextNetwork
	ContextStatus
	ContextAction
	ContextLogger
}

// ContextUnit is the part of a hook context related to the local unit.
type ContextUnit interface {
	// UnitName returns the executing unit's name.
	UnitName() string

	// ApplicationName returns the name of the executing unit's application.
	ApplicationName() string
}

// ContextRelations exposes the relations of the local unit and the data
// exchanged over them.
type ContextRelations interface {
	// RelationIDs returns the ids of the established relations for the
	// named endpoint.
	RelationIDs(ctx context.Context, endpoint string) ([]int, error)

	// RelationList returns the names of the remote units in the relation.
	RelationList(ctx context.Context, relationID int) ([]string, error)

	// RelationRemoteApp returns the name of the application at the other
	// end of the relation.
	RelationRemoteApp(ctx context.Context, relationID int) (string, error)

	// RelationGet returns the settings published in the relation by the
	// named unit, or by the named application if app is true.
	RelationGet(ctx context.Context, relationID int, participant string, app bool) (map[string]string, error)

	// RelationSet merges settings into the local unit's settings, or the
	// local application's settings if app is true. An empty value removes
	// the key.
	RelationSet(ctx context.Context, relationID int, app bool, settings map[string]string) error
}

// ContextLeadership reports leadership of the local unit.
type ContextLeadership interface {
	// IsLeader returns whether the local unit is the application leader.
	IsLeader(ctx context.Context) (bool, error)
}

// ContextConfig reads the application's charm config.
type ContextConfig interface {
	// ConfigGet returns all charm config values, defaults included.
	ConfigGet(ctx context.Context) (map[string]interface{}, error)
}

// ContextNetwork reads network information for endpoint bindings.
type ContextNetwork interface {
	// NetworkBindAddress returns the address the unit should bind to for
	// the named binding.
	NetworkBindAddress(ctx context.Context, binding string) (string, error)
}

// ContextStatus sets the workload status of the unit.
type ContextStatus interface {
	SetUnitStatus(ctx context.Context, info status.StatusInfo) error
}

// ContextAction is the part of a hook context only meaningful while
// running an action.
type ContextAction interface {
	// ActionLog records a progress message for the running action.
	ActionLog(ctx context.Context, message string) error

	// ActionFail marks the running action as failed.
	ActionFail(ctx context.Context, message string) error
}

// ContextLogger writes to the unit agent's log.
type ContextLogger interface {
	JujuLog(ctx context.Context, level, message string) error
}
