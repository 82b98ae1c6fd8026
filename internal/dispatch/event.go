// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dispatch turns the environment the unit agent runs the charm in
// into a single Event, and delivers it to the handlers observing it.
package dispatch

import (
	"fmt"

	"github.com/juju/errors"
)

// Kind identifies the hook, or action, being run.
type Kind string

const (
	Install       Kind = "install"
	Start         Kind = "start"
	Stop          Kind = "stop"
	Remove        Kind = "remove"
	ConfigChanged Kind = "config-changed"
	UpgradeCharm  Kind = "upgrade-charm"
	UpdateStatus  Kind = "update-status"
	LeaderElected Kind = "leader-elected"

	RelationCreated  Kind = "relation-created"
	RelationJoined   Kind = "relation-joined"
	RelationChanged  Kind = "relation-changed"
	RelationDeparted Kind = "relation-departed"
	RelationBroken   Kind = "relation-broken"

	Action Kind = "action"
)

var relationKinds = []Kind{
	RelationCreated, RelationJoined, RelationChanged, RelationDeparted, RelationBroken,
}

// IsRelation returns whether the kind is a relation hook.
func (k Kind) IsRelation() bool {
	for _, rk := range relationKinds {
		if k == rk {
			return true
		}
	}
	return false
}

// Event holds the details of the hook or action being run. Not all fields
// are relevant to all Kind values.
type Event struct {
	Kind Kind

	// RelationName is the local endpoint of the relation. It is only set
	// when Kind is a relation hook.
	RelationName string

	// RelationID identifies the relation. It is -1 unless Kind is a
	// relation hook.
	RelationID int

	// RemoteUnit is the name of the unit that triggered the hook. It is
	// empty for relation-created, relation-broken, and for
	// relation-changed triggered by application data.
	RemoteUnit string

	// RemoteApp is the name of the application at the other end of the
	// relation.
	RemoteApp string

	// ActionName is only set when Kind is Action.
	ActionName string
}

// Validate returns an error if the event is not valid.
func (e Event) Validate() error {
	switch {
	case e.Kind == "":
		return errors.NotValidf("empty event kind")
	case e.Kind == Action:
		if e.ActionName == "" {
			return errors.NotValidf("action without a name")
		}
	case e.Kind.IsRelation():
		if e.RelationName == "" || e.RelationID < 0 {
			return errors.NotValidf("%q hook without a relation", e.Kind)
		}
		if (e.Kind == RelationJoined || e.Kind == RelationDeparted) && e.RemoteUnit == "" {
			return errors.NotValidf("%q hook without a remote unit", e.Kind)
		}
	}
	return nil
}

// String returns the name of the hook, as the unit agent knows it.
func (e Event) String() string {
	switch {
	case e.Kind == Action:
		return fmt.Sprintf("action %q", e.ActionName)
	case e.Kind.IsRelation():
		return fmt.Sprintf("%s-%s (relation %d)", e.RelationName, e.Kind, e.RelationID)
	}
	return string(e.Kind)
}
