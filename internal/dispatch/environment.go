// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/names/v5"

	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
)

// Environment holds the variables the unit agent sets when it runs the
// charm.
type Environment struct {
	DispatchPath string
	UnitName     string
	CharmDir     string
	Relation     string
	RelationID   string
	RemoteUnit   string
	RemoteApp    string
	ActionName   string
}

// EnvironmentFromOS reads the Environment from the process environment.
// When the charm is run through a legacy hook symlink rather than the
// dispatch script, argv0 is used as the dispatch path.
func EnvironmentFromOS(argv0 string) Environment {
	env := Environment{
		DispatchPath: os.Getenv("JUJU_DISPATCH_PATH"),
		UnitName:     os.Getenv("JUJU_UNIT_NAME"),
		CharmDir:     os.Getenv("JUJU_CHARM_DIR"),
		Relation:     os.Getenv("JUJU_RELATION"),
		RelationID:   os.Getenv("JUJU_RELATION_ID"),
		RemoteUnit:   os.Getenv("JUJU_REMOTE_UNIT"),
		RemoteApp:    os.Getenv("JUJU_REMOTE_APP"),
		ActionName:   os.Getenv("JUJU_ACTION_NAME"),
	}
	if env.DispatchPath == "" && argv0 != "" {
		env.DispatchPath = filepath.Join("hooks", filepath.Base(argv0))
	}
	return env
}

// ParseEvent works out which hook or action is being run.
func ParseEvent(env Environment) (Event, error) {
	if env.DispatchPath == "" {
		return Event{}, errors.NotFoundf("JUJU_DISPATCH_PATH")
	}
	dir, name := filepath.Split(filepath.Clean(env.DispatchPath))
	ev := Event{RelationID: -1}

	switch filepath.Base(filepath.Clean(dir)) {
	case "actions":
		ev.Kind = Action
		ev.ActionName = name
		if env.ActionName != "" {
			ev.ActionName = env.ActionName
		}
		return ev, errors.Trace(ev.Validate())
	case "hooks":
	default:
		return Event{}, errors.NotValidf("dispatch path %q", env.DispatchPath)
	}

	ev.Kind = Kind(name)
	if env.Relation != "" && strings.HasPrefix(name, env.Relation+"-relation-") {
		ev.Kind = Kind(strings.TrimPrefix(name, env.Relation+"-"))
		ev.RelationName = env.Relation
		id, err := hookcontext.ParseRelationKey(env.RelationID)
		if err != nil {
			return Event{}, errors.Trace(err)
		}
		ev.RelationID = id
		ev.RemoteUnit = env.RemoteUnit
		ev.RemoteApp = env.RemoteApp
		if ev.RemoteApp == "" && ev.RemoteUnit != "" {
			app, err := names.UnitApplication(ev.RemoteUnit)
			if err != nil {
				return Event{}, errors.Trace(err)
			}
			ev.RemoteApp = app
		}
	}
	return ev, errors.Trace(ev.Validate())
}
