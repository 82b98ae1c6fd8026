// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"github.com/juju/errors"
)

// Status describes where a dependency binding is in its lifecycle.
type Status string

const (
	// Unbound is the status of a binding that has not seen its relation
	// being joined in this hook.
	Unbound Status = "unbound"

	// Joined is set once a remote unit has joined the relation.
	Joined Status = "joined"

	// Ready is set each time the remote side has published the data
	// that the binding needs.
	Ready Status = "ready"

	// GoneAway is terminal; the relation has been removed.
	GoneAway Status = "goneaway"
)

// Validate returns an error if the status is not known.
func (s Status) Validate() error {
	switch s {
	case Unbound, Joined, Ready, GoneAway:
		return nil
	}
	return errors.NotValidf("relation status %q", s)
}

// CanTransitionTo reports whether a binding in status s may move to next.
// GoneAway is reachable from every status and nothing leaves it.
func (s Status) CanTransitionTo(next Status) bool {
	if s == GoneAway {
		return false
	}
	switch next {
	case GoneAway:
		return true
	case Joined:
		return s == Unbound || s == Joined
	case Ready:
		return true
	}
	return false
}
