// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"github.com/juju/errors"
)

// Status represents the workload status of the unit, as reported to the
// controller with status-set.
type Status string

func (s Status) String() string {
	return string(s)
}

// StatusInfo holds a Status and associated message.
type StatusInfo struct {
	Status  Status
	Message string
}

const (
	// Maintenance means the charm is installing or reconfiguring the
	// workload and will settle by itself.
	Maintenance Status = "maintenance"

	// Unknown is reported until the charm first sets a status.
	Unknown Status = "unknown"

	// Waiting means a related application has not yet published
	// everything the workload needs.
	Waiting Status = "waiting"

	// Blocked means an operator has to act, typically by adding a
	// missing relation.
	Blocked Status = "blocked"

	// Active means the workload is configured and running.
	Active Status = "active"
)

// ValidWorkloadStatus reports whether a unit may set status.
func ValidWorkloadStatus(status Status) bool {
	switch status {
	case Blocked, Maintenance, Waiting, Active, Unknown:
		return true
	}
	return false
}

// Validate returns an error if the status info cannot be set on a unit.
func (s StatusInfo) Validate() error {
	if !ValidWorkloadStatus(s.Status) {
		return errors.NotValidf("workload status %q", s.Status)
	}
	return nil
}
