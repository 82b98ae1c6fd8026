// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package testing provides an in-memory hookcontext.Context for exercising
// charm code without a unit agent.
package testing

import (
	"context"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"github.com/juju/testing"

	"github.com/canonical/charm-cloudkitty/core/status"
	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
)

// Relation holds the state of one relation known to the Context.
type Relation struct {
	ID        int
	Endpoint  string
	RemoteApp string
	Units     []string

	// Data is keyed on unit or application name.
	Data map[string]map[string]string
}

// LogEntry records one juju-log call.
type LogEntry struct {
	Level   string
	Message string
}

// Context is an in-memory hookcontext.Context. Every call is recorded on
// the embedded Stub; errors set on the Stub are returned in call order.
type Context struct {
	*testing.Stub

	Unit          string
	Leader        bool
	Config        map[string]interface{}
	BindAddresses map[string]string

	Statuses       []status.StatusInfo
	ActionLogs     []string
	ActionFailures []string
	Logs           []LogEntry

	relations map[int]*Relation
	nextID    int
}

var _ hookcontext.Context = (*Context)(nil)

// NewContext returns a Context for the named unit.
func NewContext(unitName string) *Context {
	return &Context{
		Stub:          &testing.Stub{},
		Unit:          unitName,
		Config:        make(map[string]interface{}),
		BindAddresses: make(map[string]string),
		relations:     make(map[int]*Relation),
	}
}

// AddRelation establishes a relation between endpoint and remoteApp and
// returns its id.
func (c *Context) AddRelation(endpoint, remoteApp string) int {
	id := c.nextID
	c.nextID++
	c.relations[id] = &Relation{
		ID:        id,
		Endpoint:  endpoint,
		RemoteApp: remoteApp,
		Data: map[string]map[string]string{
			remoteApp:           {},
			c.Unit:              {},
			c.ApplicationName(): {},
		},
	}
	return id
}

// AddRelationUnit adds a remote unit to the relation.
func (c *Context) AddRelationUnit(id int, unit string) {
	rel := c.mustRelation(id)
	rel.Units = append(rel.Units, unit)
	if _, ok := rel.Data[unit]; !ok {
		rel.Data[unit] = make(map[string]string)
	}
}

// RemoveRelationUnit removes a remote unit from the relation.
func (c *Context) RemoveRelationUnit(id int, unit string) {
	rel := c.mustRelation(id)
	for i, u := range rel.Units {
		if u == unit {
			rel.Units = append(rel.Units[:i], rel.Units[i+1:]...)
			break
		}
	}
	delete(rel.Data, unit)
}

// RemoveRelation forgets the relation entirely.
func (c *Context) RemoveRelation(id int) {
	delete(c.relations, id)
}

// UpdateRelationData merges settings into the data published by
// participant, a unit or application name. Empty values remove keys.
func (c *Context) UpdateRelationData(id int, participant string, settings map[string]string) {
	rel := c.mustRelation(id)
	data, ok := rel.Data[participant]
	if !ok {
		data = make(map[string]string)
		rel.Data[participant] = data
	}
	merge(data, settings)
}

// RelationData returns a copy of the data published by participant.
func (c *Context) RelationData(id int, participant string) map[string]string {
	rel := c.mustRelation(id)
	result := make(map[string]string)
	for k, v := range rel.Data[participant] {
		result[k] = v
	}
	return result
}

func (c *Context) mustRelation(id int) *Relation {
	rel, ok := c.relations[id]
	if !ok {
		panic(errors.NotFoundf("relation %d", id))
	}
	return rel
}

func merge(data, settings map[string]string) {
	for k, v := range settings {
		if v == "" {
			delete(data, k)
			continue
		}
		data[k] = v
	}
}

// UnitName is part of the hookcontext.ContextUnit interface.
func (c *Context) UnitName() string {
	return c.Unit
}

// ApplicationName is part of the hookcontext.ContextUnit interface.
func (c *Context) ApplicationName() string {
	app, err := names.UnitApplication(c.Unit)
	if err != nil {
		panic(err)
	}
	return app
}

// RelationIDs is part of the hookcontext.ContextRelations interface.
func (c *Context) RelationIDs(_ context.Context, endpoint string) ([]int, error) {
	c.MethodCall(c, "RelationIDs", endpoint)
	if err := c.NextErr(); err != nil {
		return nil, err
	}
	var ids []int
	for id, rel := range c.relations {
		if rel.Endpoint == endpoint {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// RelationList is part of the hookcontext.ContextRelations interface.
func (c *Context) RelationList(_ context.Context, relationID int) ([]string, error) {
	c.MethodCall(c, "RelationList", relationID)
	if err := c.NextErr(); err != nil {
		return nil, err
	}
	rel, ok := c.relations[relationID]
	if !ok {
		return nil, errors.NotFoundf("relation %d", relationID)
	}
	return append([]string(nil), rel.Units...), nil
}

// RelationRemoteApp is part of the hookcontext.ContextRelations interface.
func (c *Context) RelationRemoteApp(_ context.Context, relationID int) (string, error) {
	c.MethodCall(c, "RelationRemoteApp", relationID)
	if err := c.NextErr(); err != nil {
		return "", err
	}
	rel, ok := c.relations[relationID]
	if !ok {
		return "", errors.NotFoundf("relation %d", relationID)
	}
	return rel.RemoteApp, nil
}

// RelationGet is part of the hookcontext.ContextRelations interface.
func (c *Context) RelationGet(_ context.Context, relationID int, participant string, app bool) (map[string]string, error) {
	c.MethodCall(c, "RelationGet", relationID, participant, app)
	if err := c.NextErr(); err != nil {
		return nil, err
	}
	if _, ok := c.relations[relationID]; !ok {
		return nil, errors.NotFoundf("relation %d", relationID)
	}
	return c.RelationData(relationID, participant), nil
}

// RelationSet is part of the hookcontext.ContextRelations interface.
func (c *Context) RelationSet(_ context.Context, relationID int, app bool, settings map[string]string) error {
	c.MethodCall(c, "RelationSet", relationID, app, settings)
	if err := c.NextErr(); err != nil {
		return err
	}
	rel, ok := c.relations[relationID]
	if !ok {
		return errors.NotFoundf("relation %d", relationID)
	}
	participant := c.Unit
	if app {
		if !c.Leader {
			return errors.Errorf("cannot write application settings: unit %q is not the leader", c.Unit)
		}
		participant = c.ApplicationName()
	}
	merge(rel.Data[participant], settings)
	return nil
}

// IsLeader is part of the hookcontext.ContextLeadership interface.
func (c *Context) IsLeader(context.Context) (bool, error) {
	c.MethodCall(c, "IsLeader")
	return c.Leader, c.NextErr()
}

// ConfigGet is part of the hookcontext.ContextConfig interface.
func (c *Context) ConfigGet(context.Context) (map[string]interface{}, error) {
	c.MethodCall(c, "ConfigGet")
	if err := c.NextErr(); err != nil {
		return nil, err
	}
	config := make(map[string]interface{}, len(c.Config))
	for k, v := range c.Config {
		config[k] = v
	}
	return config, nil
}

// NetworkBindAddress is part of the hookcontext.ContextNetwork interface.
func (c *Context) NetworkBindAddress(_ context.Context, binding string) (string, error) {
	c.MethodCall(c, "NetworkBindAddress", binding)
	if err := c.NextErr(); err != nil {
		return "", err
	}
	address, ok := c.BindAddresses[binding]
	if !ok {
		return "", errors.NotFoundf("bind address for %q", binding)
	}
	return address, nil
}

// SetUnitStatus is part of the hookcontext.ContextStatus interface.
func (c *Context) SetUnitStatus(_ context.Context, info status.StatusInfo) error {
	c.MethodCall(c, "SetUnitStatus", info)
	if err := c.NextErr(); err != nil {
		return err
	}
	c.Statuses = append(c.Statuses, info)
	return nil
}

// UnitStatus returns the last status set, or unknown.
func (c *Context) UnitStatus() status.StatusInfo {
	if len(c.Statuses) == 0 {
		return status.StatusInfo{Status: status.Unknown}
	}
	return c.Statuses[len(c.Statuses)-1]
}

// ActionLog is part of the hookcontext.ContextAction interface.
func (c *Context) ActionLog(_ context.Context, message string) error {
	c.MethodCall(c, "ActionLog", message)
	if err := c.NextErr(); err != nil {
		return err
	}
	c.ActionLogs = append(c.ActionLogs, message)
	return nil
}

// ActionFail is part of the hookcontext.ContextAction interface.
func (c *Context) ActionFail(_ context.Context, message string) error {
	c.MethodCall(c, "ActionFail", message)
	if err := c.NextErr(); err != nil {
		return err
	}
	c.ActionFailures = append(c.ActionFailures, message)
	return nil
}

// JujuLog is part of the hookcontext.ContextLogger interface. It is not
// recorded on the Stub, so logging never consumes injected errors.
func (c *Context) JujuLog(_ context.Context, level, message string) error {
	c.Logs = append(c.Logs, LogEntry{Level: level, Message: message})
	return nil
}
