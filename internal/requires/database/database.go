// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package database implements the requiring side of the mysql_client
// interface: the charm asks for a database by name and the database
// application answers with credentials and endpoints in its application
// data.
package database

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
	"github.com/canonical/charm-cloudkitty/internal/relation"
)

var logger = loggo.GetLogger("cloudkitty.requires.database")

// Endpoint is the default relation endpoint name.
const Endpoint = "database"

const (
	// EventDatabaseCreated is emitted when credentials are first
	// published.
	EventDatabaseCreated relation.EventKind = "database-created"

	// EventEndpointsChanged is emitted when the read-write endpoints are
	// published or change.
	EventEndpointsChanged relation.EventKind = "endpoints-changed"

	// EventReadOnlyEndpointsChanged is emitted when the read-only
	// endpoints are published or change.
	EventReadOnlyEndpointsChanged relation.EventKind = "read-only-endpoints-changed"
)

// seenKey is the local unit data key holding the remote data last seen.
const seenKey = "data"

// Credentials is what the database application publishes.
type Credentials struct {
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	Endpoints         string `mapstructure:"endpoints"`
	ReadOnlyEndpoints string `mapstructure:"read-only-endpoints"`
	Version           string `mapstructure:"version"`
	TLS               string `mapstructure:"tls"`
	TLSCA             string `mapstructure:"tls-ca"`
	URIs              string `mapstructure:"uris"`
	ReplicaSet        string `mapstructure:"replset"`
}

// PrimaryEndpoint returns the first read-write endpoint.
func (c Credentials) PrimaryEndpoint() string {
	endpoint, _, _ := strings.Cut(c.Endpoints, ",")
	return strings.TrimSpace(endpoint)
}

// Context is the part of the hook context the binding uses.
type Context interface {
	hookcontext.ContextUnit
	hookcontext.ContextRelations
	hookcontext.ContextLeadership
}

// Requires is the database dependency of a service.
type Requires struct {
	*relation.Binding

	hctx     Context
	database string
}

// New returns the database binding on endpoint, requesting the named
// database.
func New(hctx Context, endpoint, database string) *Requires {
	r := &Requires{
		hctx:     hctx,
		database: database,
	}
	r.Binding = relation.NewBinding(hctx, relation.Spec{
		Endpoint:   endpoint,
		Resolution: relation.AppOnly,
		ReadyKeys:  []string{"username", "password"},
		Register:   r.register,
		Changed:    r.changed,
	})
	return r
}

// Database returns the name of the requested database.
func (r *Requires) Database() string {
	return r.database
}

func (r *Requires) register(ctx context.Context, bag *relation.Bag) error {
	leader, err := r.hctx.IsLeader(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		return nil
	}
	return errors.Trace(bag.SetLocalApp(ctx, relation.Settings{"database": r.database}))
}

// changed compares the remote data with what was seen last time and emits
// at most one of the database events.
func (r *Requires) changed(ctx context.Context, bag *relation.Bag, data *relation.Data) error {
	current := data.App()
	previous, err := r.seen(ctx, bag)
	if err != nil {
		return errors.Trace(err)
	}
	d := diff(previous, current)

	raw, err := json.Marshal(current)
	if err != nil {
		return errors.Trace(err)
	}
	if err := bag.SetLocalUnit(ctx, relation.Settings{seenKey: string(raw)}); err != nil {
		return errors.Annotate(err, "recording database relation data")
	}

	updated := d.added.Union(d.changed)
	switch {
	case d.added.Contains("username") && d.added.Contains("password"):
		return errors.Trace(r.Emit(ctx, EventDatabaseCreated, bag.ID()))
	case updated.Contains("endpoints"):
		return errors.Trace(r.Emit(ctx, EventEndpointsChanged, bag.ID()))
	case updated.Contains("read-only-endpoints"):
		return errors.Trace(r.Emit(ctx, EventReadOnlyEndpointsChanged, bag.ID()))
	}
	return nil
}

func (r *Requires) seen(ctx context.Context, bag *relation.Bag) (relation.Settings, error) {
	local, err := r.hctx.RelationGet(ctx, bag.ID(), r.hctx.UnitName(), false)
	if err != nil {
		return nil, errors.Trace(err)
	}
	previous := relation.Settings{}
	raw := local[seenKey]
	if raw == "" {
		return previous, nil
	}
	if err := json.Unmarshal([]byte(raw), &previous); err != nil {
		logger.Warningf("discarding unreadable database relation data: %v", err)
		return relation.Settings{}, nil
	}
	return previous, nil
}

type settingsDiff struct {
	added   set.Strings
	changed set.Strings
	deleted set.Strings
}

func diff(previous, current relation.Settings) settingsDiff {
	d := settingsDiff{
		added:   set.NewStrings(),
		changed: set.NewStrings(),
		deleted: set.NewStrings(),
	}
	for key, value := range current {
		old, ok := previous[key]
		switch {
		case !ok:
			d.added.Add(key)
		case old != value:
			d.changed.Add(key)
		}
	}
	for key := range previous {
		if _, ok := current[key]; !ok {
			d.deleted.Add(key)
		}
	}
	return d
}

// Credentials resolves the published credentials. The boolean result is
// false until both a username and a password have been published.
func (r *Requires) Credentials(ctx context.Context) (Credentials, bool, error) {
	var creds Credentials
	data, err := r.Load(ctx)
	if err != nil {
		return creds, false, errors.Trace(err)
	}
	if err := mapstructure.Decode(map[string]string(data.App()), &creds); err != nil {
		return creds, false, errors.Annotate(err, "decoding database credentials")
	}
	return creds, creds.Username != "" && creds.Password != "", nil
}
