// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/naturalsort"

	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
)

// Settings holds the data published by one participant of a relation.
type Settings map[string]string

// Bag is the data exchanged over a single relation: one mapping published
// by the remote application and one per remote unit. Reads are never
// cached; every call reflects the current contents.
type Bag struct {
	hctx hookcontext.ContextRelations
	id   int
}

// NewBag returns the bag for the relation with the given id.
func NewBag(hctx hookcontext.ContextRelations, id int) *Bag {
	return &Bag{hctx: hctx, id: id}
}

// FirstBag returns the bag of the first relation established on the
// endpoint. The boolean result is false if there is none.
func FirstBag(ctx context.Context, hctx hookcontext.ContextRelations, endpoint string) (*Bag, bool, error) {
	ids, err := hctx.RelationIDs(ctx, endpoint)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	if len(ids) > 1 {
		logger.Warningf("%d relations established on %q, using relation %d", len(ids), endpoint, ids[0])
	}
	return NewBag(hctx, ids[0]), true, nil
}

// ID returns the relation id.
func (b *Bag) ID() int {
	return b.id
}

// RemoteUnits returns the remote units in natural order, so that
// "keystone/2" sorts before "keystone/10".
func (b *Bag) RemoteUnits(ctx context.Context) ([]string, error) {
	units, err := b.hctx.RelationList(ctx, b.id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	naturalsort.Sort(units)
	return units, nil
}

// RemoteApp returns the name of the remote application.
func (b *Bag) RemoteApp(ctx context.Context) (string, error) {
	app, err := b.hctx.RelationRemoteApp(ctx, b.id)
	return app, errors.Trace(err)
}

// AppSettings returns the data published by the remote application.
func (b *Bag) AppSettings(ctx context.Context) (Settings, error) {
	app, err := b.RemoteApp(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if app == "" {
		return Settings{}, nil
	}
	settings, err := b.hctx.RelationGet(ctx, b.id, app, true)
	return settings, errors.Trace(err)
}

// UnitSettings returns the data published by the named unit.
func (b *Bag) UnitSettings(ctx context.Context, unit string) (Settings, error) {
	settings, err := b.hctx.RelationGet(ctx, b.id, unit, false)
	return settings, errors.Trace(err)
}

// SetLocalUnit merges settings into the local unit's data.
func (b *Bag) SetLocalUnit(ctx context.Context, settings Settings) error {
	return errors.Trace(b.hctx.RelationSet(ctx, b.id, false, settings))
}

// SetLocalApp merges settings into the local application's data. Only the
// leader may do this.
func (b *Bag) SetLocalApp(ctx context.Context, settings Settings) error {
	return errors.Trace(b.hctx.RelationSet(ctx, b.id, true, settings))
}
