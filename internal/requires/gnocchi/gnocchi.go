// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package gnocchi implements the requiring side of the gnocchi interface.
package gnocchi

import (
	"context"

	"github.com/juju/errors"

	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
	"github.com/canonical/charm-cloudkitty/internal/relation"
)

// Endpoint is the default relation endpoint name.
const Endpoint = "metric-service"

const urlKey = "gnocchi_url"

// Requires is the metering dependency of a service.
type Requires struct {
	*relation.Binding
}

// New returns the metering binding on endpoint. Nothing is published to
// gnocchi; it only needs to be related.
func New(hctx hookcontext.ContextRelations, endpoint string) *Requires {
	return &Requires{
		Binding: relation.NewBinding(hctx, relation.Spec{
			Endpoint:   endpoint,
			Resolution: relation.UnitOnly,
			ReadyKeys:  []string{urlKey},
		}),
	}
}

// URL returns the gnocchi API endpoint.
func (r *Requires) URL(ctx context.Context) (string, bool, error) {
	url, ok, err := r.Get(ctx, urlKey)
	return url, ok, errors.Trace(err)
}
