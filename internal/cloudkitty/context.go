// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloudkitty

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/canonical/charm-cloudkitty/internal/requires/keystone"
)

// RenderContext is everything the configuration template sees. It is
// rebuilt from the relations every time the file is rendered.
type RenderContext struct {
	Options   Options
	Identity  IdentityContext
	Metering  MeteringContext
	Messaging MessagingContext
	Database  DatabaseContext
}

// IdentityContext holds the keystone service credentials.
type IdentityContext struct {
	keystone.Credentials

	Ready bool

	// AuthURL is the internal keystone v3 endpoint.
	AuthURL string

	// PublicURL is the keystone endpoint clients are sent to.
	PublicURL string
}

// MeteringContext holds the gnocchi endpoint.
type MeteringContext struct {
	Ready bool
	URL   string
}

// MessagingContext holds the rabbitmq transport.
type MessagingContext struct {
	Ready        bool
	TransportURL string
}

// DatabaseContext holds the SQLAlchemy connection string.
type DatabaseContext struct {
	Ready      bool
	Connection string
}

func (c *Charm) renderContext(ctx context.Context) (RenderContext, error) {
	rc := RenderContext{Options: c.options}

	if c.identity.Ready(ctx) {
		creds, err := c.identity.Credentials(ctx)
		if err != nil {
			return rc, errors.Trace(err)
		}
		rc.Identity = IdentityContext{
			Credentials: creds,
			Ready:       true,
			AuthURL:     creds.InternalAuthURL,
			PublicURL:   creds.PublicAuthURL,
		}
		if rc.Identity.AuthURL == "" {
			rc.Identity.AuthURL = fmt.Sprintf("%s://%s:%s/v3", creds.AuthProtocol, creds.AuthHost, creds.AuthPort)
		}
		if rc.Identity.PublicURL == "" {
			rc.Identity.PublicURL = fmt.Sprintf("%s://%s:%s", creds.ServiceProtocol, creds.ServiceHost, creds.ServicePort)
		}
	}

	url, ok, err := c.metering.URL(ctx)
	if err != nil {
		return rc, errors.Trace(err)
	}
	rc.Metering = MeteringContext{Ready: ok, URL: url}

	conn, ok, err := c.messaging.Connection(ctx)
	if err != nil {
		return rc, errors.Trace(err)
	}
	if ok {
		rc.Messaging = MessagingContext{Ready: true, TransportURL: conn.TransportURL()}
	}

	creds, ok, err := c.database.Credentials(ctx)
	if err != nil {
		return rc, errors.Trace(err)
	}
	if ok && creds.PrimaryEndpoint() != "" {
		rc.Database = DatabaseContext{
			Ready: true,
			Connection: fmt.Sprintf("mysql+pymysql://%s:%s@%s/%s",
				creds.Username, creds.Password, creds.PrimaryEndpoint(), c.database.Database()),
		}
	}
	return rc, nil
}
