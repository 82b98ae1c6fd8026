// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package rabbitmq implements the requiring side of the rabbitmq interface.
package rabbitmq

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/juju/errors"

	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
	"github.com/canonical/charm-cloudkitty/internal/relation"
)

// Endpoint is the default relation endpoint name.
const Endpoint = "amqp"

// Port is the AMQP port rabbitmq-server listens on.
const Port = 5672

// Requires is the messaging dependency of a service.
type Requires struct {
	*relation.Binding

	username string
	vhost    string
}

// New returns the messaging binding on endpoint, requesting a user and
// virtual host when rabbitmq joins.
func New(hctx hookcontext.ContextRelations, endpoint, username, vhost string) *Requires {
	r := &Requires{
		username: username,
		vhost:    vhost,
	}
	r.Binding = relation.NewBinding(hctx, relation.Spec{
		Endpoint:   endpoint,
		Resolution: relation.UnitOnly,
		ReadyKeys:  []string{"password"},
		Register:   r.register,
	})
	return r
}

func (r *Requires) register(ctx context.Context, bag *relation.Bag) error {
	return errors.Trace(bag.SetLocalUnit(ctx, relation.Settings{
		"username": r.username,
		"vhost":    r.vhost,
	}))
}

// Username returns the requested user name.
func (r *Requires) Username() string {
	return r.username
}

// VHost returns the requested virtual host.
func (r *Requires) VHost() string {
	return r.vhost
}

// Connection holds what is needed to reach the broker.
type Connection struct {
	Hostname string
	Username string
	Password string
	VHost    string
}

// TransportURL returns the oslo.messaging transport URL.
func (c Connection) TransportURL() string {
	u := url.URL{
		Scheme: "rabbit",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Hostname, strconv.Itoa(Port)),
		Path:   "/" + c.VHost,
	}
	return u.String()
}

// Connection resolves the broker connection details. The boolean result is
// false until the broker has published both a hostname and a password.
func (r *Requires) Connection(ctx context.Context) (Connection, bool, error) {
	conn := Connection{
		Username: r.username,
		VHost:    r.vhost,
	}
	data, err := r.Load(ctx)
	if err != nil {
		return conn, false, errors.Trace(err)
	}
	var hostOK, passwordOK bool
	conn.Hostname, hostOK = data.Get("hostname")
	conn.Password, passwordOK = data.Get("password")
	return conn, hostOK && passwordOK, nil
}
