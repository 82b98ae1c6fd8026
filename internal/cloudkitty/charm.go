// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cloudkitty is the charm operating the CloudKitty rating
// service: it installs the packages, wires the service to keystone,
// gnocchi, rabbitmq and a database, renders its configuration and keeps
// the services running with it.
package cloudkitty

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/canonical/charm-cloudkitty/charm"
	"github.com/canonical/charm-cloudkitty/internal/cmdrunner"
	"github.com/canonical/charm-cloudkitty/internal/dispatch"
	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
	"github.com/canonical/charm-cloudkitty/internal/relation"
	"github.com/canonical/charm-cloudkitty/internal/render"
	"github.com/canonical/charm-cloudkitty/internal/requires/database"
	"github.com/canonical/charm-cloudkitty/internal/requires/gnocchi"
	"github.com/canonical/charm-cloudkitty/internal/requires/keystone"
	"github.com/canonical/charm-cloudkitty/internal/requires/rabbitmq"
)

var logger = loggo.GetLogger("cloudkitty.charm")

const (
	// Release is the OpenStack release whose templates are used.
	Release = "yoga"

	// ConfigPath is where the service configuration is rendered.
	ConfigPath = "/etc/cloudkitty/cloudkitty.conf"

	configTemplate = "cloudkitty.conf"
	configOwner    = "cloudkitty"
	configGroup    = "cloudkitty"

	// APIPort is the port cloudkitty-api listens on.
	APIPort = 8889

	// PublicBinding is the extra binding the API is exposed on.
	PublicBinding = "public"

	// RestartServicesAction restarts every managed service.
	RestartServicesAction = "restart-services"
)

var (
	// Packages are the Ubuntu packages providing the workload.
	Packages = []string{"cloudkitty-api", "cloudkitty-processor"}

	// Services are restarted whenever the configuration changes.
	Services = []string{"cloudkitty-api", "cloudkitty-processor"}
)

// DefaultTarget returns the rendered configuration file.
func DefaultTarget() render.Target {
	return render.Target{
		Source:   configTemplate,
		Path:     ConfigPath,
		Owner:    configOwner,
		Group:    configGroup,
		Perms:    0640,
		Validate: render.ValidateINI,
	}
}

// ServiceManager restarts system services.
type ServiceManager interface {
	// Restart restarts the named service. A non-nil error means the
	// service was not restarted.
	Restart(ctx context.Context, name string) error

	// Running reports whether the named service is active.
	Running(ctx context.Context, name string) (bool, error)
}

// PackageInstaller installs system packages.
type PackageInstaller interface {
	Update(ctx context.Context) error
	Install(ctx context.Context, packages ...string) error
}

// Config holds the dependencies of the charm.
type Config struct {
	Context   hookcontext.Context
	Renderer  render.Renderer
	Services  ServiceManager
	Installer PackageInstaller
	Runner    cmdrunner.Runner

	// Meta is the charm metadata. If nil, every dependency is required.
	Meta *charm.Meta

	// Target is the configuration file to render.
	Target render.Target
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Context == nil {
		return errors.NotValidf("nil Context")
	}
	if config.Renderer == nil {
		return errors.NotValidf("nil Renderer")
	}
	if config.Services == nil {
		return errors.NotValidf("nil Services")
	}
	if config.Installer == nil {
		return errors.NotValidf("nil Installer")
	}
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.Target.Path == "" {
		return errors.NotValidf("empty Target path")
	}
	return nil
}

// Charm reacts to hooks and actions on a cloudkitty unit.
type Charm struct {
	config  Config
	hctx    hookcontext.Context
	options Options

	identity  *keystone.Requires
	metering  *gnocchi.Requires
	messaging *rabbitmq.Requires
	database  *database.Requires
}

// New reads the charm config and sets up the dependency bindings.
func New(ctx context.Context, config Config) (*Charm, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	hctx := config.Context
	raw, err := hctx.ConfigGet(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	options, err := ParseOptions(raw)
	if err != nil {
		return nil, errors.Trace(err)
	}
	address, err := hctx.NetworkBindAddress(ctx, PublicBinding)
	if err != nil {
		return nil, errors.Annotatef(err, "resolving %q binding", PublicBinding)
	}

	app := hctx.ApplicationName()
	url := ServiceURL(address)
	c := &Charm{
		config:  config,
		hctx:    hctx,
		options: options,
		identity: keystone.New(hctx, keystone.Endpoint, []keystone.ServiceEndpoint{{
			ServiceName: app,
			PublicURL:   url,
			InternalURL: url,
			AdminURL:    url,
		}}, options.Region),
		metering:  gnocchi.New(hctx, gnocchi.Endpoint),
		messaging: rabbitmq.New(hctx, rabbitmq.Endpoint, app, app),
		database:  database.New(hctx, database.Endpoint, app),
	}
	return c, nil
}

// ServiceURL returns the URL of the API served on address.
func ServiceURL(address string) string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(address, strconv.Itoa(APIPort)))
}

// Options returns the charm config read when the charm was created.
func (c *Charm) Options() Options {
	return c.options
}

func (c *Charm) bindings() []*relation.Binding {
	return []*relation.Binding{
		c.identity.Binding,
		c.metering.Binding,
		c.messaging.Binding,
		c.database.Binding,
	}
}

// RegisterHooks routes hooks, actions and dependency events to the charm.
func (c *Charm) RegisterHooks(d *dispatch.Dispatcher) {
	for _, b := range c.bindings() {
		b.RegisterHooks(d)
		b.Observe(relation.EventConnected, c.onConnected)
		b.Observe(relation.EventReady, c.onDependencyChanged)
		b.Observe(relation.EventGoneAway, c.onDependencyChanged)
	}
	c.database.Observe(database.EventDatabaseCreated, c.onDatabaseCreated)
	c.database.Observe(database.EventEndpointsChanged, c.onDependencyChanged)
	c.database.Observe(database.EventReadOnlyEndpointsChanged, c.onDependencyChanged)

	d.Observe(dispatch.Install, "", c.onInstall)
	d.Observe(dispatch.Start, "", c.onUpdateStatus)
	d.Observe(dispatch.ConfigChanged, "", c.onConfigChanged)
	d.Observe(dispatch.UpgradeCharm, "", c.onConfigChanged)
	d.Observe(dispatch.UpdateStatus, "", c.onUpdateStatus)
	d.Observe(dispatch.Action, RestartServicesAction, c.onRestartServices)
}
