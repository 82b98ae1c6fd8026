// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package keystone implements the requiring side of the keystone
// interface, used to register a service in the identity catalog and obtain
// service credentials.
package keystone

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
	"github.com/canonical/charm-cloudkitty/internal/relation"
)

var logger = loggo.GetLogger("cloudkitty.requires.keystone")

// Endpoint is the default relation endpoint name.
const Endpoint = "identity-service"

// legacyKeys holds the names keystone used in unit data before the values
// moved to application data, where they differ from the plain
// hyphen-to-underscore conversion.
var legacyKeys = map[string]string{
	"admin-user-name":      "admin_user",
	"service-user-name":    "service_username",
	"service-project-name": "service_tenant",
	"service-project-id":   "service_tenant_id",
	"service-domain-name":  "service_domain",
}

// LegacyKey returns the unit data name of key.
func LegacyKey(key string) string {
	if legacy, ok := legacyKeys[key]; ok {
		return legacy
	}
	return strings.Replace(key, "-", "_", -1)
}

// ServiceEndpoint is one catalog entry to register. Fields are kept in
// key order so the published JSON is stable.
type ServiceEndpoint struct {
	AdminURL    string `json:"admin_url"`
	InternalURL string `json:"internal_url"`
	PublicURL   string `json:"public_url"`
	ServiceName string `json:"service_name"`
}

// Credentials is what keystone publishes for a registered service.
type Credentials struct {
	APIVersion         string `mapstructure:"api-version"`
	AuthHost           string `mapstructure:"auth-host"`
	AuthPort           string `mapstructure:"auth-port"`
	AuthProtocol       string `mapstructure:"auth-protocol"`
	InternalHost       string `mapstructure:"internal-host"`
	InternalPort       string `mapstructure:"internal-port"`
	InternalProtocol   string `mapstructure:"internal-protocol"`
	AdminDomainName    string `mapstructure:"admin-domain-name"`
	AdminDomainID      string `mapstructure:"admin-domain-id"`
	AdminProjectName   string `mapstructure:"admin-project-name"`
	AdminProjectID     string `mapstructure:"admin-project-id"`
	AdminUserName      string `mapstructure:"admin-user-name"`
	AdminUserID        string `mapstructure:"admin-user-id"`
	ServiceDomainName  string `mapstructure:"service-domain-name"`
	ServiceDomainID    string `mapstructure:"service-domain-id"`
	ServiceHost        string `mapstructure:"service-host"`
	ServicePassword    string `mapstructure:"service-password"`
	ServicePort        string `mapstructure:"service-port"`
	ServiceProtocol    string `mapstructure:"service-protocol"`
	ServiceProjectName string `mapstructure:"service-project-name"`
	ServiceProjectID   string `mapstructure:"service-project-id"`
	ServiceUserName    string `mapstructure:"service-user-name"`
	ServiceUserID      string `mapstructure:"service-user-id"`
	InternalAuthURL    string `mapstructure:"internal-auth-url"`
	AdminAuthURL       string `mapstructure:"admin-auth-url"`
	PublicAuthURL      string `mapstructure:"public-auth-url"`
}

var credentialKeys = []string{
	"api-version",
	"auth-host",
	"auth-port",
	"auth-protocol",
	"internal-host",
	"internal-port",
	"internal-protocol",
	"admin-domain-name",
	"admin-domain-id",
	"admin-project-name",
	"admin-project-id",
	"admin-user-name",
	"admin-user-id",
	"service-domain-name",
	"service-domain-id",
	"service-host",
	"service-password",
	"service-port",
	"service-protocol",
	"service-project-name",
	"service-project-id",
	"service-user-name",
	"service-user-id",
	"internal-auth-url",
	"admin-auth-url",
	"public-auth-url",
}

// Context is the part of the hook context the binding uses.
type Context interface {
	hookcontext.ContextRelations
	hookcontext.ContextLeadership
}

// Requires is the identity dependency of a service.
type Requires struct {
	*relation.Binding

	hctx      Context
	endpoints []ServiceEndpoint
	region    string
}

// New returns the identity binding on endpoint, registering endpoints in
// region when keystone joins.
func New(hctx Context, endpoint string, endpoints []ServiceEndpoint, region string) *Requires {
	r := &Requires{
		hctx:      hctx,
		endpoints: endpoints,
		region:    region,
	}
	r.Binding = relation.NewBinding(hctx, relation.Spec{
		Endpoint:   endpoint,
		Resolution: relation.AppFirst,
		LegacyKey:  LegacyKey,
		ReadyKeys:  []string{"service-password"},
		Register:   r.register,
	})
	return r
}

// register publishes the service endpoints. Older keystone charms read
// the first endpoint from unit data; newer ones read the full list from
// application data, which only the leader may write.
func (r *Requires) register(ctx context.Context, bag *relation.Bag) error {
	if len(r.endpoints) == 0 {
		return errors.NotValidf("registration without service endpoints")
	}
	first := r.endpoints[0]
	err := bag.SetLocalUnit(ctx, relation.Settings{
		"service":      first.ServiceName,
		"public_url":   first.PublicURL,
		"internal_url": first.InternalURL,
		"admin_url":    first.AdminURL,
		"region":       r.region,
	})
	if err != nil {
		return errors.Trace(err)
	}
	leader, err := r.hctx.IsLeader(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if !leader {
		return nil
	}
	logger.Debugf("requesting service registration")
	endpoints, err := json.Marshal(r.endpoints)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(bag.SetLocalApp(ctx, relation.Settings{
		"service-endpoints": string(endpoints),
		"region":            r.region,
	}))
}

// ServicePassword returns the password of the service user.
func (r *Requires) ServicePassword(ctx context.Context) (string, bool, error) {
	return r.Get(ctx, "service-password")
}

// Credentials resolves everything keystone published. Values not yet
// published are empty.
func (r *Requires) Credentials(ctx context.Context) (Credentials, error) {
	var creds Credentials
	data, err := r.Load(ctx)
	if err != nil {
		return creds, errors.Trace(err)
	}
	resolved := make(map[string]string)
	for _, key := range credentialKeys {
		if value, ok := data.Get(key); ok {
			resolved[key] = value
		}
	}
	if err := mapstructure.Decode(resolved, &creds); err != nil {
		return creds, errors.Annotate(err, "decoding identity credentials")
	}
	return creds, nil
}
