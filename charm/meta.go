// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package charm reads the charm's own metadata.
package charm

import (
	"io"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

const (
	ScopeGlobal    = "global"
	ScopeContainer = "container"
)

// Relation represents a single relation endpoint defined in the charm
// metadata.yaml file.
type Relation struct {
	Name      string
	Interface string
	Optional  bool
	Limit     int
	Scope     string
}

// Meta represents the parts of metadata.yaml the charm acts on.
type Meta struct {
	Name        string
	Summary     string
	Description string
	Subordinate bool
	Provides    map[string]Relation
	Requires    map[string]Relation
	Peers       map[string]Relation
}

// ReadMeta reads the content of a metadata.yaml file and returns its
// representation.
func ReadMeta(r io.Reader) (*Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw := make(map[interface{}]interface{})
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, errors.Annotate(err, "metadata")
	}
	v, err := charmSchema.Coerce(raw, nil)
	if err != nil {
		return nil, errors.Annotate(err, "metadata")
	}
	m := v.(map[string]interface{})
	meta := &Meta{
		Name:     m["name"].(string),
		Provides: parseRelations(m["provides"]),
		Requires: parseRelations(m["requires"]),
		Peers:    parseRelations(m["peers"]),
	}
	if summary, ok := m["summary"].(string); ok {
		meta.Summary = summary
	}
	if description, ok := m["description"].(string); ok {
		meta.Description = description
	}
	if subordinate, ok := m["subordinate"].(bool); ok {
		meta.Subordinate = subordinate
	}
	return meta, nil
}

// RequiredRelations returns the names of the required endpoints that are
// not optional, in sorted order.
func (m *Meta) RequiredRelations() []string {
	var names []string
	for name, rel := range m.Requires {
		if !rel.Optional {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseRelations(relations interface{}) map[string]Relation {
	if relations == nil {
		return nil
	}
	result := make(map[string]Relation)
	for name, rel := range relations.(map[string]interface{}) {
		relMap := rel.(map[string]interface{})
		relation := Relation{
			Name:      name,
			Interface: relMap["interface"].(string),
			Optional:  relMap["optional"].(bool),
			Scope:     relMap["scope"].(string),
		}
		if limit, ok := relMap["limit"].(int64); ok {
			relation.Limit = int(limit)
		}
		result[name] = relation
	}
	return result
}

// ifaceExpander expands the interface shorthand notation, so that
//
//	requires:
//	  amqp: rabbitmq
//
// and
//
//	requires:
//	  amqp:
//	    interface: rabbitmq
//
// both coerce to the fully specified form.
func ifaceExpander(limit interface{}) schema.Checker {
	return ifaceExpC{limit}
}

type ifaceExpC struct {
	limit interface{}
}

var (
	stringC = schema.String()
	mapC    = schema.StringMap(schema.Any())
)

func (c ifaceExpC) Coerce(v interface{}, path []string) (interface{}, error) {
	if s, err := stringC.Coerce(v, path); err == nil {
		return ifaceSchema.Coerce(map[string]interface{}{
			"interface": s,
			"limit":     c.limit,
		}, path)
	}
	v, err := mapC.Coerce(v, path)
	if err != nil {
		return nil, err
	}
	m := v.(map[string]interface{})
	if _, ok := m["limit"]; !ok {
		m["limit"] = c.limit
	}
	return ifaceSchema.Coerce(m, path)
}

var ifaceSchema = schema.FieldMap(
	schema.Fields{
		"interface": schema.String(),
		"limit":     schema.OneOf(schema.Const(nil), schema.Int()),
		"scope":     schema.OneOf(schema.Const(ScopeGlobal), schema.Const(ScopeContainer)),
		"optional":  schema.Bool(),
	},
	schema.Defaults{
		"scope":    ScopeGlobal,
		"optional": false,
	},
)

var charmSchema = schema.FieldMap(
	schema.Fields{
		"name":        schema.String(),
		"summary":     schema.String(),
		"description": schema.String(),
		"peers":       schema.StringMap(ifaceExpander(1)),
		"provides":    schema.StringMap(ifaceExpander(nil)),
		"requires":    schema.StringMap(ifaceExpander(1)),
		"subordinate": schema.Bool(),
	},
	schema.Defaults{
		"summary":     schema.Omit,
		"description": schema.Omit,
		"peers":       schema.Omit,
		"provides":    schema.Omit,
		"requires":    schema.Omit,
		"subordinate": schema.Omit,
	},
)
