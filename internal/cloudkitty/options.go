// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cloudkitty

import (
	"github.com/juju/errors"
	"github.com/juju/schema"
)

// Options holds the charm config.
type Options struct {
	Debug     bool
	Verbose   bool
	UseSyslog bool
	Region    string
}

var optionsSchema = schema.FieldMap(
	schema.Fields{
		"debug":      schema.Bool(),
		"verbose":    schema.Bool(),
		"use-syslog": schema.Bool(),
		"region":     schema.String(),
	},
	schema.Defaults{
		"debug":      false,
		"verbose":    false,
		"use-syslog": false,
		"region":     "RegionOne",
	},
)

// ParseOptions coerces the values returned by config-get. Unknown keys
// are ignored and missing ones take their defaults.
func ParseOptions(raw map[string]interface{}) (Options, error) {
	v, err := optionsSchema.Coerce(raw, nil)
	if err != nil {
		return Options{}, errors.Annotate(err, "charm config")
	}
	m := v.(map[string]interface{})
	return Options{
		Debug:     m["debug"].(bool),
		Verbose:   m["verbose"].(bool),
		UseSyslog: m["use-syslog"].(bool),
		Region:    m["region"].(string),
	}, nil
}
