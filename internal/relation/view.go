// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"context"

	"github.com/juju/errors"
)

// Resolution determines where in a bag a view looks for a key.
type Resolution int

const (
	// AppFirst reads the remote application's data, falling back to the
	// first remote unit that has the (legacy) key.
	AppFirst Resolution = iota

	// UnitOnly reads only the first remote unit's data.
	UnitOnly

	// AppOnly reads only the remote application's data.
	AppOnly
)

// String returns the name of the resolution order.
func (r Resolution) String() string {
	switch r {
	case AppFirst:
		return "app-first"
	case UnitOnly:
		return "unit-only"
	case AppOnly:
		return "app-only"
	}
	return "unknown"
}

// View resolves keys against a bag. A nil bag, or a view over a relation
// that has gone away, resolves nothing.
type View struct {
	bag        *Bag
	resolution Resolution
	legacyKey  func(string) string
}

// NewView returns a view over bag. legacyKey, if not nil, maps a key to the
// name it had in unit data before it was moved to application data; it is
// only consulted for AppFirst unit fallback.
func NewView(bag *Bag, resolution Resolution, legacyKey func(string) string) *View {
	return &View{
		bag:        bag,
		resolution: resolution,
		legacyKey:  legacyKey,
	}
}

// Get returns the current value for key. The boolean result is false if
// the key is not present anywhere the view looks.
func (v *View) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := v.Load(ctx)
	if err != nil {
		return "", false, errors.Trace(err)
	}
	value, ok := data.Get(key)
	return value, ok, nil
}

// Load reads the parts of the bag the view looks at, so a number of keys
// can be resolved against one consistent read.
func (v *View) Load(ctx context.Context) (*Data, error) {
	data := &Data{
		resolution: v.resolution,
		legacyKey:  v.legacyKey,
	}
	if v.bag == nil {
		return data, nil
	}
	var err error
	if v.resolution == AppFirst || v.resolution == AppOnly {
		if data.app, err = v.bag.AppSettings(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if v.resolution == AppOnly {
		return data, nil
	}
	units, err := v.bag.RemoteUnits(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if v.resolution == UnitOnly && len(units) > 1 {
		units = units[:1]
	}
	for _, unit := range units {
		settings, err := v.bag.UnitSettings(ctx, unit)
		if err != nil {
			return nil, errors.Trace(err)
		}
		data.units = append(data.units, settings)
	}
	return data, nil
}

// Data is one read of a bag, resolved according to a view's rules.
type Data struct {
	resolution Resolution
	legacyKey  func(string) string
	app        Settings
	units      []Settings
}

// Get resolves key. Empty values are treated as absent, the same as
// relation-set treats them.
func (d *Data) Get(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	switch d.resolution {
	case AppOnly:
		return present(d.app, key)
	case UnitOnly:
		if len(d.units) == 0 {
			return "", false
		}
		return present(d.units[0], key)
	}
	if value, ok := present(d.app, key); ok {
		return value, true
	}
	legacy := key
	if d.legacyKey != nil {
		legacy = d.legacyKey(key)
	}
	for _, settings := range d.units {
		if _, ok := settings[legacy]; ok {
			return present(settings, legacy)
		}
	}
	return "", false
}

// App returns a copy of the remote application data that was read.
func (d *Data) App() Settings {
	if d == nil {
		return Settings{}
	}
	result := make(Settings, len(d.app))
	for k, v := range d.app {
		result[k] = v
	}
	return result
}

func present(settings Settings, key string) (string, bool) {
	value := settings[key]
	return value, value != ""
}
