// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/kr/pretty"

	corerelation "github.com/canonical/charm-cloudkitty/core/relation"
	"github.com/canonical/charm-cloudkitty/internal/dispatch"
	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
)

var logger = loggo.GetLogger("cloudkitty.relation")

// EventKind identifies something a binding tells its observers.
type EventKind string

const (
	// EventConnected is emitted when a remote unit joins the relation.
	EventConnected EventKind = "connected"

	// EventReady is emitted whenever the relation changes and the remote
	// side has published everything the binding needs.
	EventReady EventKind = "ready"

	// EventGoneAway is emitted when the relation is removed.
	EventGoneAway EventKind = "goneaway"
)

// Event is delivered to the observers of a binding.
type Event struct {
	Kind       EventKind
	Endpoint   string
	RelationID int
}

// String implements fmt.Stringer.
func (e Event) String() string {
	return fmt.Sprintf("%s %s (relation %d)", e.Endpoint, e.Kind, e.RelationID)
}

// Handler observes binding events.
type Handler func(ctx context.Context, ev Event) error

// Spec describes one dependency a charm requires over a relation endpoint.
type Spec struct {
	// Endpoint is the relation endpoint name from metadata.yaml.
	Endpoint string

	// Resolution is the order in which the relation data is searched.
	Resolution Resolution

	// LegacyKey optionally maps keys to their old unit data names.
	LegacyKey func(string) string

	// ReadyKeys must all resolve to a value for the binding to be ready.
	ReadyKeys []string

	// Register, if set, publishes the local side of the relation when a
	// remote unit joins.
	Register func(ctx context.Context, bag *Bag) error

	// Changed, if set, is called with the current data on every change
	// to the relation, before readiness is evaluated.
	Changed func(ctx context.Context, bag *Bag, data *Data) error
}

// Binding tracks the lifecycle of one dependency and resolves the data the
// remote side published. It holds no state beyond the status reached while
// handling the current hook; everything else is read from the relation.
type Binding struct {
	hctx     hookcontext.ContextRelations
	spec     Spec
	status   corerelation.Status
	handlers map[EventKind][]Handler
}

// NewBinding returns an unbound binding for spec.
func NewBinding(hctx hookcontext.ContextRelations, spec Spec) *Binding {
	return &Binding{
		hctx:     hctx,
		spec:     spec,
		status:   corerelation.Unbound,
		handlers: make(map[EventKind][]Handler),
	}
}

// Endpoint returns the relation endpoint name.
func (b *Binding) Endpoint() string {
	return b.spec.Endpoint
}

// Status returns the lifecycle status of the binding.
func (b *Binding) Status() corerelation.Status {
	return b.status
}

// Observe registers h for events of the given kind.
func (b *Binding) Observe(kind EventKind, h Handler) {
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Emit delivers an event of the given kind to the binding's observers,
// stopping at the first error.
func (b *Binding) Emit(ctx context.Context, kind EventKind, relationID int) error {
	ev := Event{Kind: kind, Endpoint: b.spec.Endpoint, RelationID: relationID}
	logger.Debugf("emitting %s", ev)
	for _, h := range b.handlers[kind] {
		if err := h(ctx, ev); err != nil {
			return errors.Annotatef(err, "observing %s", ev)
		}
	}
	return nil
}

func (b *Binding) transition(next corerelation.Status) error {
	if !b.status.CanTransitionTo(next) {
		return errors.Errorf("%s: cannot move from %q to %q", b.spec.Endpoint, b.status, next)
	}
	b.status = next
	return nil
}

// Joined handles a remote unit joining the relation.
func (b *Binding) Joined(ctx context.Context, relationID int) error {
	if err := b.transition(corerelation.Joined); err != nil {
		return errors.Trace(err)
	}
	if err := b.Emit(ctx, EventConnected, relationID); err != nil {
		return errors.Trace(err)
	}
	if b.spec.Register == nil {
		return nil
	}
	err := b.spec.Register(ctx, NewBag(b.hctx, relationID))
	return errors.Annotatef(err, "registering with %s", b.spec.Endpoint)
}

// Changed handles a change to the relation data or its membership.
// Nothing is emitted until the remote side is ready.
func (b *Binding) Changed(ctx context.Context, relationID int) error {
	if b.status == corerelation.GoneAway {
		logger.Debugf("%s: ignoring change to relation %d, gone away", b.spec.Endpoint, relationID)
		return nil
	}
	bag := NewBag(b.hctx, relationID)
	if b.spec.Changed != nil {
		data, err := b.view(bag).Load(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if err := b.spec.Changed(ctx, bag, data); err != nil {
			return errors.Trace(err)
		}
	}
	if !b.Ready(ctx) {
		logger.Debugf("%s: relation %d not ready", b.spec.Endpoint, relationID)
		return nil
	}
	if err := b.transition(corerelation.Ready); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(b.Emit(ctx, EventReady, relationID))
}

// Broken handles the removal of the relation. The binding resolves
// nothing from then on.
func (b *Binding) Broken(ctx context.Context, relationID int) error {
	if err := b.transition(corerelation.GoneAway); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(b.Emit(ctx, EventGoneAway, relationID))
}

func (b *Binding) view(bag *Bag) *View {
	if b.status == corerelation.GoneAway {
		bag = nil
	}
	return NewView(bag, b.spec.Resolution, b.spec.LegacyKey)
}

// View returns a view over the current relation on the endpoint.
func (b *Binding) View(ctx context.Context) (*View, error) {
	if b.status == corerelation.GoneAway {
		return b.view(nil), nil
	}
	bag, ok, err := FirstBag(ctx, b.hctx, b.spec.Endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if !ok {
		bag = nil
	}
	return b.view(bag), nil
}

// Load reads the current relation data.
func (b *Binding) Load(ctx context.Context) (*Data, error) {
	view, err := b.View(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	data, err := view.Load(ctx)
	return data, errors.Trace(err)
}

// Get resolves a single key.
func (b *Binding) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := b.Load(ctx)
	if err != nil {
		return "", false, errors.Trace(err)
	}
	value, ok := data.Get(key)
	return value, ok, nil
}

// Ready reports whether every ready key currently resolves. Failing to
// read the relation counts as not ready.
func (b *Binding) Ready(ctx context.Context) bool {
	data, err := b.Load(ctx)
	if err != nil {
		logger.Debugf("%s: cannot evaluate readiness: %v", b.spec.Endpoint, err)
		return false
	}
	if logger.IsTraceEnabled() {
		logger.Tracef("%s application data: %s", b.spec.Endpoint, pretty.Sprint(data.App()))
	}
	for _, key := range b.spec.ReadyKeys {
		if _, ok := data.Get(key); !ok {
			return false
		}
	}
	return len(b.spec.ReadyKeys) > 0
}

// RegisterHooks routes the endpoint's relation hooks to the binding.
func (b *Binding) RegisterHooks(d *dispatch.Dispatcher) {
	d.Observe(dispatch.RelationJoined, b.spec.Endpoint, func(ctx context.Context, ev dispatch.Event) error {
		return b.Joined(ctx, ev.RelationID)
	})
	changed := func(ctx context.Context, ev dispatch.Event) error {
		return b.Changed(ctx, ev.RelationID)
	}
	d.Observe(dispatch.RelationChanged, b.spec.Endpoint, changed)
	d.Observe(dispatch.RelationDeparted, b.spec.Endpoint, changed)
	d.Observe(dispatch.RelationBroken, b.spec.Endpoint, func(ctx context.Context, ev dispatch.Event) error {
		return b.Broken(ctx, ev.RelationID)
	})
}
