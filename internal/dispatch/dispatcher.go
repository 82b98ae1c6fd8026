// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatch

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("cloudkitty.dispatch")

// Handler handles one event.
type Handler func(ctx context.Context, ev Event) error

type handlerKey struct {
	kind Kind
	name string
}

// Dispatcher delivers events to the handlers registered for them. It is
// not safe for concurrent use; the unit agent runs one hook at a time.
type Dispatcher struct {
	handlers map[handlerKey][]Handler
}

// NewDispatcher returns a Dispatcher with no handlers.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[handlerKey][]Handler),
	}
}

// Observe registers h for events of the given kind. name is the relation
// endpoint for relation hooks, the action name for actions, and empty for
// every other hook.
func (d *Dispatcher) Observe(kind Kind, name string, h Handler) {
	key := handlerKey{kind: kind, name: name}
	d.handlers[key] = append(d.handlers[key], h)
}

// Dispatch runs the handlers observing ev in the order they were
// registered, stopping at the first error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return errors.Trace(err)
	}
	key := handlerKey{kind: ev.Kind}
	switch {
	case ev.Kind == Action:
		key.name = ev.ActionName
	case ev.Kind.IsRelation():
		key.name = ev.RelationName
	}
	handlers := d.handlers[key]
	if len(handlers) == 0 {
		logger.Debugf("no handlers for %s", ev)
		return nil
	}
	logger.Debugf("dispatching %s to %d handler(s)", ev, len(handlers))
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			return errors.Annotatef(err, "handling %s", ev)
		}
	}
	return nil
}
