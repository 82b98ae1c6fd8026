// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package relation_test

import (
	"context"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	corerelation "github.com/canonical/charm-cloudkitty/core/relation"
	"github.com/canonical/charm-cloudkitty/internal/dispatch"
	hooktesting "github.com/canonical/charm-cloudkitty/internal/hookcontext/testing"
	"github.com/canonical/charm-cloudkitty/internal/relation"
)

type bindingSuite struct {
	hctx    *hooktesting.Context
	id      int
	binding *relation.Binding
	events  []relation.Event
}

var _ = gc.Suite(&bindingSuite{})

func (s *bindingSuite) SetUpTest(c *gc.C) {
	s.hctx = hooktesting.NewContext("cloudkitty/0")
	s.id = s.hctx.AddRelation("amqp", "rabbitmq-server")
	s.hctx.AddRelationUnit(s.id, "rabbitmq-server/0")
	s.events = nil
	s.binding = relation.NewBinding(s.hctx, relation.Spec{
		Endpoint:   "amqp",
		Resolution: relation.UnitOnly,
		ReadyKeys:  []string{"password"},
		Register: func(ctx context.Context, bag *relation.Bag) error {
			return bag.SetLocalUnit(ctx, relation.Settings{"username": "cloudkitty"})
		},
	})
	record := func(_ context.Context, ev relation.Event) error {
		s.events = append(s.events, ev)
		return nil
	}
	s.binding.Observe(relation.EventConnected, record)
	s.binding.Observe(relation.EventReady, record)
	s.binding.Observe(relation.EventGoneAway, record)
}

func (s *bindingSuite) kinds() []relation.EventKind {
	var kinds []relation.EventKind
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (s *bindingSuite) TestJoinedRegisters(c *gc.C) {
	c.Assert(s.binding.Status(), gc.Equals, corerelation.Unbound)

	err := s.binding.Joined(context.Background(), s.id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.binding.Status(), gc.Equals, corerelation.Joined)
	c.Check(s.events, jc.DeepEquals, []relation.Event{{
		Kind:       relation.EventConnected,
		Endpoint:   "amqp",
		RelationID: s.id,
	}})
	c.Check(s.hctx.RelationData(s.id, "cloudkitty/0"), jc.DeepEquals, map[string]string{"username": "cloudkitty"})
}

func (s *bindingSuite) TestChangedNotReady(c *gc.C) {
	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"hostname": "10.0.0.1"})

	err := s.binding.Changed(context.Background(), s.id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.events, gc.HasLen, 0)
	c.Check(s.binding.Status(), gc.Equals, corerelation.Unbound)
	c.Check(s.binding.Ready(context.Background()), jc.IsFalse)
}

func (s *bindingSuite) TestChangedReadyIsReentrant(c *gc.C) {
	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"password": "rabbitpass"})

	for i := 0; i < 2; i++ {
		err := s.binding.Changed(context.Background(), s.id)
		c.Assert(err, jc.ErrorIsNil)
	}
	c.Check(s.binding.Status(), gc.Equals, corerelation.Ready)
	c.Check(s.kinds(), jc.DeepEquals, []relation.EventKind{relation.EventReady, relation.EventReady})
	c.Check(s.binding.Ready(context.Background()), jc.IsTrue)
}

func (s *bindingSuite) TestBrokenHidesStaleData(c *gc.C) {
	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"password": "rabbitpass"})
	value, ok, err := s.binding.Get(context.Background(), "password")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(ok, jc.IsTrue)
	c.Assert(value, gc.Equals, "rabbitpass")

	err = s.binding.Broken(context.Background(), s.id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.binding.Status(), gc.Equals, corerelation.GoneAway)

	_, ok, err = s.binding.Get(context.Background(), "password")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ok, jc.IsFalse)
	c.Check(s.binding.Ready(context.Background()), jc.IsFalse)

	err = s.binding.Changed(context.Background(), s.id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.kinds(), jc.DeepEquals, []relation.EventKind{relation.EventGoneAway})
}

func (s *bindingSuite) TestGoneAwayIsTerminal(c *gc.C) {
	err := s.binding.Broken(context.Background(), s.id)
	c.Assert(err, jc.ErrorIsNil)
	err = s.binding.Joined(context.Background(), s.id)
	c.Assert(err, gc.ErrorMatches, `amqp: cannot move from "goneaway" to "joined"`)
}

func (s *bindingSuite) TestReadySwallowsErrors(c *gc.C) {
	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"password": "rabbitpass"})
	s.hctx.SetErrors(errors.New("relation-ids failed"))
	c.Check(s.binding.Ready(context.Background()), jc.IsFalse)
	c.Check(s.binding.Ready(context.Background()), jc.IsTrue)
}

func (s *bindingSuite) TestObserverErrorPropagates(c *gc.C) {
	s.binding.Observe(relation.EventReady, func(context.Context, relation.Event) error {
		return errors.New("render failed")
	})
	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"password": "rabbitpass"})

	err := s.binding.Changed(context.Background(), s.id)
	c.Assert(err, gc.ErrorMatches, `observing amqp ready \(relation 0\): render failed`)
}

func (s *bindingSuite) TestChangedHookSeesData(c *gc.C) {
	var seen []string
	binding := relation.NewBinding(s.hctx, relation.Spec{
		Endpoint:   "amqp",
		Resolution: relation.UnitOnly,
		ReadyKeys:  []string{"password"},
		Changed: func(_ context.Context, bag *relation.Bag, data *relation.Data) error {
			c.Check(bag.ID(), gc.Equals, s.id)
			value, _ := data.Get("hostname")
			seen = append(seen, value)
			return nil
		},
	})
	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"hostname": "10.0.0.1"})

	err := binding.Changed(context.Background(), s.id)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(seen, jc.DeepEquals, []string{"10.0.0.1"})
}

func (s *bindingSuite) TestRegisterHooks(c *gc.C) {
	d := dispatch.NewDispatcher()
	s.binding.RegisterHooks(d)
	ctx := context.Background()

	err := d.Dispatch(ctx, dispatch.Event{
		Kind:         dispatch.RelationJoined,
		RelationName: "amqp",
		RelationID:   s.id,
		RemoteUnit:   "rabbitmq-server/0",
		RemoteApp:    "rabbitmq-server",
	})
	c.Assert(err, jc.ErrorIsNil)

	s.hctx.UpdateRelationData(s.id, "rabbitmq-server/0", map[string]string{"password": "rabbitpass"})
	err = d.Dispatch(ctx, dispatch.Event{
		Kind:         dispatch.RelationDeparted,
		RelationName: "amqp",
		RelationID:   s.id,
		RemoteUnit:   "rabbitmq-server/1",
		RemoteApp:    "rabbitmq-server",
	})
	c.Assert(err, jc.ErrorIsNil)

	err = d.Dispatch(ctx, dispatch.Event{
		Kind:         dispatch.RelationBroken,
		RelationName: "amqp",
		RelationID:   s.id,
		RemoteApp:    "rabbitmq-server",
	})
	c.Assert(err, jc.ErrorIsNil)

	c.Check(s.kinds(), jc.DeepEquals, []relation.EventKind{
		relation.EventConnected,
		relation.EventReady,
		relation.EventGoneAway,
	})
}
