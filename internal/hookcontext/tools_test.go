// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookcontext_test

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/canonical/charm-cloudkitty/core/status"
	"github.com/canonical/charm-cloudkitty/internal/cmdrunner"
	"github.com/canonical/charm-cloudkitty/internal/hookcontext"
)

type toolsSuite struct {
	runner *MockRunner
}

var _ = gc.Suite(&toolsSuite{})

func (s *toolsSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.runner = NewMockRunner(ctrl)
	return ctrl
}

func (s *toolsSuite) newContext(c *gc.C) *hookcontext.ToolContext {
	hctx, err := hookcontext.NewToolContext(s.runner, "cloudkitty/0")
	c.Assert(err, jc.ErrorIsNil)
	return hctx
}

func (s *toolsSuite) expectRun(name string, args []string, out string) {
	s.runner.EXPECT().Run(gomock.Any(), cmdrunner.Command{Name: name, Args: args}).Return([]byte(out), nil)
}

func (s *toolsSuite) TestNewToolContextInvalidUnit(c *gc.C) {
	_, err := hookcontext.NewToolContext(nil, "cloudkitty")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *toolsSuite) TestUnitAndApplicationName(c *gc.C) {
	defer s.setupMocks(c).Finish()

	hctx := s.newContext(c)
	c.Check(hctx.UnitName(), gc.Equals, "cloudkitty/0")
	c.Check(hctx.ApplicationName(), gc.Equals, "cloudkitty")
}

func (s *toolsSuite) TestRelationIDs(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("relation-ids", []string{"amqp", "--format=json"}, `["amqp:5","amqp:12"]`)

	ids, err := s.newContext(c).RelationIDs(context.Background(), "amqp")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ids, jc.DeepEquals, []int{5, 12})
}

func (s *toolsSuite) TestRelationIDsNone(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("relation-ids", []string{"amqp", "--format=json"}, "[]\n")

	ids, err := s.newContext(c).RelationIDs(context.Background(), "amqp")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(ids, gc.HasLen, 0)
}

func (s *toolsSuite) TestRelationList(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("relation-list", []string{"-r", "3", "--format=json"}, `["keystone/0","keystone/1"]`)
	s.expectRun("relation-list", []string{"-r", "3", "--app", "--format=json"}, `"keystone"`)

	hctx := s.newContext(c)
	units, err := hctx.RelationList(context.Background(), 3)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(units, jc.DeepEquals, []string{"keystone/0", "keystone/1"})

	app, err := hctx.RelationRemoteApp(context.Background(), 3)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(app, gc.Equals, "keystone")
}

func (s *toolsSuite) TestRelationGet(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("relation-get", []string{"-r", "3", "-", "keystone/0", "--format=json"}, `{"service_password":"old"}`)
	s.expectRun("relation-get", []string{"-r", "3", "--app", "-", "keystone", "--format=json"}, `{"service-password":"new"}`)

	hctx := s.newContext(c)
	settings, err := hctx.RelationGet(context.Background(), 3, "keystone/0", false)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(settings, jc.DeepEquals, map[string]string{"service_password": "old"})

	settings, err = hctx.RelationGet(context.Background(), 3, "keystone", true)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(settings, jc.DeepEquals, map[string]string{"service-password": "new"})
}

func (s *toolsSuite) TestRelationGetError(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	_, err := s.newContext(c).RelationGet(context.Background(), 3, "keystone/0", false)
	c.Assert(err, gc.ErrorMatches, `reading relation 3 settings for "keystone/0": boom`)
}

func (s *toolsSuite) TestRelationSet(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.runner.EXPECT().Run(gomock.Any(), cmdrunner.Command{
		Name:  "relation-set",
		Args:  []string{"-r", "7", "--app", "--file", "-"},
		Stdin: []byte("region: RegionOne\nservice-endpoints: '[]'\n"),
	}).Return(nil, nil)

	err := s.newContext(c).RelationSet(context.Background(), 7, true, map[string]string{
		"service-endpoints": "[]",
		"region":            "RegionOne",
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *toolsSuite) TestIsLeader(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("is-leader", []string{"--format=json"}, "true\n")

	leader, err := s.newContext(c).IsLeader(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(leader, jc.IsTrue)
}

func (s *toolsSuite) TestIsLeaderError(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, errors.New("no agent"))

	_, err := s.newContext(c).IsLeader(context.Background())
	c.Assert(err, gc.ErrorMatches, "leadership status unknown: no agent")
}

func (s *toolsSuite) TestConfigGet(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("config-get", []string{"--all", "--format=json"}, `{"debug":true,"region":"RegionOne"}`)

	config, err := s.newContext(c).ConfigGet(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(config, jc.DeepEquals, map[string]interface{}{"debug": true, "region": "RegionOne"})
}

func (s *toolsSuite) TestNetworkBindAddress(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("network-get", []string{"public", "--bind-address", "--format=json"}, `"10.0.0.10"`)

	address, err := s.newContext(c).NetworkBindAddress(context.Background(), "public")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(address, gc.Equals, "10.0.0.10")
}

func (s *toolsSuite) TestNetworkBindAddressEmpty(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("network-get", []string{"public", "--bind-address", "--format=json"}, `""`)

	_, err := s.newContext(c).NetworkBindAddress(context.Background(), "public")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *toolsSuite) TestSetUnitStatus(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("status-set", []string{"blocked", "Missing relations: amqp"}, "")

	err := s.newContext(c).SetUnitStatus(context.Background(), status.StatusInfo{
		Status:  status.Blocked,
		Message: "Missing relations: amqp",
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *toolsSuite) TestSetUnitStatusInvalid(c *gc.C) {
	defer s.setupMocks(c).Finish()

	err := s.newContext(c).SetUnitStatus(context.Background(), status.StatusInfo{Status: "error"})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *toolsSuite) TestActions(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.expectRun("action-log", []string{"restarting"}, "")
	s.expectRun("action-fail", []string{"Failed to restart service: cloudkitty-api"}, "")

	hctx := s.newContext(c)
	c.Assert(hctx.ActionLog(context.Background(), "restarting"), jc.ErrorIsNil)
	c.Assert(hctx.ActionFail(context.Background(), "Failed to restart service: cloudkitty-api"), jc.ErrorIsNil)
}

func (s *toolsSuite) TestJujuLogWriter(c *gc.C) {
	defer s.setupMocks(c).Finish()
	s.runner.EXPECT().Run(gomock.Any(), cmdrunner.Command{
		Name:  "juju-log",
		Args:  []string{"--log-level", "WARNING", "cloudkitty.test something odd"},
		Quiet: true,
	}).Return(nil, nil)

	writer := hookcontext.NewJujuLogWriter(s.newContext(c), nil)
	writer.Write(loggo.Entry{
		Level:   loggo.WARNING,
		Module:  "cloudkitty.test",
		Message: "something odd",
	})
}

func (s *toolsSuite) TestParseRelationKey(c *gc.C) {
	id, err := hookcontext.ParseRelationKey("identity-service:42")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(id, gc.Equals, 42)

	id, err = hookcontext.ParseRelationKey("7")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(id, gc.Equals, 7)

	_, err = hookcontext.ParseRelationKey("amqp:")
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
