// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service_test

import (
	"os/user"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/chainfleet/keeper/internal/service"
)

type principalSuite struct {
	testing.IsolationSuite

	stub  *testing.Stub
	users map[string]*user.User
}

var _ = gc.Suite(&principalSuite{})

func (s *principalSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.stub = &testing.Stub{}
	s.users = make(map[string]*user.User)
}

func (s *principalSuite) manager() *service.UserManager {
	return service.NewUserManagerWithDeps(
		func(name string, args ...string) ([]byte, error) {
			callArgs := append([]string{name}, args...)
			s.stub.AddCall("run", callArgs)
			return nil, s.stub.NextErr()
		},
		func(name string) (*user.User, error) {
			if u, ok := s.users[name]; ok {
				return u, nil
			}
			return nil, user.UnknownUserError(name)
		},
	)
}

func (s *principalSuite) TestEnsurePrincipalCreates(c *gc.C) {
	err := s.manager().EnsurePrincipal("keeper-indexer-testnet", "/var/lib/keeper/keeper-indexer-testnet")
	c.Assert(err, jc.ErrorIsNil)

	s.stub.CheckCallNames(c, "run")
	args := s.stub.Calls()[0].Args[0].([]string)
	c.Check(args[0], gc.Equals, "useradd")
	c.Check(args[len(args)-1], gc.Equals, "keeper-indexer-testnet")
}

func (s *principalSuite) TestEnsurePrincipalExistingIsNoop(c *gc.C) {
	s.users["keeper-indexer-testnet"] = &user.User{Uid: "998", Gid: "997"}

	err := s.manager().EnsurePrincipal("keeper-indexer-testnet", "/anywhere")
	c.Assert(err, jc.ErrorIsNil)
	s.stub.CheckNoCalls(c)
}

func (s *principalSuite) TestEnsurePrincipalCommandFailure(c *gc.C) {
	s.stub.SetErrors(errors.New("exit status 1"))

	err := s.manager().EnsurePrincipal("keeper-indexer-testnet", "/anywhere")
	c.Assert(err, jc.ErrorIs, service.InfrastructureError)
}

func (s *principalSuite) TestLookupPrincipal(c *gc.C) {
	s.users["keeper-indexer-testnet"] = &user.User{Uid: "998", Gid: "997"}

	uid, gid, err := s.manager().LookupPrincipal("keeper-indexer-testnet")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(uid, gc.Equals, 998)
	c.Check(gid, gc.Equals, 997)
}

func (s *principalSuite) TestLookupPrincipalMissing(c *gc.C) {
	_, _, err := s.manager().LookupPrincipal("nobody-here")
	c.Assert(err, jc.ErrorIs, service.InfrastructureError)
}

func (s *principalSuite) TestRemovePrincipal(c *gc.C) {
	s.users["keeper-indexer-testnet"] = &user.User{Uid: "998", Gid: "997"}

	err := s.manager().RemovePrincipal("keeper-indexer-testnet")
	c.Assert(err, jc.ErrorIsNil)

	s.stub.CheckCallNames(c, "run")
	args := s.stub.Calls()[0].Args[0].([]string)
	c.Check(args, gc.DeepEquals, []string{"userdel", "--remove", "keeper-indexer-testnet"})
}

func (s *principalSuite) TestRemovePrincipalAbsentIsNoop(c *gc.C) {
	err := s.manager().RemovePrincipal("keeper-indexer-testnet")
	c.Assert(err, jc.ErrorIsNil)
	s.stub.CheckNoCalls(c)
}
