// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package spec_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/chainfleet/keeper/core/spec"
)

type specSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&specSuite{})

func validIndexerSpec() spec.ServiceSpec {
	return spec.ServiceSpec{
		Kind:    spec.Indexer,
		Owner:   "keeper-indexer-testnet",
		Network: spec.Testnet,
		DataDir: "/var/lib/keeper/keeper-indexer-testnet",
		Params: map[string]string{
			"rpc-bind":     "127.0.0.1:8090",
			"base-rpc-url": "http://127.0.0.1:18332",
		},
	}
}

func (s *specSuite) TestValidateSuccess(c *gc.C) {
	c.Assert(validIndexerSpec().Validate(), jc.ErrorIsNil)
}

func (s *specSuite) TestValidateUnknownKind(c *gc.C) {
	sp := validIndexerSpec()
	sp.Kind = "gadget"
	err := sp.Validate()
	c.Assert(err, jc.ErrorIs, spec.ValidationError)
	c.Assert(err, gc.ErrorMatches, `unknown service kind "gadget".*`)
}

func (s *specSuite) TestValidateMissingOwner(c *gc.C) {
	sp := validIndexerSpec()
	sp.Owner = ""
	c.Assert(sp.Validate(), jc.ErrorIs, spec.ValidationError)
}

func (s *specSuite) TestValidateMissingDataDir(c *gc.C) {
	sp := validIndexerSpec()
	sp.DataDir = ""
	c.Assert(sp.Validate(), jc.ErrorIs, spec.ValidationError)
}

func (s *specSuite) TestValidateRelativeDataDir(c *gc.C) {
	sp := validIndexerSpec()
	sp.DataDir = "relative/dir"
	c.Assert(sp.Validate(), jc.ErrorIs, spec.ValidationError)
}

func (s *specSuite) TestValidateUnsupportedNetwork(c *gc.C) {
	sp := validIndexerSpec()
	sp.Network = spec.Regtest
	err := sp.Validate()
	c.Assert(err, jc.ErrorIs, spec.ValidationError)
	c.Assert(err, gc.ErrorMatches, `network "regtest" not supported.*`)
}

func (s *specSuite) TestValidateMissingRequiredParam(c *gc.C) {
	sp := validIndexerSpec()
	delete(sp.Params, "base-rpc-url")
	err := sp.Validate()
	c.Assert(err, jc.ErrorIs, spec.ValidationError)
	c.Assert(err, gc.ErrorMatches, `missing required parameter "base-rpc-url".*`)
}

func (s *specSuite) TestValidateUnknownParam(c *gc.C) {
	sp := validIndexerSpec()
	sp.Params["rcp-bind"] = "oops"
	err := sp.Validate()
	c.Assert(err, jc.ErrorIs, spec.ValidationError)
	c.Assert(err, gc.ErrorMatches, `unknown parameter "rcp-bind".*`)
}

func (s *specSuite) TestValidateOptionalParamAccepted(c *gc.C) {
	sp := validIndexerSpec()
	sp.Params["index-workers"] = "8"
	c.Assert(sp.Validate(), jc.ErrorIsNil)
}

func (s *specSuite) TestServiceName(c *gc.C) {
	c.Check(validIndexerSpec().ServiceName(), gc.Equals, "keeper-indexer-testnet")

	sp := spec.ServiceSpec{Kind: spec.BaseLayerNode, Network: spec.Regtest}
	c.Check(sp.ServiceName(), gc.Equals, "keeper-basenode-regtest")
}

func (s *specSuite) TestSortedParamNames(c *gc.C) {
	sp := validIndexerSpec()
	c.Check(sp.SortedParamNames(), gc.DeepEquals, []string{"base-rpc-url", "rpc-bind"})
}

func (s *specSuite) TestParamFallback(c *gc.C) {
	sp := validIndexerSpec()
	c.Check(sp.Param("index-workers", "4"), gc.Equals, "4")
	c.Check(sp.Param("rpc-bind", ""), gc.Equals, "127.0.0.1:8090")
}

func (s *specSuite) TestParseKind(c *gc.C) {
	for _, name := range []string{"validator", "indexer", "basenode"} {
		kind, err := spec.ParseKind(name)
		c.Assert(err, jc.ErrorIsNil)
		c.Check(string(kind), gc.Equals, name)
	}
	_, err := spec.ParseKind("miner")
	c.Assert(errors.Is(err, spec.ValidationError), jc.IsTrue)
}
