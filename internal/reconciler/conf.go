// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package reconciler

import (
	"fmt"
	"path/filepath"

	"github.com/chainfleet/keeper/core/spec"
	"github.com/chainfleet/keeper/internal/probe"
	"github.com/chainfleet/keeper/internal/service"
)

// binDir is where the managed binaries are installed. Binary download
// and version sync are outside the core; we only point units at the
// result.
var binDir = "/usr/local/bin"

// UnitConf builds the supervisor unit configuration for a spec.
func UnitConf(sp spec.ServiceSpec) service.Conf {
	conf := service.Conf{
		Desc:       fmt.Sprintf("keeper %s (%s)", sp.Kind, sp.Network),
		Owner:      sp.Owner,
		WorkingDir: sp.DataDir,
		Limit:      map[string]string{"nofile": "8192"},
	}
	switch sp.Kind {
	case spec.BaseLayerNode:
		conf.ExecStart = fmt.Sprintf("%s -conf=%s",
			filepath.Join(binDir, "basenoded"), filepath.Join(sp.DataDir, "basenode.conf"))
	case spec.Indexer:
		conf.ExecStart = fmt.Sprintf("%s --config %s",
			filepath.Join(binDir, "chain-indexer"), filepath.Join(sp.DataDir, "indexer.toml"))
	case spec.Validator:
		conf.ExecStart = fmt.Sprintf("%s --config %s",
			filepath.Join(binDir, "validatord"), filepath.Join(sp.DataDir, "validator.yaml"))
	}
	return conf
}

// DefaultReady builds the readiness predicate for a spec from its RPC
// parameters.
func DefaultReady(sp spec.ServiceSpec) func() bool {
	bind := sp.Params["rpc-bind"]
	switch sp.Kind {
	case spec.BaseLayerNode:
		return probe.BaseLayerReady(
			"http://"+bind+"/", sp.Params["rpc-user"], sp.Params["rpc-password"])
	case spec.Indexer:
		return probe.IndexerReady("http://" + bind + "/status")
	case spec.Validator:
		return probe.ValidatorReady("http://" + bind + "/")
	}
	return func() bool { return false }
}
