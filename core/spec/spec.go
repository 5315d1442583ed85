// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package spec defines the declarative description of a managed node
// service. A ServiceSpec is constructed once at the process boundary,
// validated, and then passed by value through the reconciliation core;
// it is never persisted and never mutated.
package spec

import (
	"path/filepath"
	"sort"

	"github.com/juju/errors"
)

// Kind identifies one of the managed service families.
type Kind string

const (
	// Validator is the block-producing validator process.
	Validator Kind = "validator"

	// Indexer is the chain-indexer process the validator reads from.
	Indexer Kind = "indexer"

	// BaseLayerNode is the base-layer full node the indexer follows.
	BaseLayerNode Kind = "basenode"
)

// ParseKind converts a command-line token into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Validator, Indexer, BaseLayerNode:
		return Kind(s), nil
	}
	return "", errors.Annotatef(ValidationError, "unknown service kind %q", s)
}

// NetworkMode selects which network a service instance joins.
type NetworkMode string

const (
	Mainnet NetworkMode = "mainnet"
	Testnet NetworkMode = "testnet"
	Regtest NetworkMode = "regtest"
)

// networksByKind lists the network modes each service kind supports.
// Regtest only exists at the base layer.
var networksByKind = map[Kind][]NetworkMode{
	Validator:     {Mainnet, Testnet},
	Indexer:       {Mainnet, Testnet},
	BaseLayerNode: {Mainnet, Testnet, Regtest},
}

// requiredParams lists the parameters a spec must carry per kind.
var requiredParams = map[Kind][]string{
	BaseLayerNode: {"rpc-bind", "rpc-user", "rpc-password"},
	Indexer:       {"rpc-bind", "base-rpc-url"},
	Validator:     {"rpc-bind", "indexer-url", "identity-file"},
}

// optionalParams lists parameters a spec may carry per kind. Anything
// not in requiredParams or optionalParams fails validation, so a typo
// in a parameter name is caught before any infrastructure is touched.
var optionalParams = map[Kind][]string{
	BaseLayerNode: {"prune", "peer-endpoint"},
	Indexer:       {"index-workers"},
	Validator:     {"fee-recipient"},
}

// ServiceSpec describes one managed service instance. It is immutable
// for the lifetime of a reconciliation call.
type ServiceSpec struct {
	// Kind is the service family.
	Kind Kind

	// Owner is the OS-level principal the process runs as.
	Owner string

	// Network is the network mode the instance joins.
	Network NetworkMode

	// DataDir is the principal-owned directory holding chain data,
	// rendered config and secret material.
	DataDir string

	// Params holds kind-specific settings such as the RPC bind
	// address or the pruning target.
	Params map[string]string
}

// ServiceName returns the supervisor unit name for the spec. The name
// keys the advisory reconciliation lock, so it must be stable across
// invocations for the same logical instance.
func (s ServiceSpec) ServiceName() string {
	return "keeper-" + string(s.Kind) + "-" + string(s.Network)
}

// Param returns the named parameter, or the fallback when unset.
func (s ServiceSpec) Param(name, fallback string) string {
	if v, ok := s.Params[name]; ok {
		return v
	}
	return fallback
}

// SortedParamNames returns the spec's parameter names in a stable
// order. Renderers iterate parameters through this so that rendering
// is deterministic regardless of map iteration order.
func (s ServiceSpec) SortedParamNames() []string {
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the spec is complete enough to reconcile.
// It has no side effects; a failure here is terminal for the call.
func (s ServiceSpec) Validate() error {
	networks, ok := networksByKind[s.Kind]
	if !ok {
		return errors.Annotatef(ValidationError, "unknown service kind %q", s.Kind)
	}
	if s.Owner == "" {
		return errors.Annotatef(ValidationError, "missing owner principal")
	}
	if s.DataDir == "" {
		return errors.Annotatef(ValidationError, "missing data directory")
	}
	if !filepath.IsAbs(s.DataDir) {
		return errors.Annotatef(ValidationError, "data directory %q is not absolute", s.DataDir)
	}
	if !containsNetwork(networks, s.Network) {
		return errors.Annotatef(ValidationError,
			"network %q not supported by service kind %q", s.Network, s.Kind)
	}
	for _, name := range requiredParams[s.Kind] {
		if s.Params[name] == "" {
			return errors.Annotatef(ValidationError,
				"missing required parameter %q for service kind %q", name, s.Kind)
		}
	}
	allowed := make(map[string]bool)
	for _, name := range requiredParams[s.Kind] {
		allowed[name] = true
	}
	for _, name := range optionalParams[s.Kind] {
		allowed[name] = true
	}
	for _, name := range s.SortedParamNames() {
		if !allowed[name] {
			return errors.Annotatef(ValidationError,
				"unknown parameter %q for service kind %q", name, s.Kind)
		}
	}
	return nil
}

func containsNetwork(networks []NetworkMode, n NetworkMode) bool {
	for _, candidate := range networks {
		if candidate == n {
			return true
		}
	}
	return false
}
