// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package render turns a ServiceSpec into the canonical config text
// for its service kind. Rendering is pure and deterministic: the same
// spec always yields byte-identical output, which is what lets the
// reconciler use a plain byte comparison to decide whether anything
// on disk needs to change.
package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/chainfleet/keeper/core/spec"
)

// RenderedConfig is the canonical on-disk form of a spec's config.
type RenderedConfig struct {
	// Path is where the config belongs inside the data directory.
	Path string

	// Mode is the required file mode. Configs carry RPC credentials,
	// so they are always owner-only.
	Mode os.FileMode

	// Owner is the principal that must own the file.
	Owner string

	// Data is the rendered config text.
	Data []byte
}

// Render produces the RenderedConfig for the given spec. It performs
// no I/O and does not consult the environment.
func Render(sp spec.ServiceSpec) (RenderedConfig, error) {
	var (
		data []byte
		name string
		err  error
	)
	switch sp.Kind {
	case spec.BaseLayerNode:
		data, err = renderBaseNode(sp)
		name = "basenode.conf"
	case spec.Indexer:
		data, err = renderIndexer(sp)
		name = "indexer.toml"
	case spec.Validator:
		data, err = renderValidator(sp)
		name = "validator.yaml"
	default:
		return RenderedConfig{}, errors.Annotatef(spec.ValidationError,
			"cannot render config for service kind %q", sp.Kind)
	}
	if err != nil {
		return RenderedConfig{}, errors.Trace(err)
	}
	return RenderedConfig{
		Path:  filepath.Join(sp.DataDir, name),
		Mode:  0o600,
		Owner: sp.Owner,
		Data:  data,
	}, nil
}

// renderBaseNode emits the flat key=value dialect the base-layer node
// reads. Field order is fixed; spec parameters never feed a map
// directly into the output.
func renderBaseNode(sp spec.ServiceSpec) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Managed by keeper. Manual edits will be overwritten.\n")
	switch sp.Network {
	case spec.Testnet:
		fmt.Fprintf(&buf, "testnet=1\n")
	case spec.Regtest:
		fmt.Fprintf(&buf, "regtest=1\n")
	}
	fmt.Fprintf(&buf, "datadir=%s\n", sp.DataDir)
	fmt.Fprintf(&buf, "server=1\n")
	fmt.Fprintf(&buf, "rpcbind=%s\n", sp.Params["rpc-bind"])
	fmt.Fprintf(&buf, "rpcallowip=127.0.0.1\n")
	fmt.Fprintf(&buf, "rpcuser=%s\n", sp.Params["rpc-user"])
	fmt.Fprintf(&buf, "rpcpassword=%s\n", sp.Params["rpc-password"])
	fmt.Fprintf(&buf, "txindex=1\n")
	if prune := sp.Param("prune", ""); prune != "" {
		fmt.Fprintf(&buf, "prune=%s\n", prune)
	}
	if peer := sp.Param("peer-endpoint", ""); peer != "" {
		fmt.Fprintf(&buf, "addnode=%s\n", peer)
	}
	return buf.Bytes(), nil
}

// indexerConfig is the TOML document the chain indexer reads. The
// encoder walks struct fields in declaration order, so the rendered
// bytes are stable.
type indexerConfig struct {
	Network     string `toml:"network"`
	DataDir     string `toml:"data_dir"`
	RPCBind     string `toml:"rpc_bind"`
	BaseRPCURL  string `toml:"base_rpc_url"`
	IndexWorker int    `toml:"index_workers"`
}

func renderIndexer(sp spec.ServiceSpec) ([]byte, error) {
	workers := 4
	if w := sp.Param("index-workers", ""); w != "" {
		if _, err := fmt.Sscanf(w, "%d", &workers); err != nil {
			return nil, errors.Annotatef(spec.ValidationError,
				"parameter index-workers %q is not a number", w)
		}
	}
	cfg := indexerConfig{
		Network:     string(sp.Network),
		DataDir:     sp.DataDir,
		RPCBind:     sp.Params["rpc-bind"],
		BaseRPCURL:  sp.Params["base-rpc-url"],
		IndexWorker: workers,
	}
	var buf bytes.Buffer
	buf.WriteString("# Managed by keeper. Manual edits will be overwritten.\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, errors.Annotate(err, "encoding indexer config")
	}
	return buf.Bytes(), nil
}

// validatorConfig is the YAML document the validator reads.
type validatorConfig struct {
	Network      string `yaml:"network"`
	RPCBind      string `yaml:"rpc-bind"`
	IndexerURL   string `yaml:"indexer-url"`
	IdentityFile string `yaml:"identity-file"`
	FeeRecipient string `yaml:"fee-recipient,omitempty"`
}

func renderValidator(sp spec.ServiceSpec) ([]byte, error) {
	cfg := validatorConfig{
		Network:      string(sp.Network),
		RPCBind:      sp.Params["rpc-bind"],
		IndexerURL:   sp.Params["indexer-url"],
		IdentityFile: sp.Params["identity-file"],
		FeeRecipient: sp.Param("fee-recipient", ""),
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Annotate(err, "encoding validator config")
	}
	var buf bytes.Buffer
	buf.WriteString("# Managed by keeper. Manual edits will be overwritten.\n")
	buf.Write(out)
	return buf.Bytes(), nil
}
