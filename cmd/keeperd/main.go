// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// keeperd materializes declared node services on this host. The heavy
// lifting lives in the reconciler; this command only parses a
// declaration and wires up the host-facing collaborators.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo/v2"

	"github.com/chainfleet/keeper/core/paths"
	"github.com/chainfleet/keeper/core/spec"
	"github.com/chainfleet/keeper/internal/backup"
	"github.com/chainfleet/keeper/internal/reconciler"
	"github.com/chainfleet/keeper/internal/service"
	"github.com/chainfleet/keeper/internal/service/systemd"
	"github.com/chainfleet/keeper/internal/vault"
)

var logger = loggo.GetLogger("keeper.cmd")

const usage = `usage: keeperd <ensure|teardown|init-keys> [options]

Commands:
  ensure     reconcile a service towards its declared state
  teardown   destroy a service instance (blocked without fresh backups)
  init-keys  generate the host backup keypair
`

// paramsValue collects repeated --param key=value flags.
type paramsValue map[string]string

func (p *paramsValue) String() string { return fmt.Sprintf("%v", map[string]string(*p)) }

func (p *paramsValue) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return errors.Errorf("expected key=value, got %q", s)
	}
	(*p)[k] = v
	return nil
}

func main() {
	os.Exit(Main(os.Args[1:]))
}

// Main exists so tests can drive the command without exec.
func Main(args []string) int {
	logConfig := os.Getenv("KEEPER_LOGGING_CONFIG")
	if logConfig == "" {
		logConfig = "<root>=INFO"
	}
	if err := loggo.ConfigureLoggers(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "invalid KEEPER_LOGGING_CONFIG: %v\n", err)
		return 2
	}

	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command, rest := args[0], args[1:]

	var (
		kindName     string
		networkName  string
		owner        string
		dataDir      string
		backupRoot   string
		keyDir       string
		readyTimeout time.Duration
		verifyBackup bool
		params       = make(paramsValue)
	)
	fs := gnuflag.NewFlagSet("keeperd", gnuflag.ContinueOnError)
	fs.StringVar(&kindName, "kind", "", "service kind: validator, indexer or basenode")
	fs.StringVar(&networkName, "network", string(spec.Mainnet), "network mode")
	fs.StringVar(&owner, "owner", "", "owning principal (default: the service name)")
	fs.StringVar(&dataDir, "data-dir", "", "data directory (default: under the data root)")
	fs.StringVar(&backupRoot, "backup-root", paths.BackupRoot, "encrypted backup root")
	fs.StringVar(&keyDir, "key-dir", paths.HostKeyDir, "host keypair directory")
	fs.DurationVar(&readyTimeout, "ready-timeout", 5*time.Minute, "readiness wait bound")
	fs.BoolVar(&verifyBackup, "verify-backups", false, "re-verify existing backups are decryptable")
	fs.Var(&params, "param", "service parameter key=value (repeatable)")
	if err := fs.Parse(true, rest); err != nil {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	if command == "init-keys" {
		if err := vault.GenerateHostKeypair(keyDir); err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		fmt.Printf("host keypair written under %s\n", keyDir)
		return 0
	}

	kind, err := spec.ParseKind(kindName)
	if err != nil {
		logger.Errorf("%v", err)
		return 2
	}
	sp := spec.ServiceSpec{
		Kind:    kind,
		Network: spec.NetworkMode(networkName),
		Owner:   owner,
		DataDir: dataDir,
		Params:  params,
	}
	if sp.Owner == "" {
		sp.Owner = sp.ServiceName()
	}
	if sp.DataDir == "" {
		sp.DataDir = paths.ServiceDataDir(sp.ServiceName())
	}

	hostVault, err := vault.LoadHostKeypair(keyDir, !verifyBackup)
	if err != nil {
		logger.Errorf("loading host keypair: %v", err)
		return 1
	}
	guard := backup.NewGuard(backupRoot, hostVault)
	guard.Opener = hostVault
	guard.VerifyDecryptable = verifyBackup

	rec, err := reconciler.New(reconciler.Config{
		Supervisor:   systemd.NewSupervisor(paths.SystemdUnitDir),
		Principals:   service.NewUserManager(),
		Guard:        guard,
		ReadyTimeout: readyTimeout,
	})
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}

	switch command {
	case "ensure":
		state, err := rec.Run(sp)
		if err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		fmt.Printf("%s: %s\n", sp.ServiceName(), state)
		return 0
	case "teardown":
		if err := rec.Teardown(sp); err != nil {
			logger.Errorf("%v", err)
			return 1
		}
		fmt.Printf("%s: removed\n", sp.ServiceName())
		return 0
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}
