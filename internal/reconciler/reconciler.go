// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package reconciler drives the declare, ensure, start, verify
// lifecycle for one managed service. Every infrastructure step is
// idempotent (create-if-absent, write-if-different), so a failed or
// interrupted run is recovered by simply invoking reconciliation
// again; there is no rollback machinery. Destructive teardown is
// gated behind the backup guard and never partially applied.
package reconciler

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/mutex/v2"

	"github.com/chainfleet/keeper/core/spec"
	"github.com/chainfleet/keeper/internal/backup"
	"github.com/chainfleet/keeper/internal/fsops"
	"github.com/chainfleet/keeper/internal/probe"
	"github.com/chainfleet/keeper/internal/render"
	"github.com/chainfleet/keeper/internal/service"
)

var logger = loggo.GetLogger("keeper.reconciler")

// State is the reconciler's position in the lifecycle state machine.
type State string

const (
	Declared  State = "declared"
	Ensuring  State = "ensuring"
	Starting  State = "starting"
	Verifying State = "verifying"
	Ready     State = "ready"
	Failed    State = "failed"
)

// BackupGuard approves or blocks operations that put secret material
// at risk. *backup.Guard satisfies it.
type BackupGuard interface {
	RequireFreshBackup(sp spec.ServiceSpec) error
}

// Config holds the reconciler's collaborators. Everything the
// reconciler does to the host goes through these, so tests substitute
// fakes for all of them.
type Config struct {
	// Supervisor manages service units.
	Supervisor service.Supervisor

	// Principals manages the OS principals services run as.
	Principals service.PrincipalManager

	// Guard enforces the backup obligation.
	Guard BackupGuard

	// FS performs config and directory writes.
	FS fsops.FileSystemOps

	// Render produces the canonical config for a spec. Defaults to
	// render.Render.
	Render func(spec.ServiceSpec) (render.RenderedConfig, error)

	// Ready builds the readiness predicate for a spec. Defaults to
	// DefaultReady.
	Ready func(spec.ServiceSpec) func() bool

	// ReadyTimeout bounds the post-start readiness wait.
	ReadyTimeout time.Duration

	// ReadyPoll is the predicate polling interval.
	ReadyPoll time.Duration

	// Clock paces the readiness wait and the advisory lock.
	Clock clock.Clock

	// AcquireLock takes the advisory mutex keyed by service
	// identity. Defaults to mutex.Acquire.
	AcquireLock func(mutex.Spec) (mutex.Releaser, error)
}

// Validate ensures that the config values are valid.
func (c Config) Validate() error {
	if c.Supervisor == nil {
		return errors.NotValidf("missing Supervisor")
	}
	if c.Principals == nil {
		return errors.NotValidf("missing Principals")
	}
	if c.Guard == nil {
		return errors.NotValidf("missing Guard")
	}
	return nil
}

// Reconciler materializes declared ServiceSpecs on the host.
type Reconciler struct {
	cfg Config
}

// New returns a Reconciler for the given config, filling in defaults
// for the host-facing collaborators that were left unset.
func New(cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.FS == nil {
		cfg.FS = fsops.OS{}
	}
	if cfg.Render == nil {
		cfg.Render = render.Render
	}
	if cfg.Ready == nil {
		cfg.Ready = DefaultReady
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Minute
	}
	if cfg.ReadyPoll <= 0 {
		cfg.ReadyPoll = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.AcquireLock == nil {
		cfg.AcquireLock = mutex.Acquire
	}
	return &Reconciler{cfg: cfg}, nil
}

// lock takes the advisory mutex for the spec's service identity. Two
// concurrent reconciliations of the same instance would be benign
// thanks to step idempotence, but the lock avoids interleaved partial
// writes of the same config file.
func (r *Reconciler) lock(sp spec.ServiceSpec) (mutex.Releaser, error) {
	releaser, err := r.cfg.AcquireLock(mutex.Spec{
		Name:    sp.ServiceName(),
		Clock:   r.cfg.Clock,
		Delay:   250 * time.Millisecond,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "acquiring reconciliation lock for %q", sp.ServiceName())
	}
	return releaser, nil
}

// Ensure validates the spec and makes the host's infrastructure match
// it: principal, directories, rendered config and supervisor unit.
// It reports whether anything on the host changed. Repeated calls
// against an unchanged spec perform no writes.
func (r *Reconciler) Ensure(sp spec.ServiceSpec) (bool, error) {
	if err := sp.Validate(); err != nil {
		return false, errors.Trace(err)
	}
	releaser, err := r.lock(sp)
	if err != nil {
		return false, errors.Trace(err)
	}
	defer releaser.Release()
	return r.ensure(sp)
}

func (r *Reconciler) ensure(sp spec.ServiceSpec) (bool, error) {
	name := sp.ServiceName()
	logger.Debugf("ensuring infrastructure for %q", name)

	if err := r.cfg.Principals.EnsurePrincipal(sp.Owner, sp.DataDir); err != nil {
		return false, errors.Annotatef(err, "ensuring principal for %q", name)
	}
	uid, gid, err := r.cfg.Principals.LookupPrincipal(sp.Owner)
	if err != nil {
		return false, errors.Annotatef(err, "looking up principal for %q", name)
	}
	for _, dir := range []string{sp.DataDir} {
		if err := r.cfg.FS.MkdirAll(dir, 0o700); err != nil {
			return false, errors.Annotatef(service.InfrastructureError,
				"creating directory %q for %q: %v", dir, name, err)
		}
		if err := r.cfg.FS.Chown(dir, uid, gid); err != nil {
			return false, errors.Annotatef(service.InfrastructureError,
				"owning directory %q for %q: %v", dir, name, err)
		}
	}

	rendered, err := r.cfg.Render(sp)
	if err != nil {
		return false, errors.Annotatef(err, "rendering config for %q", name)
	}
	configChanged, err := fsops.WriteIfChanged(r.cfg.FS, rendered.Path, rendered.Data, rendered.Mode)
	if err != nil {
		return false, errors.Annotatef(service.InfrastructureError,
			"writing config %q for %q: %v", rendered.Path, name, err)
	}
	if configChanged {
		if err := r.cfg.FS.Chown(rendered.Path, uid, gid); err != nil {
			return false, errors.Annotatef(service.InfrastructureError,
				"owning config %q for %q: %v", rendered.Path, name, err)
		}
		logger.Infof("config for %q updated", name)
	} else {
		logger.Debugf("config for %q already current", name)
	}

	unitChanged, err := r.cfg.Supervisor.InstallUnit(name, UnitConf(sp))
	if err != nil {
		return false, errors.Annotatef(err, "installing unit for %q", name)
	}
	return configChanged || unitChanged, nil
}

// Start brings the spec's process up with the current configuration
// and blocks until its readiness predicate succeeds or times out.
// changed says whether Ensure altered config or unit; a running
// service is only restarted when it did. On a readiness timeout the
// process is deliberately left running: partial operation may still
// be diagnosable, so stopping it is the caller's decision.
func (r *Reconciler) Start(sp spec.ServiceSpec, changed bool) error {
	if err := sp.Validate(); err != nil {
		return errors.Trace(err)
	}
	name := sp.ServiceName()
	running, err := r.cfg.Supervisor.Running(name)
	if err != nil {
		return errors.Annotatef(err, "querying %q", name)
	}
	switch {
	case running && changed:
		logger.Infof("restarting %q to apply new configuration", name)
		if err := r.cfg.Supervisor.Restart(name); err != nil {
			return errors.Annotatef(err, "restarting %q", name)
		}
	case running:
		logger.Debugf("%q already running with current configuration", name)
	default:
		logger.Infof("starting %q", name)
		if err := r.cfg.Supervisor.Start(name); err != nil {
			return errors.Annotatef(err, "starting %q", name)
		}
	}

	logger.Debugf("verifying readiness of %q (timeout %v)", name, r.cfg.ReadyTimeout)
	err = probe.WaitReady(r.cfg.Clock, r.cfg.Ready(sp), r.cfg.ReadyTimeout, r.cfg.ReadyPoll)
	if err != nil {
		// The process stays up for diagnosis; see systemctl status
		// and journalctl for the unit.
		return errors.Annotatef(err, "service %q did not become ready", name)
	}
	return nil
}

// PostStart discharges the backup obligation for any secret material
// the now-running service created. A healthy process with un-backed-up
// secrets is still a failed outcome.
func (r *Reconciler) PostStart(sp spec.ServiceSpec) error {
	if err := r.cfg.Guard.RequireFreshBackup(sp); err != nil {
		return errors.Annotatef(backup.BackupObligationUnmet,
			"service %q is healthy but its secret material is not safely backed up: %v",
			sp.ServiceName(), err)
	}
	return nil
}

// Run drives the full lifecycle for one spec and returns the final
// state. Failed is reachable from every stage; the error says which
// invariant was not met.
func (r *Reconciler) Run(sp spec.ServiceSpec) (State, error) {
	if err := sp.Validate(); err != nil {
		return Failed, errors.Trace(err)
	}
	releaser, err := r.lock(sp)
	if err != nil {
		return Failed, errors.Trace(err)
	}
	defer releaser.Release()

	state := Ensuring
	changed, err := r.ensure(sp)
	if err != nil {
		return Failed, errors.Annotatef(err, "%s", state)
	}

	state = Starting
	name := sp.ServiceName()
	running, err := r.cfg.Supervisor.Running(name)
	if err != nil {
		return Failed, errors.Annotatef(err, "%s", state)
	}
	switch {
	case running && changed:
		err = r.cfg.Supervisor.Restart(name)
	case running:
		// Already running with current config.
	default:
		err = r.cfg.Supervisor.Start(name)
	}
	if err != nil {
		return Failed, errors.Annotatef(err, "%s %q", state, name)
	}

	state = Verifying
	err = probe.WaitReady(r.cfg.Clock, r.cfg.Ready(sp), r.cfg.ReadyTimeout, r.cfg.ReadyPoll)
	if err != nil {
		return Failed, errors.Annotatef(err, "service %q did not become ready", name)
	}

	if err := r.PostStart(sp); err != nil {
		return Failed, errors.Trace(err)
	}
	logger.Infof("service %q is ready", name)
	return Ready, nil
}

// Teardown destroys the service instance: unit, principal and data.
// The backup guard must approve first; if it refuses, nothing at all
// is removed.
func (r *Reconciler) Teardown(sp spec.ServiceSpec) error {
	if err := sp.Validate(); err != nil {
		return errors.Trace(err)
	}
	releaser, err := r.lock(sp)
	if err != nil {
		return errors.Trace(err)
	}
	defer releaser.Release()

	name := sp.ServiceName()
	if err := r.cfg.Guard.RequireFreshBackup(sp); err != nil {
		return errors.Annotatef(backup.DestructiveOperationBlocked,
			"teardown of %q aborted, nothing removed: %v", name, err)
	}

	if err := r.cfg.Supervisor.Stop(name); err != nil {
		return errors.Annotatef(err, "stopping %q", name)
	}
	if err := r.cfg.Supervisor.Remove(name); err != nil {
		return errors.Annotatef(err, "removing unit for %q", name)
	}
	if err := r.cfg.Principals.RemovePrincipal(sp.Owner); err != nil {
		return errors.Annotatef(err, "removing principal for %q", name)
	}
	logger.Infof("service %q torn down", name)
	return nil
}
