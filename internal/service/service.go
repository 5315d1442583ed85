// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package service defines the narrow interface the reconciler uses to
// talk to the host's process supervisor and principal database. The
// reconciler never forks or polls a managed binary itself; everything
// goes through a Supervisor implementation.
package service

// Conf is responsible for defining service units. Its fields
// represent elements of a unit configuration.
type Conf struct {
	// Desc is the unit's description.
	Desc string

	// ExecStart is the command (with arguments) the supervisor runs.
	// The supervisor restarts it if it exits with a non-zero code.
	ExecStart string

	// WorkingDir is the directory the process starts in.
	WorkingDir string

	// Owner is the OS principal the process runs as.
	Owner string

	// Env holds environment variables set when the command runs.
	Env map[string]string

	// Limit holds rlimit values set when the command runs, keyed by
	// resource name, e.g. "nofile".
	Limit map[string]string
}

// Supervisor provides visibility into and control over managed
// service units. Install and removal are idempotent: installing an
// already-identical unit and removing an absent one are both no-ops.
type Supervisor interface {
	// InstallUnit writes, links and enables the unit, reporting
	// whether anything on the host actually changed.
	InstallUnit(name string, conf Conf) (changed bool, err error)

	// Running reports whether the unit is loaded and active.
	Running(name string) (bool, error)

	// Start starts the unit. Starting a running unit is a no-op.
	Start(name string) error

	// Stop stops the unit. Stopping a stopped unit is a no-op.
	Stop(name string) error

	// Restart restarts the unit, starting it if it was not running.
	Restart(name string) error

	// Remove disables the unit and deletes its unit file. Only the
	// destructive teardown path may call this, and only after the
	// backup guard has approved.
	Remove(name string) error
}

// PrincipalManager manages the OS-level principals service processes
// run as.
type PrincipalManager interface {
	// EnsurePrincipal creates the principal with the given home
	// directory if it does not already exist.
	EnsurePrincipal(name, home string) error

	// LookupPrincipal returns the uid/gid of an existing principal.
	LookupPrincipal(name string) (uid, gid int, err error)

	// RemovePrincipal deletes the principal and its home directory.
	// Only the destructive teardown path may call this, and only
	// after the backup guard has approved.
	RemovePrincipal(name string) error
}
