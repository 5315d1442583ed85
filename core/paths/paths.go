// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package paths holds the well-known host locations the reconciler
// works with. They are variables rather than constants so tests can
// point them at a scratch directory.
package paths

import "path/filepath"

var (
	// DataRoot is the parent of every service principal's data
	// directory.
	DataRoot = "/var/lib/keeper"

	// BackupRoot holds encrypted secret backups. It is owned by the
	// operator, never by a service principal.
	BackupRoot = "/var/backups/keeper"

	// HostKeyDir holds the host's encryption keypair used to seal
	// secret backups.
	HostKeyDir = "/etc/keeper/keys"

	// SystemdUnitDir is where rendered unit files are written.
	SystemdUnitDir = "/etc/systemd/system"
)

// ServiceDataDir returns the conventional data directory for a
// service of the given unit name.
func ServiceDataDir(serviceName string) string {
	return filepath.Join(DataRoot, serviceName)
}

// SecretsDir returns the protected directory inside a data directory
// that holds plaintext secret material. It is the only location a
// plaintext secret may rest on disk.
func SecretsDir(dataDir string) string {
	return filepath.Join(dataDir, "secrets")
}
