// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backup

import "github.com/juju/errors"

const (
	// BackupObligationUnmet is raised when, after attempting to back
	// up every discovered secret, at least one encrypted backup could
	// not be confirmed present on disk. Un-backed-up secret material
	// is treated as a critical risk equal to an outage, so this
	// downgrades an otherwise-healthy outcome to a failure.
	BackupObligationUnmet = errors.ConstError("backup obligation unmet")

	// DestructiveOperationBlocked is raised when the guard refused to
	// approve a destructive operation. The destructive action was
	// never attempted; nothing was partially destroyed.
	DestructiveOperationBlocked = errors.ConstError("destructive operation blocked")
)
