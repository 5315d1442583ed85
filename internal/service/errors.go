// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import "github.com/juju/errors"

const (
	// InfrastructureError is raised for OS-level failures creating or
	// mutating principals, directories or supervisor units. Every
	// step that can raise it is idempotent, so the whole
	// reconciliation is safe to retry once the operator has fixed the
	// environment.
	InfrastructureError = errors.ConstError("infrastructure operation failed")
)
