// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package spec

import "github.com/juju/errors"

const (
	// ValidationError is raised when a ServiceSpec is missing required
	// fields or carries values its kind does not support. It is never
	// retried; the caller must fix the declaration.
	ValidationError = errors.ConstError("service spec not valid")
)
