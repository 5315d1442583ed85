// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vault

import "github.com/juju/errors"

const (
	// EncryptionError is raised when secret material cannot be
	// sealed, including when no recipient key is available. It is
	// fatal to the current operation.
	EncryptionError = errors.ConstError("cannot encrypt secret material")

	// DecryptionError is raised when a ciphertext was not sealed for
	// this host's key or is malformed.
	DecryptionError = errors.ConstError("cannot decrypt secret material")

	// InvalidSecretFormat is raised when a decrypted or discovered
	// secret does not match the expected syntactic shape.
	InvalidSecretFormat = errors.ConstError("secret material has invalid format")
)
