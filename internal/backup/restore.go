// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package backup

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/chainfleet/keeper/core/paths"
	"github.com/chainfleet/keeper/core/spec"
	"github.com/chainfleet/keeper/internal/vault"
)

// Restore decrypts the backup named by logicalID into the spec's
// protected storage, owned by uid/gid. The plaintext passes through a
// scratch directory inside the data directory, never a shared tmp,
// and the scratch copy is erased however the call ends. Restore
// refuses to overwrite existing secret material: at most one
// plaintext copy may exist, and a live key is never silently
// replaced.
func Restore(sp spec.ServiceSpec, logicalID string, opener Decrypter, backupRoot string, uid, gid int) error {
	ciphertext, err := os.ReadFile(filepath.Join(backupRoot, logicalID+".enc"))
	if err != nil {
		return errors.Annotatef(err, "reading backup for %s", logicalID)
	}
	plaintext, err := opener.Decrypt(ciphertext)
	if err != nil {
		return errors.Trace(err)
	}
	if err := vault.ValidateSecretFormat(plaintext); err != nil {
		return errors.Trace(err)
	}
	derived, err := LogicalID(plaintext)
	if err != nil {
		return errors.Trace(err)
	}
	if derived != logicalID {
		return errors.Annotatef(vault.InvalidSecretFormat,
			"decrypted secret derives logical ID %s, expected %s", derived, logicalID)
	}

	secretsDir := paths.SecretsDir(sp.DataDir)
	target := filepath.Join(secretsDir, logicalID+".key")
	if _, err := os.Stat(target); err == nil {
		return errors.AlreadyExistsf("refusing to overwrite, secret material at %q", target)
	}
	if err := os.MkdirAll(secretsDir, 0o700); err != nil {
		return errors.Trace(err)
	}

	return vault.WithScratch(sp.DataDir, func(dir string) error {
		staged := filepath.Join(dir, logicalID+".key")
		if err := os.WriteFile(staged, plaintext, 0o600); err != nil {
			return errors.Trace(err)
		}
		if err := os.Chown(staged, uid, gid); err != nil {
			return errors.Trace(err)
		}
		if err := os.Chown(secretsDir, uid, gid); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(os.Rename(staged, target))
	})
}
