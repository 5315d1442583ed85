// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package backup enforces the system's one non-negotiable safety
// contract: no destructive operation proceeds unless every piece of
// irreplaceable secret material has a verified encrypted backup. The
// guard fails closed: a backup failure blocks, it is never
// logged-and-ignored.
package backup

import (
	"crypto/ed25519"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/chainfleet/keeper/core/paths"
	"github.com/chainfleet/keeper/core/spec"
	"github.com/chainfleet/keeper/internal/vault"
)

var logger = loggo.GetLogger("keeper.backup")

// Encrypter seals plaintext for the host key. *vault.Vault satisfies
// it.
type Encrypter interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Decrypter opens ciphertext sealed for the host key. *vault.Vault
// satisfies it.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SecretRef locates one piece of discovered secret material.
type SecretRef struct {
	// LogicalID is the stable public identifier derived from the
	// secret; it names the backup file.
	LogicalID string

	// Path is the on-disk location of the plaintext inside the
	// owning principal's protected storage.
	Path string
}

// Guard implements the fail-closed backup policy for one backup root.
type Guard struct {
	// Root is where encrypted backups live. Owned by the operator,
	// never by a service principal.
	Root string

	// Sealer encrypts secret material for the host key.
	Sealer Encrypter

	// Opener, when non-nil together with VerifyDecryptable, is used
	// to re-verify that pre-existing backups still open under the
	// current host key.
	Opener Decrypter

	// VerifyDecryptable selects the stricter policy for pre-existing
	// backups. Off by default: re-verification needs the host private
	// key on this machine and re-reads every backup on every call.
	VerifyDecryptable bool
}

// NewGuard returns a Guard writing backups under root.
func NewGuard(root string, sealer Encrypter) *Guard {
	return &Guard{Root: root, Sealer: sealer}
}

// LogicalID derives the public identifier for a secret seed: the
// hex-encoded ed25519 public key of the 32-byte seed the hex body
// decodes to. The same derivation the node uses for its peer
// identity, so backup names can be matched to network entities.
func LogicalID(body []byte) (string, error) {
	if err := vault.ValidateSecretFormat(body); err != nil {
		return "", errors.Trace(err)
	}
	seed, err := hex.DecodeString(string(body))
	if err != nil {
		return "", errors.Annotate(vault.InvalidSecretFormat, err.Error())
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub), nil
}

// DiscoverSecrets scans the spec's protected storage for secret
// material. The scan happens at call time, never from a cache: the
// manifest must reflect what is on disk at the moment of the
// destructive call.
func (g *Guard) DiscoverSecrets(sp spec.ServiceSpec) ([]SecretRef, error) {
	pattern := filepath.Join(paths.SecretsDir(sp.DataDir), "*.key")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Trace(err)
	}
	refs := make([]SecretRef, 0, len(matches))
	for _, match := range matches {
		body, err := os.ReadFile(match)
		if err != nil {
			return nil, errors.Annotatef(err, "reading secret %q", match)
		}
		body = []byte(strings.TrimSpace(string(body)))
		id, err := LogicalID(body)
		if err != nil {
			return nil, errors.Annotatef(err, "secret %q", match)
		}
		refs = append(refs, SecretRef{LogicalID: id, Path: match})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].LogicalID < refs[j].LogicalID })
	return refs, nil
}

// backupPath returns the ciphertext location for a logical ID.
func (g *Guard) backupPath(logicalID string) string {
	return filepath.Join(g.Root, logicalID+".enc")
}

// RequireFreshBackup discovers all secret material under the spec's
// data directory and ensures an encrypted backup exists for each. It
// returns nil only when every expected backup has been confirmed
// present on disk after the operation: encrypt, then re-check.
//
// Backup creation is idempotent: an existing backup for a logical ID
// is treated as satisfied and never overwritten, so a
// possibly-still-valid historical backup cannot be clobbered by a
// fresh encryption run.
func (g *Guard) RequireFreshBackup(sp spec.ServiceSpec) error {
	refs, err := g.DiscoverSecrets(sp)
	if err != nil {
		return errors.Annotatef(BackupObligationUnmet,
			"discovering secret material for %q: %v", sp.ServiceName(), err)
	}
	if len(refs) == 0 {
		logger.Debugf("no secret material under %q; backup obligation trivially met", sp.DataDir)
		return nil
	}
	if err := os.MkdirAll(g.Root, 0o700); err != nil {
		return errors.Annotatef(BackupObligationUnmet,
			"creating backup root %q: %v", g.Root, err)
	}

	expected := set.NewStrings()
	for _, ref := range refs {
		expected.Add(ref.LogicalID)
		target := g.backupPath(ref.LogicalID)
		if _, err := os.Stat(target); err == nil {
			if err := g.verifyExisting(target); err != nil {
				return errors.Annotatef(BackupObligationUnmet,
					"existing backup for %s failed verification: %v", ref.LogicalID, err)
			}
			logger.Debugf("backup for %s already present", ref.LogicalID)
			continue
		}
		if err := g.createBackup(ref); err != nil {
			return errors.Annotatef(BackupObligationUnmet,
				"backup for %s could not be created: %v", ref.LogicalID, err)
		}
	}

	// Trust, then verify: re-stat every expected file after the
	// encryption pass.
	missing := set.NewStrings()
	for _, id := range expected.SortedValues() {
		if _, err := os.Stat(g.backupPath(id)); err != nil {
			missing.Add(id)
		}
	}
	if !missing.IsEmpty() {
		return errors.Annotatef(BackupObligationUnmet,
			"backups not confirmed on disk for %s",
			strings.Join(missing.SortedValues(), ", "))
	}
	logger.Infof("backup obligation met for %q (%d secrets)", sp.ServiceName(), len(refs))
	return nil
}

func (g *Guard) createBackup(ref SecretRef) error {
	plaintext, err := os.ReadFile(ref.Path)
	if err != nil {
		return errors.Trace(err)
	}
	plaintext = []byte(strings.TrimSpace(string(plaintext)))
	ciphertext, err := g.Sealer.Encrypt(plaintext)
	if err != nil {
		return errors.Trace(err)
	}
	target := g.backupPath(ref.LogicalID)
	// O_EXCL: creation must not overwrite a backup that appeared
	// since the existence check.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			logger.Debugf("backup for %s appeared concurrently; leaving it", ref.LogicalID)
			return nil
		}
		return errors.Trace(err)
	}
	if _, err := f.Write(ciphertext); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err := f.Close(); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("created encrypted backup for %s", ref.LogicalID)
	return nil
}

// verifyExisting applies the optional stricter policy to a
// pre-existing backup.
func (g *Guard) verifyExisting(target string) error {
	if !g.VerifyDecryptable || g.Opener == nil {
		return nil
	}
	ciphertext, err := os.ReadFile(target)
	if err != nil {
		return errors.Trace(err)
	}
	plaintext, err := g.Opener.Decrypt(ciphertext)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(vault.ValidateSecretFormat(plaintext))
}
