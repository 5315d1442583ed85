// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package vault encrypts and decrypts small secret blobs under the
// host keypair, and owns the rules for handling plaintext copies:
// validate the shape before use, keep plaintext inside a scratch
// directory that is always removed, and erase rather than merely
// unlink.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"os"

	"github.com/juju/errors"
	"golang.org/x/crypto/nacl/box"
)

// KeySize is the byte length of the curve25519 keys in a host keypair.
const KeySize = 32

// SecretLength is the required length of a decoded secret: a 32-byte
// seed, carried on disk as 64 lowercase hex characters.
const SecretLength = 64

// Vault seals and opens secret blobs for one host keypair. The
// private key may be nil on hosts that only ever create backups;
// Decrypt then fails with DecryptionError.
type Vault struct {
	public  *[KeySize]byte
	private *[KeySize]byte
}

// New returns a Vault bound to the given keypair. private may be nil.
func New(public, private *[KeySize]byte) (*Vault, error) {
	if public == nil {
		return nil, errors.Annotate(EncryptionError, "no recipient public key")
	}
	return &Vault{public: public, private: private}, nil
}

// Encrypt seals plaintext for the vault's public key using an
// anonymous (ephemeral-sender) box. The output embeds the ephemeral
// public key and nonce, so only the ciphertext needs storing.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	sealed, err := box.SealAnonymous(nil, plaintext, v.public, rand.Reader)
	if err != nil {
		return nil, errors.Annotate(EncryptionError, err.Error())
	}
	return sealed, nil
}

// Decrypt opens ciphertext produced by Encrypt. A ciphertext sealed
// for a different key, or a truncated one, fails with DecryptionError.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if v.private == nil {
		return nil, errors.Annotate(DecryptionError, "no host private key loaded")
	}
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, v.public, v.private)
	if !ok {
		return nil, errors.Annotate(DecryptionError,
			"ciphertext not sealed for this host key or malformed")
	}
	return plaintext, nil
}

// ValidateSecretFormat checks that a decrypted or discovered secret
// has the expected syntactic shape before it is deployed or backed
// up. This catches truncated, corrupt, or wrong-kind key files before
// they can be silently propagated.
func ValidateSecretFormat(b []byte) error {
	if len(b) != SecretLength {
		return errors.Annotatef(InvalidSecretFormat,
			"expected %d hex characters, got %d bytes", SecretLength, len(b))
	}
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return errors.Annotatef(InvalidSecretFormat,
				"secret contains non-lowercase-hex byte %q", c)
		}
	}
	return nil
}

// SecureErase overwrites a file with zeros and removes it. A missing
// file is not an error; erase is used on best-effort cleanup paths.
func SecureErase(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Trace(err)
	}
	zeros := make([]byte, info.Size())
	if _, err := f.WriteAt(zeros, 0); err != nil {
		_ = f.Close()
		return errors.Annotatef(err, "overwriting %q", path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err := f.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Remove(path))
}

// WithScratch runs fn with a private temporary directory for
// plaintext material. The directory and everything in it is erased
// and removed when fn returns, whether or not it succeeded.
func WithScratch(parent string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp(parent, "keeper-scratch-")
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		entries, err := os.ReadDir(dir)
		if err == nil {
			for _, entry := range entries {
				_ = SecureErase(dir + "/" + entry.Name())
			}
		}
		_ = os.RemoveAll(dir)
	}()
	if err := os.Chmod(dir, 0o700); err != nil {
		return errors.Trace(err)
	}
	return fn(dir)
}

// ParseKeyHex decodes a 64-hex-character key file body into a key
// suitable for New.
func ParseKeyHex(b []byte) (*[KeySize]byte, error) {
	if err := ValidateSecretFormat(b); err != nil {
		return nil, errors.Trace(err)
	}
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return nil, errors.Annotate(InvalidSecretFormat, err.Error())
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}
