// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vault

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"golang.org/x/crypto/nacl/box"
)

const (
	publicKeyFile  = "host.pub"
	privateKeyFile = "host.key"
)

// GenerateHostKeypair creates the host encryption keypair under dir,
// hex-encoded, owner-only. It refuses to overwrite an existing
// keypair: losing the private key makes every backup unreadable, so
// rotation has to be an explicit, separate act.
func GenerateHostKeypair(dir string) error {
	pubPath := filepath.Join(dir, publicKeyFile)
	privPath := filepath.Join(dir, privateKeyFile)
	for _, p := range []string{pubPath, privPath} {
		if _, err := os.Stat(p); err == nil {
			return errors.Annotatef(EncryptionError, "key file %q already exists", p)
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Trace(err)
	}
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return errors.Annotate(EncryptionError, err.Error())
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv[:])), 0o600); err != nil {
		return errors.Trace(err)
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub[:])), 0o600); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// LoadHostKeypair reads the host keypair from dir. missingPrivateOK
// lets backup-only hosts run without the private key present.
func LoadHostKeypair(dir string, missingPrivateOK bool) (*Vault, error) {
	pubBody, err := os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return nil, errors.Annotatef(EncryptionError, "reading host public key: %v", err)
	}
	pub, err := ParseKeyHex(pubBody)
	if err != nil {
		return nil, errors.Trace(err)
	}
	privBody, err := os.ReadFile(filepath.Join(dir, privateKeyFile))
	if os.IsNotExist(err) && missingPrivateOK {
		return New(pub, nil)
	} else if err != nil {
		return nil, errors.Annotatef(DecryptionError, "reading host private key: %v", err)
	}
	priv, err := ParseKeyHex(privBody)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return New(pub, priv)
}
