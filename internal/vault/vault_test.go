// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package vault_test

import (
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
	"golang.org/x/crypto/nacl/box"

	"github.com/chainfleet/keeper/internal/vault"
)

type vaultSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&vaultSuite{})

func newKeypair(c *gc.C) (pub, priv *[vault.KeySize]byte) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	c.Assert(err, jc.ErrorIsNil)
	return pub, priv
}

func (s *vaultSuite) TestRoundTrip(c *gc.C) {
	pub, priv := newKeypair(c)
	v, err := vault.New(pub, priv)
	c.Assert(err, jc.ErrorIsNil)

	plaintext := []byte("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	ciphertext, err := v.Encrypt(plaintext)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(ciphertext, gc.Not(gc.DeepEquals), plaintext)

	decrypted, err := v.Decrypt(ciphertext)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(decrypted, gc.DeepEquals, plaintext)
}

func (s *vaultSuite) TestDecryptForeignCiphertext(c *gc.C) {
	pub, priv := newKeypair(c)
	v, err := vault.New(pub, priv)
	c.Assert(err, jc.ErrorIsNil)

	otherPub, _ := newKeypair(c)
	other, err := vault.New(otherPub, nil)
	c.Assert(err, jc.ErrorIsNil)
	ciphertext, err := other.Encrypt([]byte("secret"))
	c.Assert(err, jc.ErrorIsNil)

	_, err = v.Decrypt(ciphertext)
	c.Assert(err, jc.ErrorIs, vault.DecryptionError)
}

func (s *vaultSuite) TestDecryptTruncated(c *gc.C) {
	pub, priv := newKeypair(c)
	v, err := vault.New(pub, priv)
	c.Assert(err, jc.ErrorIsNil)

	_, err = v.Decrypt([]byte("short"))
	c.Assert(err, jc.ErrorIs, vault.DecryptionError)
}

func (s *vaultSuite) TestDecryptWithoutPrivateKey(c *gc.C) {
	pub, _ := newKeypair(c)
	v, err := vault.New(pub, nil)
	c.Assert(err, jc.ErrorIsNil)

	ciphertext, err := v.Encrypt([]byte("secret"))
	c.Assert(err, jc.ErrorIsNil)
	_, err = v.Decrypt(ciphertext)
	c.Assert(err, jc.ErrorIs, vault.DecryptionError)
}

func (s *vaultSuite) TestNewWithoutPublicKey(c *gc.C) {
	_, err := vault.New(nil, nil)
	c.Assert(err, jc.ErrorIs, vault.EncryptionError)
}

func (s *vaultSuite) TestValidateSecretFormat(c *gc.C) {
	valid := make([]byte, 0, 64)
	for i := 0; i < 4; i++ {
		valid = append(valid, []byte("0123456789abcdef")...)
	}
	c.Assert(vault.ValidateSecretFormat(valid), jc.ErrorIsNil)

	for _, invalid := range [][]byte{
		nil,
		[]byte("too short"),
		append([]byte("G"), valid[1:]...),
		[]byte(string(valid) + "00"),
		[]byte("0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF"),
	} {
		err := vault.ValidateSecretFormat(invalid)
		c.Check(errors.Is(err, vault.InvalidSecretFormat), jc.IsTrue,
			gc.Commentf("input %q", invalid))
	}
}

func (s *vaultSuite) TestSecureErase(c *gc.C) {
	path := filepath.Join(c.MkDir(), "secret.key")
	c.Assert(os.WriteFile(path, []byte("sensitive"), 0o600), jc.ErrorIsNil)

	c.Assert(vault.SecureErase(path), jc.ErrorIsNil)
	_, err := os.Stat(path)
	c.Check(os.IsNotExist(err), jc.IsTrue)
}

func (s *vaultSuite) TestSecureEraseMissingFile(c *gc.C) {
	c.Assert(vault.SecureErase(filepath.Join(c.MkDir(), "never-existed")), jc.ErrorIsNil)
}

func (s *vaultSuite) TestWithScratchCleansUp(c *gc.C) {
	parent := c.MkDir()
	var scratch string
	err := vault.WithScratch(parent, func(dir string) error {
		scratch = dir
		return os.WriteFile(filepath.Join(dir, "plain"), []byte("secret"), 0o600)
	})
	c.Assert(err, jc.ErrorIsNil)
	_, err = os.Stat(scratch)
	c.Check(os.IsNotExist(err), jc.IsTrue)
}

func (s *vaultSuite) TestWithScratchCleansUpOnError(c *gc.C) {
	parent := c.MkDir()
	boom := errors.New("boom")
	var scratch string
	err := vault.WithScratch(parent, func(dir string) error {
		scratch = dir
		c.Assert(os.WriteFile(filepath.Join(dir, "plain"), []byte("secret"), 0o600), jc.ErrorIsNil)
		return boom
	})
	c.Assert(err, gc.Equals, boom)
	_, err = os.Stat(scratch)
	c.Check(os.IsNotExist(err), jc.IsTrue)
}

func (s *vaultSuite) TestGenerateHostKeypairAndLoad(c *gc.C) {
	dir := filepath.Join(c.MkDir(), "keys")
	c.Assert(vault.GenerateHostKeypair(dir), jc.ErrorIsNil)

	v, err := vault.LoadHostKeypair(dir, false)
	c.Assert(err, jc.ErrorIsNil)

	ciphertext, err := v.Encrypt([]byte("round trip"))
	c.Assert(err, jc.ErrorIsNil)
	plaintext, err := v.Decrypt(ciphertext)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(plaintext), gc.Equals, "round trip")
}

func (s *vaultSuite) TestGenerateHostKeypairRefusesOverwrite(c *gc.C) {
	dir := filepath.Join(c.MkDir(), "keys")
	c.Assert(vault.GenerateHostKeypair(dir), jc.ErrorIsNil)

	err := vault.GenerateHostKeypair(dir)
	c.Assert(err, jc.ErrorIs, vault.EncryptionError)
	c.Assert(err, gc.ErrorMatches, `.*already exists.*`)
}

func (s *vaultSuite) TestLoadHostKeypairMissingPrivateOK(c *gc.C) {
	dir := filepath.Join(c.MkDir(), "keys")
	c.Assert(vault.GenerateHostKeypair(dir), jc.ErrorIsNil)
	c.Assert(os.Remove(filepath.Join(dir, "host.key")), jc.ErrorIsNil)

	_, err := vault.LoadHostKeypair(dir, false)
	c.Assert(err, jc.ErrorIs, vault.DecryptionError)

	v, err := vault.LoadHostKeypair(dir, true)
	c.Assert(err, jc.ErrorIsNil)
	_, err = v.Encrypt([]byte("backup-only host"))
	c.Assert(err, jc.ErrorIsNil)
}
