// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"os/exec"
	"os/user"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("keeper.service")

// UserManager manages service principals through the host's user
// database. The exec and lookup functions are fields so tests can
// substitute them.
type UserManager struct {
	runCommand func(name string, args ...string) ([]byte, error)
	lookupUser func(name string) (*user.User, error)
}

// NewUserManager returns a PrincipalManager backed by useradd/userdel.
func NewUserManager() *UserManager {
	return &UserManager{
		runCommand: func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		},
		lookupUser: user.Lookup,
	}
}

// EnsurePrincipal implements PrincipalManager. Creating an existing
// principal is a no-op.
func (m *UserManager) EnsurePrincipal(name, home string) error {
	if _, err := m.lookupUser(name); err == nil {
		logger.Debugf("principal %q already exists", name)
		return nil
	}
	out, err := m.runCommand("useradd",
		"--system",
		"--create-home",
		"--home-dir", home,
		"--shell", "/usr/sbin/nologin",
		name,
	)
	if err != nil {
		return errors.Annotatef(InfrastructureError,
			"creating principal %q: %v (%s)", name, err, strings.TrimSpace(string(out)))
	}
	logger.Infof("created principal %q with home %q", name, home)
	return nil
}

// LookupPrincipal implements PrincipalManager.
func (m *UserManager) LookupPrincipal(name string) (int, int, error) {
	u, err := m.lookupUser(name)
	if err != nil {
		return 0, 0, errors.Annotatef(InfrastructureError, "looking up principal %q: %v", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	return uid, gid, nil
}

// RemovePrincipal implements PrincipalManager. Removing an absent
// principal is a no-op.
func (m *UserManager) RemovePrincipal(name string) error {
	if _, err := m.lookupUser(name); err != nil {
		logger.Debugf("principal %q already absent", name)
		return nil
	}
	out, err := m.runCommand("userdel", "--remove", name)
	if err != nil {
		return errors.Annotatef(InfrastructureError,
			"removing principal %q: %v (%s)", name, err, strings.TrimSpace(string(out)))
	}
	logger.Infof("removed principal %q", name)
	return nil
}
