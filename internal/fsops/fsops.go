// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package fsops isolates the file system operations the reconciler
// and supervisor perform, so tests can observe and fail them.
package fsops

import (
	"bytes"
	"os"

	"github.com/juju/errors"
)

// FileSystemOps is the subset of file system behaviour the core needs.
type FileSystemOps interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, mode os.FileMode) error
	MkdirAll(path string, mode os.FileMode) error
	Chown(path string, uid, gid int) error
	Remove(path string) error
	Exists(path string) (bool, error)
}

// OS is the host file system.
type OS struct{}

func (OS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OS) WriteFile(path string, data []byte, mode os.FileMode) error {
	return os.WriteFile(path, data, mode)
}

func (OS) MkdirAll(path string, mode os.FileMode) error { return os.MkdirAll(path, mode) }

func (OS) Chown(path string, uid, gid int) error { return os.Chown(path, uid, gid) }

func (OS) Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (OS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

// WriteIfChanged writes data to path only when the current content
// differs, reporting whether a write happened. An unreadable or
// missing file counts as different.
func WriteIfChanged(fs FileSystemOps, path string, data []byte, mode os.FileMode) (bool, error) {
	current, err := fs.ReadFile(path)
	if err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err := fs.WriteFile(path, data, mode); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}
