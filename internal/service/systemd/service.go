// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd implements the supervisor interface over the
// systemd D-Bus API. The package only delegates: it never forks or
// execs a managed binary and never attempts its own liveness polling.
package systemd

import (
	"os"
	"path"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/chainfleet/keeper/internal/fsops"
	"github.com/chainfleet/keeper/internal/service"
)

var logger = loggo.GetLogger("keeper.service.systemd")

// DBusAPI is the slice of the systemd D-Bus connection we use.
type DBusAPI interface {
	ListUnits() ([]dbus.UnitStatus, error)
	StartUnit(name string, mode string, ch chan<- string) (int, error)
	StopUnit(name string, mode string, ch chan<- string) (int, error)
	RestartUnit(name string, mode string, ch chan<- string) (int, error)
	LinkUnitFiles(files []string, runtime bool, force bool) ([]dbus.LinkUnitFileChange, error)
	EnableUnitFiles(files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	DisableUnitFiles(files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	Reload() error
	Close()
}

// DBusAPIFactory opens a new D-Bus connection per operation.
type DBusAPIFactory = func() (DBusAPI, error)

// NewDBusAPI is the production factory.
var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.New()
}

// Supervisor controls service units through systemd. It implements
// service.Supervisor.
type Supervisor struct {
	// UnitDir is where unit files are written, normally
	// /etc/systemd/system.
	UnitDir string

	newDBus DBusAPIFactory
	fileOps fsops.FileSystemOps
}

// NewSupervisor returns a systemd-backed Supervisor writing unit
// files under unitDir.
func NewSupervisor(unitDir string) *Supervisor {
	return &Supervisor{
		UnitDir: unitDir,
		newDBus: NewDBusAPI,
		fileOps: fsops.OS{},
	}
}

// NewSupervisorWithDeps exists for tests.
func NewSupervisorWithDeps(unitDir string, newDBus DBusAPIFactory, fileOps fsops.FileSystemOps) *Supervisor {
	return &Supervisor{UnitDir: unitDir, newDBus: newDBus, fileOps: fileOps}
}

func (s *Supervisor) unitPath(name string) string {
	return path.Join(s.UnitDir, name+".service")
}

func (s *Supervisor) unitName(name string) string {
	return name + ".service"
}

func (s *Supervisor) newConn() (DBusAPI, error) {
	conn, err := s.newDBus()
	if err != nil {
		logger.Errorf("failed to connect to dbus: %v", err)
		return nil, errors.Annotatef(service.InfrastructureError, "connecting to dbus: %v", err)
	}
	return conn, nil
}

// InstallUnit implements service.Supervisor. An already-identical
// unit file is left untouched and reported as unchanged; the
// link/reload/enable steps are reapplied regardless, so a retry
// repairs an install that was interrupted after the file write.
func (s *Supervisor) InstallUnit(name string, conf service.Conf) (bool, error) {
	data, err := serialize(s.unitName(name), conf)
	if err != nil {
		return false, errors.Trace(err)
	}
	filename := s.unitPath(name)
	current, err := s.fileOps.ReadFile(filename)
	changed := err != nil || string(current) != string(data)
	if changed {
		if err := s.fileOps.WriteFile(filename, data, 0o644); err != nil {
			return false, errors.Annotatef(service.InfrastructureError,
				"writing unit file %q: %v", filename, err)
		}
	} else {
		logger.Debugf("unit file for %q already identical", name)
	}

	conn, err := s.newConn()
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()

	const runtime, force = false, true
	if _, err = conn.LinkUnitFiles([]string{filename}, runtime, force); err != nil {
		return false, errors.Annotatef(service.InfrastructureError,
			"dbus link request failed for %q: %v", name, err)
	}
	if err := conn.Reload(); err != nil {
		return false, errors.Annotatef(service.InfrastructureError,
			"dbus post-link daemon reload failed for %q: %v", name, err)
	}
	if _, _, err = conn.EnableUnitFiles([]string{filename}, runtime, force); err != nil {
		return false, errors.Annotatef(service.InfrastructureError,
			"dbus enable request failed for %q: %v", name, err)
	}
	if changed {
		logger.Infof("unit %q installed", name)
	}
	return changed, nil
}

// Running implements service.Supervisor.
func (s *Supervisor) Running(name string) (bool, error) {
	conn, err := s.newConn()
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()

	units, err := conn.ListUnits()
	if err != nil {
		return false, errors.Annotatef(service.InfrastructureError,
			"querying units from dbus: %v", err)
	}
	for _, unit := range units {
		if unit.Name == s.unitName(name) {
			return unit.LoadState == "loaded" && unit.ActiveState == "active", nil
		}
	}
	return false, nil
}

var newChan = func() chan string {
	return make(chan string)
}

func (s *Supervisor) wait(name, op string, statusCh chan string) error {
	status := <-statusCh
	if status != "done" {
		return errors.Annotatef(service.InfrastructureError,
			"failed to %s unit %q (API status %q)", op, name, status)
	}
	return nil
}

// Start implements service.Supervisor. Starting a running unit is a
// no-op.
func (s *Supervisor) Start(name string) error {
	running, err := s.Running(name)
	if err != nil {
		return errors.Trace(err)
	}
	if running {
		logger.Debugf("unit %q already running", name)
		return nil
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err = conn.StartUnit(s.unitName(name), "fail", statusCh); err != nil {
		return errors.Annotatef(service.InfrastructureError,
			"dbus start request failed for %q: %v", name, err)
	}
	if err := s.wait(name, "start", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("unit %q successfully started", name)
	return nil
}

// Stop implements service.Supervisor. Stopping a stopped unit is a
// no-op.
func (s *Supervisor) Stop(name string) error {
	running, err := s.Running(name)
	if err != nil {
		return errors.Trace(err)
	}
	if !running {
		logger.Debugf("unit %q not running", name)
		return nil
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err = conn.StopUnit(s.unitName(name), "fail", statusCh); err != nil {
		return errors.Annotatef(service.InfrastructureError,
			"dbus stop request failed for %q: %v", name, err)
	}
	if err := s.wait(name, "stop", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("unit %q successfully stopped", name)
	return nil
}

// Restart implements service.Supervisor. systemd starts the unit if
// it was not running.
func (s *Supervisor) Restart(name string) error {
	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := newChan()
	if _, err = conn.RestartUnit(s.unitName(name), "fail", statusCh); err != nil {
		return errors.Annotatef(service.InfrastructureError,
			"dbus restart request failed for %q: %v", name, err)
	}
	if err := s.wait(name, "restart", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("unit %q successfully restarted", name)
	return nil
}

// Remove implements service.Supervisor. Removing an absent unit is a
// no-op.
func (s *Supervisor) Remove(name string) error {
	filename := s.unitPath(name)
	if _, err := s.fileOps.ReadFile(filename); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			logger.Debugf("unit %q not installed", name)
			return nil
		}
		return errors.Annotatef(service.InfrastructureError,
			"reading unit file %q: %v", filename, err)
	}

	conn, err := s.newConn()
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	if _, err = conn.DisableUnitFiles([]string{s.unitName(name)}, false); err != nil {
		return errors.Annotatef(service.InfrastructureError,
			"dbus disable request failed for %q: %v", name, err)
	}
	if err := conn.Reload(); err != nil {
		return errors.Annotatef(service.InfrastructureError,
			"dbus post-disable daemon reload failed for %q: %v", name, err)
	}
	if err := s.fileOps.Remove(filename); err != nil {
		return errors.Annotatef(service.InfrastructureError,
			"deleting unit file %q: %v", filename, err)
	}
	logger.Infof("unit %q removed", name)
	return nil
}
