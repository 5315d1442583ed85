// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/juju/testing"
)

type StubDbusAPI struct {
	*testing.Stub

	Units []dbus.UnitStatus
}

func (fda *StubDbusAPI) AddUnit(name, status string) {
	active := ""
	load := "loaded"
	if status == "error" {
		load = status
	} else {
		active = status
	}
	fda.Units = append(fda.Units, dbus.UnitStatus{
		Name:        name,
		ActiveState: active,
		LoadState:   load,
	})
}

func (fda *StubDbusAPI) ListUnits() ([]dbus.UnitStatus, error) {
	fda.Stub.AddCall("ListUnits")

	return fda.Units, fda.NextErr()
}

// signalDone emulates systemd completing a queued job.
func signalDone(ch chan<- string) {
	go func() { ch <- "done" }()
}

func (fda *StubDbusAPI) StartUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("StartUnit", name, mode)

	signalDone(ch)
	return 0, fda.NextErr()
}

func (fda *StubDbusAPI) StopUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("StopUnit", name, mode)

	signalDone(ch)
	return 0, fda.NextErr()
}

func (fda *StubDbusAPI) RestartUnit(name string, mode string, ch chan<- string) (int, error) {
	fda.Stub.AddCall("RestartUnit", name, mode)

	signalDone(ch)
	return 0, fda.NextErr()
}

func (fda *StubDbusAPI) LinkUnitFiles(files []string, runtime bool, force bool) ([]dbus.LinkUnitFileChange, error) {
	fda.Stub.AddCall("LinkUnitFiles", files, runtime, force)

	return nil, fda.NextErr()
}

func (fda *StubDbusAPI) EnableUnitFiles(files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error) {
	fda.Stub.AddCall("EnableUnitFiles", files, runtime, force)

	return true, nil, fda.NextErr()
}

func (fda *StubDbusAPI) DisableUnitFiles(files []string, runtime bool) ([]dbus.DisableUnitFileChange, error) {
	fda.Stub.AddCall("DisableUnitFiles", files, runtime)

	return nil, fda.NextErr()
}

func (fda *StubDbusAPI) Reload() error {
	fda.Stub.AddCall("Reload")

	return fda.NextErr()
}

func (fda *StubDbusAPI) Close() {
	fda.Stub.AddCall("Close")

	fda.Stub.NextErr() // We don't return the error (just pop it off).
}
