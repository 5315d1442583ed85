// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package systemd

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/chainfleet/keeper/internal/service"
)

// validate checks that a conf is serializable as a unit file.
func validate(name string, conf service.Conf) error {
	if name == "" {
		return errors.NotValidf("missing unit name")
	}
	if conf.ExecStart == "" {
		return errors.NotValidf("unit %q: missing ExecStart", name)
	}
	if !strings.HasPrefix(conf.ExecStart, "/") {
		return errors.NotValidf("unit %q: ExecStart %q must be an absolute command", name, conf.ExecStart)
	}
	if conf.Owner == "" {
		return errors.NotValidf("unit %q: missing Owner", name)
	}
	return nil
}

// serialize renders a unit file for the conf. Map-backed sections are
// emitted in sorted key order so the output is byte-stable and the
// install step's content diff is meaningful.
func serialize(name string, conf service.Conf) ([]byte, error) {
	if err := validate(name, conf); err != nil {
		return nil, errors.Trace(err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[Unit]\n")
	fmt.Fprintf(&buf, "Description=%s\n", conf.Desc)
	fmt.Fprintf(&buf, "After=network-online.target\n")
	fmt.Fprintf(&buf, "Wants=network-online.target\n")
	fmt.Fprintf(&buf, "\n[Service]\n")
	fmt.Fprintf(&buf, "User=%s\n", conf.Owner)
	if conf.WorkingDir != "" {
		fmt.Fprintf(&buf, "WorkingDirectory=%s\n", conf.WorkingDir)
	}
	for _, k := range sortedKeys(conf.Env) {
		fmt.Fprintf(&buf, "Environment=\"%s=%s\"\n", k, conf.Env[k])
	}
	for _, k := range sortedKeys(conf.Limit) {
		fmt.Fprintf(&buf, "Limit%s=%s\n", strings.ToUpper(k), conf.Limit[k])
	}
	fmt.Fprintf(&buf, "ExecStart=%s\n", conf.ExecStart)
	fmt.Fprintf(&buf, "Restart=on-failure\n")
	fmt.Fprintf(&buf, "RestartSec=5\n")
	fmt.Fprintf(&buf, "StandardOutput=journal\n")
	fmt.Fprintf(&buf, "StandardError=journal\n")
	fmt.Fprintf(&buf, "\n[Install]\n")
	fmt.Fprintf(&buf, "WantedBy=multi-user.target\n")
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
