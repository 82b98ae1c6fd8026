// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd controls the services a charm manages through the
// systemd D-Bus API.
package systemd

import (
	"context"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("cloudkitty.service.systemd")

// IsRunning returns whether or not systemd is the local init system.
func IsRunning() bool {
	return util.IsRunningSystemd()
}

// DBusAPI is the part of the systemd D-Bus connection the Manager uses.
type DBusAPI interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	RestartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// DBusAPIFactory opens a connection to systemd.
type DBusAPIFactory = func(ctx context.Context) (DBusAPI, error)

// NewDBusAPI connects to the system instance of systemd.
var NewDBusAPI = func(ctx context.Context) (DBusAPI, error) {
	return dbus.NewWithContext(ctx)
}

// Manager restarts and queries systemd services by name.
type Manager struct {
	newDBus DBusAPIFactory
}

// NewManager returns a Manager connecting to systemd with newDBus.
func NewManager(newDBus DBusAPIFactory) *Manager {
	return &Manager{newDBus: newDBus}
}

// UnitName returns the systemd unit of a service.
func UnitName(name string) string {
	return name + ".service"
}

func (m *Manager) newConn(ctx context.Context, name string) (DBusAPI, error) {
	conn, err := m.newDBus(ctx)
	if err != nil {
		logger.Errorf("failed to connect to dbus for service %q: %v", name, err)
		return nil, errors.Trace(err)
	}
	return conn, nil
}

// Restart restarts the named service, starting it if it was not running,
// and waits for the job to finish.
func (m *Manager) Restart(ctx context.Context, name string) error {
	conn, err := m.newConn(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	defer conn.Close()

	statusCh := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, UnitName(name), "replace", statusCh); err != nil {
		return errors.Annotatef(err, "dbus restart request failed for service %q", name)
	}
	if err := wait(ctx, name, "restart", statusCh); err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("service %q successfully restarted", name)
	return nil
}

func wait(ctx context.Context, name, op string, statusCh <-chan string) error {
	select {
	case status := <-statusCh:
		if status != "done" {
			return errors.Errorf("failed to %s service %q (API status %q)", op, name, status)
		}
		return nil
	case <-ctx.Done():
		return errors.Annotatef(ctx.Err(), "waiting to %s service %q", op, name)
	}
}

// Running returns whether the named service is loaded and active.
func (m *Manager) Running(ctx context.Context, name string) (bool, error) {
	conn, err := m.newConn(ctx, name)
	if err != nil {
		return false, errors.Trace(err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, []string{UnitName(name)})
	if err != nil {
		return false, errors.Annotatef(err, "failed to query service %q from dbus", name)
	}
	for _, unit := range units {
		if unit.Name == UnitName(name) {
			return unit.LoadState == "loaded" && unit.ActiveState == "active", nil
		}
	}
	return false, nil
}
