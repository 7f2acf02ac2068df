package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/extanim/internal/config"
)

// Connect returns the shared connection for the named bus ("system" or "session").
func Connect(bus string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch bus {
	case config.BusSystem, "":
		conn, err = dbus.SystemBus()
	case config.BusSession:
		conn, err = dbus.SessionBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", bus)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", bus, err)
	}
	return conn, nil
}
