package systemd

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager queries systemd over D-Bus about the unit running the master.
type Manager struct {
	conn *dbus.Conn
}

// NewManager connects to the system bus, or to the user bus when user is set.
func NewManager(ctx context.Context, user bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &Manager{conn: conn}, nil
}

// UnitState returns the ActiveState and SubState of a unit, e.g. "active (running)".
func (m *Manager) UnitState(ctx context.Context, unit string) (string, error) {
	if !strings.Contains(unit, ".") {
		unit += ".service"
	}
	props, err := m.conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return "", err
	}
	active, _ := props["ActiveState"].(string)
	sub, _ := props["SubState"].(string)
	if sub == "" {
		return active, nil
	}
	return active + " (" + sub + ")", nil
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
