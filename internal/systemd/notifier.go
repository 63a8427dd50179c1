// Package systemd integrates the master with the systemd service manager:
// sd_notify lifecycle messages and unit state queries over D-Bus.
package systemd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sys/unix"
)

// Notifier sends lifecycle messages to systemd. Outside systemd (no
// NOTIFY_SOCKET) every call is a no-op.
type Notifier struct{}

// NewNotifier creates a notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Ready reports that the worker pool is up. MAINPID is included so a master
// started in the background is still tracked by the unit.
func (n *Notifier) Ready() error {
	return n.send(daemon.SdNotifyReady + "\nMAINPID=" + strconv.Itoa(os.Getpid()))
}

// Reloading reports that the workers are being replaced.
func (n *Notifier) Reloading() error {
	msg := daemon.SdNotifyReloading
	if usec, err := monotonicUsec(); err == nil {
		msg += "\nMONOTONIC_USEC=" + strconv.FormatInt(usec, 10)
	}
	return n.send(msg)
}

// Stopping reports that the master is shutting down.
func (n *Notifier) Stopping() error {
	return n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(text string) error {
	return n.send("STATUS=" + text)
}

func (n *Notifier) send(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("sd_notify: %w", err)
	}
	return nil
}

func monotonicUsec() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, err
	}
	return ts.Nano() / 1000, nil
}
