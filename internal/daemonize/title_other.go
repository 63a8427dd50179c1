//go:build !linux

package daemonize

// SetProcessTitle is a no-op on platforms without a settable process name.
func SetProcessTitle(string) {}
