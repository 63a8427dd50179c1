package daemonize

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxTitle is the kernel's comm length minus the trailing NUL.
const maxTitle = 15

// SetProcessTitle sets the name shown by ps and top. Only the first 15
// bytes are kept by the kernel. Failures are ignored: the title is cosmetic.
//
// PR_SET_NAME renames the calling thread only, and the goroutine may not be
// on the main thread, so /proc/self/comm (the thread group leader) is tried first.
func SetProcessTitle(title string) {
	if len(title) > maxTitle {
		title = title[:maxTitle]
	}
	if err := os.WriteFile("/proc/self/comm", []byte(title), 0); err == nil {
		return
	}
	name, err := unix.BytePtrFromString(title)
	if err != nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(name)), 0, 0, 0)
}
