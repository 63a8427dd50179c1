package daemonize

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func TestIsDaemonized(t *testing.T) {
	t.Setenv(EnvDaemonized, "")
	if IsDaemonized() {
		t.Error("IsDaemonized() with empty marker")
	}
	t.Setenv(EnvDaemonized, "1")
	if !IsDaemonized() {
		t.Error("IsDaemonized() with marker set")
	}
}

func TestOpenSinkCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "nested", "prefork.out")
	f, err := openSink(path)
	if err != nil {
		t.Fatalf("openSink: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString("first\n"); err != nil {
		t.Fatal(err)
	}

	// A second open must append rather than truncate.
	g, err := openSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.WriteString("second\n"); err != nil {
		t.Fatal(err)
	}
	g.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("sink content = %q", data)
	}
}

func TestOpenSinkDefaultsToDevNull(t *testing.T) {
	f, err := openSink("")
	if err != nil {
		t.Fatalf("openSink: %v", err)
	}
	defer f.Close()
	if f.Name() != os.DevNull {
		t.Errorf("sink = %s, want %s", f.Name(), os.DevNull)
	}
}

func TestOpenSinkUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := openSink(filepath.Join(blocker, "out.log")); err == nil {
		t.Error("expected error when the parent is a file")
	}
}

func TestSetProcessTitle(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process title only supported on linux")
	}
	orig, err := os.ReadFile("/proc/self/comm")
	if err != nil {
		t.Skip("no /proc/self/comm")
	}
	defer SetProcessTitle(strings.TrimSpace(string(orig)))

	SetProcessTitle("prefork: master process")

	got, err := os.ReadFile("/proc/self/comm")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(got)) != "prefork: master" {
		t.Errorf("comm = %q, want truncated title", got)
	}
}

const helperEnv = "PREFORK_TEST_HELPER"

// TestHelperProcess is not a real test: it is the body of the child
// processes started by the tests below.
func TestHelperProcess(t *testing.T) {
	switch os.Getenv(helperEnv) {
	case "redirect":
		if err := RedirectStdio(os.Getenv("PREFORK_TEST_SINK")); err != nil {
			os.Exit(3)
		}
		os.Stdout.WriteString("to stdout\n")
		os.Stderr.WriteString("to stderr\n")
		os.Exit(0)
	case "detached":
		sid, _ := unix.Getsid(0)
		os.Stdout.WriteString("daemonized=" + os.Getenv(EnvDaemonized) + " leader=" + strconv.FormatBool(sid == os.Getpid()) + "\n")
		os.Exit(0)
	}
}

func TestRedirectStdio(t *testing.T) {
	sink := filepath.Join(t.TempDir(), "out.log")
	cmd := exec.Command(os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"=redirect", "PREFORK_TEST_SINK="+sink)

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("helper failed: %v\n%s", err, out)
	}
	if len(out) != 0 {
		t.Errorf("helper wrote to the original streams: %q", out)
	}

	data, err := os.ReadFile(sink)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "to stdout\nto stderr\n" {
		t.Errorf("sink = %q", data)
	}
}

func TestDetach(t *testing.T) {
	sink := filepath.Join(t.TempDir(), "detached.log")
	t.Setenv(helperEnv, "detached")

	proc, err := Detach([]string{"-test.run=^TestHelperProcess$"}, sink)
	if err != nil {
		t.Fatalf("Detach: %v", err)
	}
	state, err := proc.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if !state.Success() {
		t.Fatalf("detached helper exited with %v", state)
	}

	data, err := os.ReadFile(sink)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "daemonized=1 leader=true" {
		t.Errorf("detached output = %q", got)
	}
}
