package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/process"
)

// ErrCommandFailed wraps a non-zero exit of the command task.
var ErrCommandFailed = errors.New("command failed")

// LogParser parses an output line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// CommandTask runs a command line to completion for every unit of work,
// streaming its output into a logger.
type CommandTask struct {
	command         []string
	logger          logging.Logger
	outputLogger    logging.Logger
	logParser       LogParser
	gracefulTimeout time.Duration
	killTimeout     time.Duration
}

// CommandOption configures a CommandTask.
type CommandOption func(*CommandTask)

// WithOutputLogger sets the logger that receives the command's output lines.
func WithOutputLogger(logger logging.Logger) CommandOption {
	return func(t *CommandTask) {
		t.outputLogger = logger
	}
}

// WithLogParser sets the parser used to pick a log level for output lines.
func WithLogParser(parser LogParser) CommandOption {
	return func(t *CommandTask) {
		t.logParser = parser
	}
}

// WithGracefulTimeout sets how long the command gets after SIGINT before SIGKILL.
func WithGracefulTimeout(d time.Duration) CommandOption {
	return func(t *CommandTask) {
		t.gracefulTimeout = d
	}
}

// NewCommandTask parses command and returns a task running it.
func NewCommandTask(command string, logger logging.Logger, opts ...CommandOption) (*CommandTask, error) {
	args, err := process.ParseCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	t := &CommandTask{
		command:         args,
		logger:          logger,
		logParser:       PrefixLevelParser,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Run starts the command and waits for it. When ctx is done the command gets
// SIGINT, then SIGKILL after the graceful timeout.
func (t *CommandTask) Run(ctx context.Context) error {
	cmd := exec.Command(t.command[0], t.command[1:]...)
	cmd.SysProcAttr = sysProcAttr()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", t.command[0], err)
	}
	t.logger.Debug("Command started", "pid", cmd.Process.Pid, "command", strings.Join(t.command, " "))

	// Stream output in separate goroutines
	outputDone := make(chan struct{}, 2)
	go func() {
		t.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		t.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	// Pipes must be drained before Wait closes them.
	processDone := make(chan error, 1)
	go func() {
		<-outputDone
		<-outputDone
		processDone <- cmd.Wait()
	}()

	select {
	case err := <-processDone:
		return exitError(err)
	case <-ctx.Done():
		t.logger.Debug("Sending SIGINT to command", "pid", cmd.Process.Pid)
		if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
			t.logger.Warn("Failed to send SIGINT", "error", err)
		}
		t.waitForExit(cmd, processDone)
		return ctx.Err()
	}
}

// waitForExit waits out the graceful timeout, force-killing the command if needed.
func (t *CommandTask) waitForExit(cmd *exec.Cmd, processDone <-chan error) {
	select {
	case <-processDone:
		return
	case <-time.After(t.gracefulTimeout):
	}

	t.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", t.gracefulTimeout)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		t.logger.Error("Failed to kill command", "error", err)
	}

	// Wait with a secondary timeout to prevent hanging
	select {
	case <-processDone:
	case <-time.After(t.killTimeout):
		t.logger.Error("Command did not exit after kill signal")
	}
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: exit code %d", ErrCommandFailed, exitErr.ExitCode())
	}
	return err
}

// streamOutput forwards every output line to the output logger at the level
// chosen by the log parser.
func (t *CommandTask) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := t.outputLogger
	if logger == nil {
		logger = t.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		level, msg := "info", line
		if t.logParser != nil {
			level, msg = t.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "source", source)
		case "warning", "warn":
			logger.Warn(msg, "source", source)
		case "debug", "trace":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil {
		t.logger.Warn("Error reading output", "source", source, "error", err)
	}
}

// PrefixLevelParser recognizes a leading level marker such as "ERROR:",
// "[warn]" or "level=debug" and strips it from the message.
func PrefixLevelParser(line string) (level, msg string) {
	trimmed := strings.TrimSpace(line)

	if rest, ok := strings.CutPrefix(trimmed, "level="); ok {
		word, tail, _ := strings.Cut(rest, " ")
		if level := normalizeLevel(word); level != "" {
			return level, strings.TrimSpace(tail)
		}
		return "info", line
	}

	word, tail, found := strings.Cut(trimmed, " ")
	if !found {
		word, tail = trimmed, ""
	}
	marker := strings.Trim(word, "[]:")
	if level := normalizeLevel(marker); level != "" && marker != word {
		return level, strings.TrimSpace(tail)
	}
	return "info", line
}

func normalizeLevel(word string) string {
	switch strings.ToLower(word) {
	case "trace", "debug":
		return "debug"
	case "info":
		return "info"
	case "warn", "warning":
		return "warning"
	case "error", "err":
		return "error"
	case "fatal", "panic":
		return "fatal"
	default:
		return ""
	}
}
