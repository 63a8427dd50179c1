package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/prefork/internal/logging"
	"github.com/spf13/pflag"
)

// Worker task kinds.
const (
	TaskSleep   = "sleep"
	TaskCommand = "command"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"prefork.toml"`

	// Supervisor settings
	PidFile         string        `help:"Master PID file" default:"/var/run/prefork.pid" toml:"supervisor.pid_file" env:"PID_FILE"`
	Workers         int           `help:"Number of worker processes" short:"w" default:"2" toml:"supervisor.workers" env:"WORKERS"`
	StdoutFile      string        `help:"Sink for master stdout/stderr once running" default:"/dev/null" toml:"supervisor.stdout_file" env:"STDOUT_FILE"`
	GracePeriod     time.Duration `help:"Time workers get to exit after SIGTERM" default:"1s" toml:"supervisor.grace_period" env:"GRACE_PERIOD"`
	ReloadTimeout   time.Duration `help:"Upper bound on waiting for old workers during reload" default:"10s" toml:"supervisor.reload_timeout" env:"RELOAD_TIMEOUT"`
	SpawnBackoff    time.Duration `help:"Initial retry delay after a failed spawn" default:"500ms" toml:"supervisor.spawn_backoff" env:"SPAWN_BACKOFF"`
	SpawnBackoffMax time.Duration `help:"Maximum retry delay after failed spawns" default:"30s" toml:"supervisor.spawn_backoff_max" env:"SPAWN_BACKOFF_MAX"`
	WatchConfig     bool          `help:"Reload workers when the config file changes" default:"false" toml:"supervisor.watch_config" env:"WATCH_CONFIG"`

	// Relay settings
	StopTimeout  time.Duration `help:"How long stop waits for the master to exit" default:"5s" toml:"relay.stop_timeout" env:"STOP_TIMEOUT"`
	PollInterval time.Duration `help:"Liveness poll interval while stopping" default:"50ms" toml:"relay.poll_interval" env:"POLL_INTERVAL"`

	// Worker settings
	WorkerTask     string        `help:"Worker payload (sleep, command)" default:"sleep" toml:"worker.task" env:"WORKER_TASK"`
	WorkerCommand  string        `help:"Command line run by the command task" default:"" toml:"worker.command" env:"WORKER_COMMAND"`
	WorkerInterval time.Duration `help:"Length of one sleep unit" default:"200ms" toml:"worker.interval" env:"WORKER_INTERVAL"`

	// Metrics settings
	MetricsTextfile string `help:"Write Prometheus metrics to this file (empty disables)" default:"" toml:"metrics.textfile" env:"METRICS_TEXTFILE"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingJournal    bool   `help:"Also log to the systemd journal when available" default:"true" toml:"logging.journal" env:"LOGGING_JOURNAL"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingWorker     string `help:"Worker logging level" default:"info" toml:"logging.worker" env:"LOGGING_WORKER"`
	LoggingRelay      string `help:"Relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
}

// Validate checks values that cannot be expressed through flag types.
func (o *Options) Validate() error {
	if o.PidFile == "" {
		return fmt.Errorf("%w: pid file path is empty", ErrInvalid)
	}
	if o.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, o.Workers)
	}
	if err := o.ValidateWorker(); err != nil {
		return err
	}
	if o.ReloadTimeout <= 0 || o.StopTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalid)
	}
	if o.SpawnBackoff <= 0 || o.SpawnBackoffMax < o.SpawnBackoff {
		return fmt.Errorf("%w: spawn backoff must be positive and not exceed its maximum", ErrInvalid)
	}
	return nil
}

// ValidateWorker checks only the settings a worker process uses.
func (o *Options) ValidateWorker() error {
	switch o.WorkerTask {
	case TaskSleep:
		if o.WorkerInterval <= 0 {
			return fmt.Errorf("%w: worker interval must be positive", ErrInvalid)
		}
	case TaskCommand:
		if strings.TrimSpace(o.WorkerCommand) == "" {
			return fmt.Errorf("%w: worker.command is required for the command task", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown worker task %q", ErrInvalid, o.WorkerTask)
	}
	if o.GracePeriod <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalid)
	}
	return nil
}

// Logging builds the logging configuration from the options.
func (o *Options) Logging() logging.Config {
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Journal: o.LoggingJournal,
		Modules: map[string]string{
			"supervisor": o.LoggingSupervisor,
			"worker":     o.LoggingWorker,
			"relay":      o.LoggingRelay,
		},
	}
}

// WorkerArgs returns the arguments of a re-executed worker. They carry the
// master's resolved worker and logging settings, and an empty --config so
// the worker never reads a file the master may have rejected.
func (o *Options) WorkerArgs() []string {
	return []string{
		"worker",
		"--config=",
		"--worker-task", o.WorkerTask,
		"--worker-interval", o.WorkerInterval.String(),
		"--worker-command=" + o.WorkerCommand,
		"--grace-period", o.GracePeriod.String(),
		"--logging-level", o.LoggingLevel,
		"--logging-format", o.LoggingFormat,
		"--logging-worker", o.LoggingWorker,
		fmt.Sprintf("--logging-journal=%t", o.LoggingJournal),
	}
}

// Defaults returns Options populated from the `default` tags only.
func Defaults() (Options, error) {
	var opts Options
	fs := pflag.NewFlagSet("defaults", pflag.ContinueOnError)
	if err := BindFlags(fs, &opts); err != nil {
		return Options{}, err
	}
	return opts, nil
}
