// Package worker is the runtime of a worker process.
//
// A worker is the same binary re-executed by the master with the hidden
// "worker" subcommand. Its Runtime loops over units of work, checking the
// control signals before each one: SIGINT and SIGTERM end the worker with
// exit code 0, every other signal is left to the master. A worker whose
// parent is no longer the master exits on its own.
//
// Two payloads are provided: SleepTask, an idle heartbeat, and CommandTask,
// which runs a command line per unit and streams its output into the log.
package worker
