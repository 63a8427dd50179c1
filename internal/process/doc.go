// Package process provides the OS-level primitives used to supervise worker processes.
//
// The package offers:
//
//   - Status and Role: the per-process lifecycle state and the master/worker role
//   - IsAlive / AnyAlive: zero-effect liveness probes (signal 0)
//   - Signal / ForceKill: delivery of control signals to a PID
//   - Reap: non-blocking collection of exited children (wait4 with WNOHANG)
//   - WaitUntil: the deadline helper shared by every "wait for effect" loop
//   - ExecSpawner: starts a worker by re-executing the current binary
//   - ParseCommand: splits a command line into arguments
//
// A master must reap before probing its own children: an exited child that
// has not been waited for is a zombie and still answers signal 0.
//
// Example:
//
//	spawner := process.NewExecSpawner([]string{"worker", "--config", path}, env)
//	pid, err := spawner.Spawn()
//	if err != nil {
//	    // errors.Is(err, process.ErrSpawn)
//	}
//	...
//	for _, exit := range process.Reap() {
//	    log.Printf("worker %d exited: %s", exit.PID, exit)
//	}
package process
