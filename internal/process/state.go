package process

// Status represents the lifecycle state of a master or worker process.
type Status string

// Process statuses.
const (
	StatusStarting     Status = "starting"      // Initializing, not yet in the control loop
	StatusRunning      Status = "running"       // Control loop active
	StatusShuttingDown Status = "shutting_down" // Stop in progress (terminal)
	StatusReloading    Status = "reloading"     // Replacing the worker set
)

// Role distinguishes the supervising master from the workers it spawns.
// It is decided once when the process image starts.
type Role int

// Process roles.
const (
	RoleMaster Role = iota
	RoleWorker
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleWorker:
		return "worker"
	default:
		return "unknown"
	}
}
