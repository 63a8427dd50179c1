package worker

import (
	"os"
	"strconv"
)

// EnvMasterPID carries the master's PID into every worker it spawns.
const EnvMasterPID = "PREFORK_MASTER_PID"

// MasterEnv returns the environment entry identifying pid as the master.
func MasterEnv(pid int) string {
	return EnvMasterPID + "=" + strconv.Itoa(pid)
}

// MasterPIDFromEnv returns the master PID passed by the spawning master, or 0.
func MasterPIDFromEnv() int {
	pid, err := strconv.Atoi(os.Getenv(EnvMasterPID))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
