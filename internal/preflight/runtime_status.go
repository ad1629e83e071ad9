package preflight

import (
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"recordsync/internal/config"
)

// SupervisorProbe reports whether a supervisor holds the instance lock.
type SupervisorProbe struct {
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	LockPath string `json:"lock_path"`
}

// ProbeSupervisor tries the supervisor lock without keeping it.
func ProbeSupervisor(cfg *config.Config) SupervisorProbe {
	probe := SupervisorProbe{LockPath: cfg.LockPath()}
	if data, err := os.ReadFile(cfg.PIDPath()); err == nil {
		probe.PID, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return probe
	}
	if !ok {
		probe.Running = true
		return probe
	}
	_ = lock.Unlock()
	probe.PID = 0
	return probe
}
