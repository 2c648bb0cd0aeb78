package service

import (
	"time"

	"github.com/loykin/stagehand/internal/logger"
	"github.com/loykin/stagehand/internal/probe"
)

// Spec describes one supervised service. It is immutable after config load;
// list order defines startup order.
type Spec struct {
	Name           string        `json:"name"`
	Command        []string      `json:"cmd"`             // argv, element 0 = executable path
	WorkDir        string        `json:"cwd"`             // must exist at start time
	Wait           probe.Spec    `json:"wait"`            // readiness detection
	AutoRestart    bool          `json:"auto_restart"`    // restart on unexpected exit
	MaxRestarts    int           `json:"max_restarts"`    // restart budget, meaningful only with AutoRestart
	RestartBackoff time.Duration `json:"restart_backoff"` // first restart delay
	BackoffFactor  float64       `json:"restart_backoff_factor"`
	RequiredFiles  []string      `json:"required_files"` // relative to WorkDir
	Env            []string      `json:"env,omitempty"`
	Log            logger.Config `json:"log"`
}
