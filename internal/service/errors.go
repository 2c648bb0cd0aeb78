package service

import "errors"

var (
	// ErrMissingFile means a required file was absent; the service never spawns.
	ErrMissingFile = errors.New("required file missing")
	// ErrReadinessTimeout means the readiness probe never succeeded in time.
	ErrReadinessTimeout = errors.New("readiness timeout")
	// ErrExitedDuringStartup means the process died before becoming ready.
	ErrExitedDuringStartup = errors.New("process exited during startup")
	// ErrRestartBudgetExhausted means max_restarts attempts were used up.
	ErrRestartBudgetExhausted = errors.New("restart budget exhausted")
	// ErrCrashed means the process exited unexpectedly and restarts are off.
	ErrCrashed = errors.New("process crashed")
)
