//go:build deadlock

package core

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = true

func init() {
	// A Joybus write sequence holds the guard for three settle delays, so
	// anything past a few seconds is a real deadlock.
	deadlock.Opts.DeadlockTimeout = 10 * time.Second
}

// Mutex guards operations that must have a single writer at a time.
type Mutex struct {
	deadlock.Mutex
}
