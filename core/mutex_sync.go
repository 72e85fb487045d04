//go:build !deadlock

package core

import "sync"

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = false

// Mutex guards operations that must have a single writer at a time.
type Mutex struct {
	sync.Mutex
}
