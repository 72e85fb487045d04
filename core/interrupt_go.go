//go:build !tinygo

package core

import "sync"

// State is the saved interrupt state returned by DisableInterrupts.
type State uintptr

// interruptMu emulates the masked section on hosted Go, where "interrupt"
// handlers run on their own goroutines.
var interruptMu sync.Mutex

// DisableInterrupts enters a critical section shared with interrupt handlers.
// Sections must not nest.
func DisableInterrupts() State {
	interruptMu.Lock()
	return 0
}

// RestoreInterrupts leaves the critical section entered by DisableInterrupts.
func RestoreInterrupts(state State) {
	interruptMu.Unlock()
}
