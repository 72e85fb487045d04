// Package systime routes the process's time-of-day calls through an
// installable pair of hooks, so a hardware clock can back them.
package systime

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNotHooked = errors.New("systime: no time source hooked")
	ErrRejected  = errors.New("systime: time source rejected the write")
)

// Hooks is a time source. GetTime returns UNIX seconds; SetTime reports
// whether the new time was accepted.
type Hooks struct {
	GetTime func() int64
	SetTime func(int64) bool
}

var (
	mu     sync.RWMutex
	active *Hooks
)

// Hook installs h, replacing whatever was installed.
func Hook(h *Hooks) {
	mu.Lock()
	defer mu.Unlock()
	active = h
}

// Unhook removes h if it is the installed set. Hooks installed by someone
// else are left alone.
func Unhook(h *Hooks) {
	mu.Lock()
	defer mu.Unlock()
	if active == h {
		active = nil
	}
}

// Hooked reports whether a time source is installed.
func Hooked() bool {
	mu.RLock()
	defer mu.RUnlock()
	return active != nil
}

func current() *Hooks {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Now returns the hooked time at second resolution, or the host clock
// when nothing is hooked.
func Now() time.Time {
	h := current()
	if h == nil || h.GetTime == nil {
		return time.Now()
	}
	return time.Unix(h.GetTime(), 0).UTC()
}

// Settimeofday passes t to the hooked time source.
func Settimeofday(t time.Time) error {
	h := current()
	if h == nil || h.SetTime == nil {
		return ErrNotHooked
	}
	if !h.SetTime(t.Unix()) {
		return ErrRejected
	}
	return nil
}
