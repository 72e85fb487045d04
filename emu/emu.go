// Package emu provides behavioural models of the console's RTC hardware:
// the Joybus cartridge RTC, the 64DD ASIC and the iQue two-wire chip. The
// models run on core's clock so tests can drive them with a fake clock.
package emu

import (
	"time"

	"rtc64/core"
)

// wallClock is a battery-backed counter that can be stopped and set.
type wallClock struct {
	base    time.Time
	anchor  time.Time
	stopped bool
}

func newWallClock(start time.Time) wallClock {
	return wallClock{base: start.UTC(), anchor: core.Clock().Now()}
}

func (w *wallClock) now() time.Time {
	if w.stopped {
		return w.base
	}
	return w.base.Add(core.Clock().Since(w.anchor))
}

func (w *wallClock) set(t time.Time) {
	w.base = t.UTC()
	w.anchor = core.Clock().Now()
}

func (w *wallClock) setStopped(stop bool) {
	if stop == w.stopped {
		return
	}
	if stop {
		w.base = w.now()
	} else {
		w.anchor = core.Clock().Now()
	}
	w.stopped = stop
}
