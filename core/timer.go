package core

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TicksPerSecond is the rate of the console's CPU count register (half the
// 93.75MHz CPU clock). All cached timestamps are anchored to this counter.
const TicksPerSecond = 46875000

var (
	clockMu  sync.RWMutex
	clock    clockwork.Clock = clockwork.NewRealClock()
	bootTime                 = clock.Now()
)

// SetClock replaces the time source behind the tick counter and all delays.
// The tick counter restarts from zero at the moment of the call.
func SetClock(c clockwork.Clock) {
	clockMu.Lock()
	defer clockMu.Unlock()
	clock = c
	bootTime = c.Now()
}

// Clock returns the active time source.
func Clock() clockwork.Clock {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return clock
}

// TimerInit restarts the tick counter from zero.
func TimerInit() {
	clockMu.Lock()
	defer clockMu.Unlock()
	bootTime = clock.Now()
}

// GetTicks returns the monotonic tick counter.
func GetTicks() int64 {
	clockMu.RLock()
	c, boot := clock, bootTime
	clockMu.RUnlock()
	return TicksFromDuration(c.Since(boot))
}

// TicksFromDuration converts a duration to ticks without overflowing for
// uptimes measured in years.
func TicksFromDuration(d time.Duration) int64 {
	sec := int64(d / time.Second)
	rem := int64(d % time.Second)
	return sec*TicksPerSecond + rem*TicksPerSecond/int64(time.Second)
}

// TicksFromMs converts milliseconds to ticks
func TicksFromMs(ms uint32) int64 {
	return int64(ms) * TicksPerSecond / 1000
}

// TicksToSeconds converts a tick delta to whole seconds, rounding toward
// negative infinity so that drift never runs ahead of the counter.
func TicksToSeconds(ticks int64) int64 {
	s := ticks / TicksPerSecond
	if ticks%TicksPerSecond != 0 && ticks < 0 {
		s--
	}
	return s
}

// Sleep blocks the caller for d on the active clock.
func Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	Clock().Sleep(d)
}

// WaitMs blocks the caller for ms milliseconds.
func WaitMs(ms uint32) {
	Sleep(time.Duration(ms) * time.Millisecond)
}

// AfterMs schedules fn to run once ms milliseconds have elapsed. fn runs on
// its own goroutine, the hosted stand-in for a timer interrupt.
func AfterMs(ms uint32, fn func()) clockwork.Timer {
	return Clock().AfterFunc(time.Duration(ms)*time.Millisecond, fn)
}
