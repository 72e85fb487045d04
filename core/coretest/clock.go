// Package coretest holds helpers shared by tests that drive the core
// runtime primitives.
package coretest

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"rtc64/core"
)

// Epoch is the wall time fake clocks start at.
var Epoch = time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)

// FakeClock installs a fake clock behind core's tick counter and delays for
// the duration of the test. The tick counter starts at zero.
func FakeClock(tb testing.TB) *clockwork.FakeClock {
	tb.Helper()
	prev := core.Clock()
	fc := clockwork.NewFakeClockAt(Epoch)
	core.SetClock(fc)
	tb.Cleanup(func() { core.SetClock(prev) })
	return fc
}

// AutoAdvance moves fc forward in step increments whenever something is
// sleeping on it, so code that settles with core.WaitMs or core.AfterMs can
// run to completion from a test. The clock stands still while nothing waits.
func AutoAdvance(tb testing.TB, fc *clockwork.FakeClock, step time.Duration) {
	tb.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := fc.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			fc.Advance(step)
		}
	}()
	tb.Cleanup(func() {
		cancel()
		<-done
	})
}
