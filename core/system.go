package core

import (
	"runtime"
	"sync/atomic"
)

// bbPlayer is set once at startup by target code running on the iQue Player.
var bbPlayer atomic.Bool

// SetBBPlayer records whether the console is the iQue Player variant.
func SetBBPlayer(v bool) {
	bbPlayer.Store(v)
}

// IsBBPlayer reports whether the console is the iQue Player variant. The iQue
// carries its own RTC chip and faults on PI accesses outside ROM space.
func IsBBPlayer() bool {
	return bbPlayer.Load()
}

// SpinUntil busy-waits until cond reports true, yielding between polls.
// There is no timeout: the hardware contract is that it always answers.
func SpinUntil(cond func() bool) {
	for !cond() {
		runtime.Gosched()
	}
}
