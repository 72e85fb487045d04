// Package rtc keeps the console's wall-clock time. It picks one of the
// hardware clocks (Joybus cartridge RTC, 64DD, iQue chip) as the source,
// caches its reading against the CPU tick counter, and serves time from
// the cache between hardware synchronisations.
package rtc

import "fmt"

// Supported timestamp window: 1996-01-01 00:00:00 to 2095-12-31 23:59:59.
const (
	TimestampMin int64 = 820454400
	TimestampMax int64 = 3976214399

	// DefaultCacheTime (2000-01-01) is reported when no hardware clock
	// has been read.
	DefaultCacheTime int64 = 946684800

	// YearPivot splits two-digit years: yy >= 96 is 19yy, otherwise 20yy.
	YearPivot = 96
)

// Source is a hardware clock backing the subsystem.
type Source int32

const (
	SourceNone Source = iota
	SourceJoybus
	SourceDD
	SourceBB

	numSources
)

var sourceNames = [numSources]string{"none", "joybus", "dd", "bb"}

func (s Source) String() string {
	if s >= 0 && s < numSources {
		return sourceNames[s]
	}
	return fmt.Sprintf("Source(%d)", int32(s))
}

// ParseSource maps a name from String back to a Source.
func ParseSource(name string) (Source, error) {
	for i, n := range sourceNames {
		if n == name {
			return Source(i), nil
		}
	}
	return SourceNone, fmt.Errorf("unknown rtc source %q", name)
}

// State is the progress of subsystem start-up.
type State int32

const (
	StateInit State = iota
	StateDetectingJoybus
	StateStartingJoybus
	StateReadingJoybus
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDetectingJoybus:
		return "detecting-joybus"
	case StateStartingJoybus:
		return "starting-joybus"
	case StateReadingJoybus:
		return "reading-joybus"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Clock is a hardware clock with a static presence flag, i.e. the 64DD
// and the iQue chip.
type Clock interface {
	Present() bool
	GetTime() int64
	SetTime(ts int64) bool
}

// JoybusClock is the cartridge RTC. Its detection is a bus transaction,
// and start-up drives it asynchronously.
type JoybusClock interface {
	Detect() bool
	ReadTime() int64
	SetTime(ts int64) bool

	DetectAsync(cb func(bool))
	SetStoppedAsync(stop bool, done func())
	ReadTimeAsync(cb func(int64))
}

// Backends are the clocks a subsystem may use. Leave a field nil when the
// hardware cannot exist on the target.
type Backends struct {
	Joybus JoybusClock
	DD     Clock
	BB     Clock
}

// InRange reports whether ts lies inside the supported window.
func InRange(ts int64) bool {
	return ts >= TimestampMin && ts <= TimestampMax
}
