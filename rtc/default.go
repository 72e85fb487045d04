package rtc

import "sync/atomic"

var defaultSubsystem atomic.Pointer[Subsystem]

// SetDefault installs the process-wide subsystem used by the package-level
// functions.
func SetDefault(s *Subsystem) {
	defaultSubsystem.Store(s)
}

// Default returns the process-wide subsystem. It panics when none has
// been installed.
func Default() *Subsystem {
	s := defaultSubsystem.Load()
	if s == nil {
		panic("rtc: no default subsystem installed")
	}
	return s
}

// Init calls Init on the default subsystem.
func Init() bool {
	return Default().Init()
}

func InitAsync() {
	Default().InitAsync()
}

func Close() {
	Default().Close()
}

// GetState returns the default subsystem's start-up state.
func GetState() State {
	return Default().State()
}

func GetSource() Source {
	return Default().GetSource()
}

func SetSource(src Source) bool {
	return Default().SetSource(src)
}

func Resync() {
	Default().Resync()
}

func IsSourceAvailable(src Source) bool {
	return Default().IsSourceAvailable(src)
}

// GetTime returns the current UNIX time from the default subsystem.
func GetTime() int64 {
	return Default().GetTime()
}

func SetTime(ts int64) bool {
	return Default().SetTime(ts)
}

func IsSourcePersistent(src Source) bool {
	return Default().IsSourcePersistent(src)
}

func IsPersistent() bool {
	return Default().IsPersistent()
}
