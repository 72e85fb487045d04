package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"rtc64/core"
	"rtc64/systime"
)

// Subsystem owns the source selection and the time cache. Reads are served
// from the cache: cacheTime plus whole seconds of ticks since cacheTicks.
//
// Most methods block until start-up has reached StateReady; there is no
// timeout, start-up always completes once begun.
type Subsystem struct {
	backends Backends

	state  atomic.Int32
	gen    atomic.Uint32
	source atomic.Int32

	// guarded by core.DisableInterrupts
	cacheTime  int64
	cacheTicks int64

	lifecycle sync.Mutex
	refs      int

	// writer serialises SetTime, SetSource, Resync and persistence probes.
	writer     core.Mutex
	persistent [numSources]int8 // -1 unknown

	hooks *systime.Hooks
}

// New creates a subsystem over b. Nothing touches hardware until
// InitAsync or Init.
func New(b Backends) *Subsystem {
	s := &Subsystem{backends: b, cacheTime: DefaultCacheTime}
	for i := range s.persistent {
		s.persistent[i] = -1
	}
	s.hooks = &systime.Hooks{GetTime: s.GetTime, SetTime: s.SetTime}
	return s
}

// State returns the start-up state.
func (s *Subsystem) State() State {
	return State(s.state.Load())
}

func (s *Subsystem) setState(st State) {
	log.Debug().Stringer("state", st).Msg("rtc: state")
	s.state.Store(int32(st))
}

func (s *Subsystem) waitReady() {
	core.SpinUntil(func() bool { return s.State() == StateReady })
}

func (s *Subsystem) setSource(src Source) {
	s.source.Store(int32(src))
}

func (s *Subsystem) currentSource() Source {
	return Source(s.source.Load())
}

func (s *Subsystem) setCache(ts int64) {
	ticks := core.GetTicks()
	state := core.DisableInterrupts()
	s.cacheTime = ts
	s.cacheTicks = ticks
	core.RestoreInterrupts(state)
}

func (s *Subsystem) now() int64 {
	state := core.DisableInterrupts()
	ts, ticks := s.cacheTime, s.cacheTicks
	core.RestoreInterrupts(state)
	return ts + core.TicksToSeconds(core.GetTicks()-ticks)
}

// cacheHardware stores a hardware reading; 0 means the clock was never
// set and leaves the cache alone.
func (s *Subsystem) cacheHardware(ts int64) {
	if ts == 0 {
		log.Debug().Msg("rtc: hardware clock unset, keeping cached time")
		return
	}
	s.setCache(ts)
}

// InitAsync starts hardware detection and returns without waiting. It is
// a no-op unless the subsystem is in StateInit.
func (s *Subsystem) InitAsync() {
	if s.State() != StateInit {
		log.Warn().Stringer("state", s.State()).Msg("rtc: init while already started")
		return
	}
	gen := s.gen.Load()

	s.setSource(SourceNone)
	s.setCache(DefaultCacheTime)
	systime.Hook(s.hooks)

	if bb := s.backends.BB; bb != nil && bb.Present() {
		s.setSource(SourceBB)
		s.cacheHardware(bb.GetTime())
		s.setState(StateReady)
		return
	}

	if dd := s.backends.DD; dd != nil && dd.Present() {
		s.setSource(SourceDD)
		s.cacheHardware(dd.GetTime())
	}

	jb := s.backends.Joybus
	if jb == nil {
		s.setState(StateReady)
		return
	}
	s.setState(StateDetectingJoybus)
	jb.DetectAsync(func(ok bool) { s.joybusDetected(gen, ok) })
}

// stale reports whether a start-up callback belongs to an abandoned
// start-up or arrived out of order.
func (s *Subsystem) stale(gen uint32, want State) bool {
	return s.gen.Load() != gen || s.State() != want
}

func (s *Subsystem) joybusDetected(gen uint32, ok bool) {
	if s.stale(gen, StateDetectingJoybus) {
		return
	}
	if !ok {
		s.setState(StateReady)
		return
	}
	s.setSource(SourceJoybus)
	s.setState(StateStartingJoybus)
	s.backends.Joybus.SetStoppedAsync(false, func() { s.joybusStarted(gen) })
}

func (s *Subsystem) joybusStarted(gen uint32) {
	if s.stale(gen, StateStartingJoybus) {
		return
	}
	s.setState(StateReadingJoybus)
	s.backends.Joybus.ReadTimeAsync(func(ts int64) { s.joybusRead(gen, ts) })
}

func (s *Subsystem) joybusRead(gen uint32, ts int64) {
	if s.stale(gen, StateReadingJoybus) {
		return
	}
	s.cacheHardware(ts)
	s.setState(StateReady)
}

// Init starts the subsystem on first use and waits until it is ready.
// Calls are counted; each needs a matching Close. It reports whether a
// hardware clock is in use.
func (s *Subsystem) Init() bool {
	s.lifecycle.Lock()
	s.refs++
	first := s.refs == 1
	s.lifecycle.Unlock()

	if first && s.State() == StateInit {
		s.InitAsync()
	}
	s.waitReady()
	return s.currentSource() != SourceNone
}

// Close drops one Init reference. The last one removes the time hooks and
// returns the subsystem to StateInit; pending start-up callbacks are
// discarded.
func (s *Subsystem) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.refs > 0 {
		s.refs--
		if s.refs > 0 {
			return
		}
	}
	if s.State() == StateInit {
		return
	}
	systime.Unhook(s.hooks)
	s.gen.Add(1)
	s.setState(StateInit)
}

// GetSource returns the clock currently backing the subsystem.
func (s *Subsystem) GetSource() Source {
	s.waitReady()
	return s.currentSource()
}

// SetSource switches clocks. SourceNone is always accepted; a hardware
// source must be available and is read into the cache straight away.
func (s *Subsystem) SetSource(src Source) bool {
	s.waitReady()
	s.writer.Lock()
	defer s.writer.Unlock()

	if src == SourceNone {
		s.setSource(SourceNone)
		return true
	}
	if !s.available(src) {
		log.Warn().Stringer("source", src).Msg("rtc: source not available")
		return false
	}
	s.setSource(src)
	s.resync()
	return true
}

// IsSourceAvailable reports whether src can be selected.
func (s *Subsystem) IsSourceAvailable(src Source) bool {
	s.waitReady()
	return s.available(src)
}

func (s *Subsystem) available(src Source) bool {
	switch src {
	case SourceNone:
		return true
	case SourceJoybus:
		return s.backends.Joybus != nil && s.backends.Joybus.Detect()
	case SourceDD:
		return s.backends.DD != nil && s.backends.DD.Present()
	case SourceBB:
		return s.backends.BB != nil && s.backends.BB.Present()
	}
	return false
}

// Resync re-reads the current hardware clock into the cache.
func (s *Subsystem) Resync() {
	s.waitReady()
	s.writer.Lock()
	defer s.writer.Unlock()
	s.resync()
}

func (s *Subsystem) resync() {
	src := s.currentSource()
	if src == SourceNone {
		return
	}
	s.cacheHardware(s.read(src))
}

func (s *Subsystem) read(src Source) int64 {
	switch src {
	case SourceJoybus:
		return s.backends.Joybus.ReadTime()
	case SourceDD:
		return s.backends.DD.GetTime()
	case SourceBB:
		return s.backends.BB.GetTime()
	}
	return 0
}

func (s *Subsystem) write(src Source, ts int64) bool {
	switch src {
	case SourceJoybus:
		return s.backends.Joybus.SetTime(ts)
	case SourceDD:
		return s.backends.DD.SetTime(ts)
	case SourceBB:
		return s.backends.BB.SetTime(ts)
	}
	return false
}

// GetTime returns the current UNIX time from the cache.
func (s *Subsystem) GetTime() int64 {
	s.waitReady()
	return s.now()
}

// SetTime writes ts to the current clock. The cache takes ts whatever the
// hardware reports, so the session stays consistent on clocks that drop
// writes. Timestamps outside the supported window are refused untouched.
func (s *Subsystem) SetTime(ts int64) bool {
	if !InRange(ts) {
		log.Warn().Int64("ts", ts).Msg("rtc: timestamp out of range")
		return false
	}
	s.waitReady()
	s.writer.Lock()
	defer s.writer.Unlock()

	src := s.currentSource()
	written := s.write(src, ts)
	s.setCache(ts)
	if !written && src != SourceNone {
		log.Warn().Stringer("source", src).Msg("rtc: hardware write failed")
	}
	return written
}

// IsSourcePersistent reports whether src keeps time written to it. The
// first call per source writes a probe value twelve hours away from the
// hardware time, reads it back and restores the clock; the answer is
// memoised. The cache is not touched.
func (s *Subsystem) IsSourcePersistent(src Source) bool {
	if src <= SourceNone || src >= numSources {
		return false
	}
	s.waitReady()
	s.writer.Lock()
	defer s.writer.Unlock()

	if memo := s.persistent[src]; memo >= 0 {
		return memo == 1
	}
	if !s.available(src) {
		return false
	}
	ok := s.probe(src)
	s.persistent[src] = 0
	if ok {
		s.persistent[src] = 1
	}
	log.Info().Stringer("source", src).Bool("persistent", ok).Msg("rtc: persistence probed")
	return ok
}

// IsPersistent reports whether the current source keeps written time.
func (s *Subsystem) IsPersistent() bool {
	s.waitReady()
	return s.IsSourcePersistent(s.currentSource())
}

// IsWritable is IsPersistent.
//
// Deprecated: use IsPersistent.
func (s *Subsystem) IsWritable() bool {
	return s.IsPersistent()
}

// probeOffset is how far the probe value is moved from the hardware time.
const probeOffset = 12 * 60 * 60

// probeTolerance allows for the clock ticking during the probe.
const probeTolerance = 2

func (s *Subsystem) probe(src Source) bool {
	start := core.GetTicks()
	t := s.read(src)
	if !InRange(t) {
		t = s.now()
	}
	p := t + probeOffset
	if p > TimestampMax {
		p = t - probeOffset
	}

	written := s.write(src, p)
	back := s.read(src)

	restore := t + core.TicksToSeconds(core.GetTicks()-start)
	if !InRange(restore) {
		restore = t
	}
	s.write(src, restore)

	diff := back - p
	if diff < 0 {
		diff = -diff
	}
	log.Debug().Stringer("source", src).Int64("probe", p).Int64("readback", back).
		Bool("written", written).Msg("rtc: probe")
	return written && diff <= probeTolerance
}

// Get returns the current time broken down into calendar fields.
//
// Deprecated: use GetTime.
func (s *Subsystem) Get() (Time, bool) {
	return TimeFromUnix(s.GetTime()), true
}

// Set writes a calendar time.
//
// Deprecated: use SetTime.
func (s *Subsystem) Set(t Time) bool {
	return s.SetTime(t.Unix())
}
