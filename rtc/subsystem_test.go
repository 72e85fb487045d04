package rtc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"rtc64/core/coretest"
	"rtc64/systime"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const ts2024 int64 = 1709991930 // 2024-03-09 13:45:30 UTC

// fakeClock is a static-presence clock that stores whatever it is told
// unless it drops writes. alternate flips that behaviour after every
// write so a second probe would get a different answer.
type fakeClock struct {
	mu        sync.Mutex
	present   bool
	ts        int64
	drops     bool
	alternate bool
	reads     int
	writes    []int64
}

func (f *fakeClock) Present() bool { return f.present }

func (f *fakeClock) GetTime() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.ts
}

func (f *fakeClock) SetTime(ts int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, ts)
	if !f.drops {
		f.ts = ts
	}
	if f.alternate {
		f.drops = !f.drops
	}
	return true
}

func (f *fakeClock) written() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.writes...)
}

// fakeJoybus answers the start-up chain synchronously unless hold is set,
// in which case the detect callback is parked until release.
type fakeJoybus struct {
	fakeClock
	hold    bool
	parked  func(bool)
	stopped bool
	steps   []string
}

func (f *fakeJoybus) Detect() bool { return f.present }
func (f *fakeJoybus) ReadTime() int64 { return f.GetTime() }

func (f *fakeJoybus) DetectAsync(cb func(bool)) {
	f.steps = append(f.steps, "detect")
	if f.hold {
		f.parked = cb
		return
	}
	cb(f.present)
}

func (f *fakeJoybus) SetStoppedAsync(stop bool, done func()) {
	f.steps = append(f.steps, "start")
	f.stopped = stop
	done()
}

func (f *fakeJoybus) ReadTimeAsync(cb func(int64)) {
	f.steps = append(f.steps, "read")
	cb(f.GetTime())
}

func (f *fakeJoybus) release() {
	cb := f.parked
	f.parked = nil
	cb(f.present)
}

func TestInitNoHardware(t *testing.T) {
	coretest.FakeClock(t)
	s := New(Backends{})
	t.Cleanup(s.Close)

	assert.False(t, s.Init())
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, SourceNone, s.GetSource())
	assert.Equal(t, DefaultCacheTime, s.GetTime())
	assert.False(t, s.IsPersistent())
}

func TestInitJoybus(t *testing.T) {
	coretest.FakeClock(t)
	jb := &fakeJoybus{fakeClock: fakeClock{present: true, ts: ts2024}}
	s := New(Backends{Joybus: jb})
	t.Cleanup(s.Close)

	require.True(t, s.Init())
	assert.Equal(t, SourceJoybus, s.GetSource())
	assert.Equal(t, ts2024, s.GetTime())
	assert.Equal(t, []string{"detect", "start", "read"}, jb.steps)
	assert.False(t, jb.stopped)
}

func TestInitJoybusMissing(t *testing.T) {
	coretest.FakeClock(t)
	jb := &fakeJoybus{}
	s := New(Backends{Joybus: jb})
	t.Cleanup(s.Close)

	assert.False(t, s.Init())
	assert.Equal(t, []string{"detect"}, jb.steps)
}

func TestInitDDThenJoybus(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024 - 100}
	jb := &fakeJoybus{fakeClock: fakeClock{present: true, ts: ts2024}}
	s := New(Backends{Joybus: jb, DD: dd})
	t.Cleanup(s.Close)

	require.True(t, s.Init())
	assert.Equal(t, SourceJoybus, s.GetSource(), "joybus wins over the disk drive")
	assert.Equal(t, ts2024, s.GetTime())

	dd2 := &fakeClock{present: true, ts: ts2024 - 100}
	s2 := New(Backends{Joybus: &fakeJoybus{}, DD: dd2})
	t.Cleanup(s2.Close)
	require.True(t, s2.Init())
	assert.Equal(t, SourceDD, s2.GetSource())
	assert.Equal(t, ts2024-100, s2.GetTime())
}

func TestInitBB(t *testing.T) {
	coretest.FakeClock(t)
	bb := &fakeClock{present: true, ts: ts2024}
	jb := &fakeJoybus{fakeClock: fakeClock{present: true}}
	s := New(Backends{Joybus: jb, BB: bb})
	t.Cleanup(s.Close)

	require.True(t, s.Init())
	assert.Equal(t, SourceBB, s.GetSource())
	assert.Equal(t, ts2024, s.GetTime())
	assert.Empty(t, jb.steps, "the iQue has no joybus rtc")
}

func TestUnsetHardwareKeepsDefault(t *testing.T) {
	coretest.FakeClock(t)
	jb := &fakeJoybus{fakeClock: fakeClock{present: true}}
	s := New(Backends{Joybus: jb})
	t.Cleanup(s.Close)

	require.True(t, s.Init())
	assert.Equal(t, DefaultCacheTime, s.GetTime())

	require.True(t, s.SetTime(ts2024))
	jb.mu.Lock()
	jb.ts = 0
	jb.mu.Unlock()
	s.Resync()
	assert.Equal(t, ts2024, s.GetTime(), "a zero reading leaves the cache alone")
}

func TestCacheDrift(t *testing.T) {
	fc := coretest.FakeClock(t)
	s := New(Backends{})
	t.Cleanup(s.Close)
	s.Init()

	require.False(t, s.SetTime(ts2024), "no hardware to write")
	assert.Equal(t, ts2024, s.GetTime(), "the cache still takes the value")

	fc.Advance(1500 * time.Millisecond)
	assert.Equal(t, ts2024+1, s.GetTime())
	fc.Advance(500 * time.Millisecond)
	assert.Equal(t, ts2024+2, s.GetTime())
}

func TestCacheDriftProperty(t *testing.T) {
	fc := coretest.FakeClock(t)
	s := New(Backends{})
	t.Cleanup(s.Close)
	s.Init()

	rapid.Check(t, func(rt *rapid.T) {
		base := rapid.Int64Range(TimestampMin, TimestampMax).Draw(rt, "base")
		s.SetTime(base)
		start := fc.Now()

		prev := s.GetTime()
		steps := rapid.SliceOfN(rapid.Int64Range(0, 3000), 1, 8).Draw(rt, "steps")
		for _, ms := range steps {
			fc.Advance(time.Duration(ms) * time.Millisecond)
			got := s.GetTime()
			want := base + int64(fc.Since(start)/time.Second)
			if got != want {
				rt.Fatalf("after %v: got %d, want %d", fc.Since(start), got, want)
			}
			if got < prev {
				rt.Fatalf("time went backwards: %d < %d", got, prev)
			}
			prev = got
		}
	})
}

func TestSetTimeRange(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024}
	s := New(Backends{DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	for _, ts := range []int64{TimestampMin - 1, TimestampMax + 1, 0, -1} {
		assert.False(t, s.SetTime(ts), "ts %d", ts)
	}
	assert.Empty(t, dd.written(), "rejected values never reach hardware")
	assert.Equal(t, ts2024, s.GetTime())

	assert.True(t, s.SetTime(TimestampMin))
	assert.True(t, s.SetTime(TimestampMax))
	assert.Equal(t, []int64{TimestampMin, TimestampMax}, dd.written())
}

func TestSetSource(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024 - 3600}
	jb := &fakeJoybus{fakeClock: fakeClock{present: true, ts: ts2024}}
	s := New(Backends{Joybus: jb, DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	assert.True(t, s.IsSourceAvailable(SourceNone))
	assert.True(t, s.IsSourceAvailable(SourceDD))
	assert.False(t, s.IsSourceAvailable(SourceBB))
	assert.False(t, s.SetSource(SourceBB))
	assert.Equal(t, SourceJoybus, s.GetSource())

	require.True(t, s.SetSource(SourceDD))
	assert.Equal(t, SourceDD, s.GetSource())
	assert.Equal(t, ts2024-3600, s.GetTime(), "switching resyncs")

	reads := dd.reads
	require.True(t, s.SetSource(SourceNone))
	assert.Equal(t, reads, dd.reads, "no resync for none")
	assert.Equal(t, ts2024-3600, s.GetTime())

	assert.False(t, s.SetTime(ts2024))
	assert.Empty(t, dd.written())
}

func TestSetSourceJoybusResyncs(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024}
	jb := &fakeJoybus{fakeClock: fakeClock{present: true, ts: ts2024 + 7200}}
	s := New(Backends{Joybus: jb, DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	require.True(t, s.SetSource(SourceDD))
	require.Equal(t, ts2024, s.GetTime())

	jb.mu.Lock()
	jb.ts = ts2024 + 9000
	jb.mu.Unlock()
	require.True(t, s.SetSource(SourceJoybus))
	assert.Equal(t, SourceJoybus, s.GetSource())
	assert.Equal(t, ts2024+9000, s.GetTime(), "cache reloaded from the new source")
}

func TestPersistenceProbe(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024}
	bb := &fakeClock{present: false}
	s := New(Backends{DD: dd, BB: bb})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	assert.True(t, s.IsPersistent())
	writes := dd.written()
	require.Len(t, writes, 2)
	assert.Equal(t, ts2024+probeOffset, writes[0])
	assert.Equal(t, ts2024, writes[1], "hardware time restored")
	assert.Equal(t, ts2024, s.GetTime(), "cache untouched")

	assert.False(t, s.IsSourcePersistent(SourceNone))
	assert.False(t, s.IsSourcePersistent(SourceBB))
	assert.False(t, s.IsSourcePersistent(Source(42)))
	assert.True(t, s.IsWritable())
}

func TestPersistenceProbeDroppedWrites(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024, drops: true}
	s := New(Backends{DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	assert.True(t, s.SetTime(ts2024+60), "the write itself reports success")
	assert.False(t, s.IsPersistent())
}

func TestPersistenceProbeNearMax(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: TimestampMax - 10}
	s := New(Backends{DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	require.True(t, s.IsPersistent())
	assert.Equal(t, TimestampMax-10-probeOffset, dd.written()[0])
}

func TestPersistenceMemoized(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024, alternate: true}
	s := New(Backends{DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	first := s.IsPersistent()
	n := len(dd.written())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.IsPersistent())
		assert.Equal(t, first, s.IsSourcePersistent(SourceDD))
	}
	assert.Len(t, dd.written(), n, "probe runs once")
}

func TestInitRefCount(t *testing.T) {
	coretest.FakeClock(t)
	jb := &fakeJoybus{fakeClock: fakeClock{present: true, ts: ts2024}}
	s := New(Backends{Joybus: jb})

	require.True(t, s.Init())
	require.True(t, s.Init())
	assert.Len(t, jb.steps, 3, "second init does not restart")

	s.Close()
	assert.Equal(t, StateReady, s.State())
	s.Close()
	assert.Equal(t, StateInit, s.State())
	s.Close()
	assert.Equal(t, StateInit, s.State())
}

func TestCloseDropsPendingStartup(t *testing.T) {
	coretest.FakeClock(t)
	jb := &fakeJoybus{fakeClock: fakeClock{present: true, ts: ts2024}, hold: true}
	s := New(Backends{Joybus: jb})

	s.InitAsync()
	assert.Equal(t, StateDetectingJoybus, s.State())
	s.Close()
	assert.Equal(t, StateInit, s.State())

	jb.release()
	assert.Equal(t, StateInit, s.State(), "stale callback ignored")
	assert.Equal(t, []string{"detect"}, jb.steps)

	jb.hold = false
	require.True(t, s.Init())
	t.Cleanup(s.Close)
	assert.Equal(t, SourceJoybus, s.GetSource())
	assert.Equal(t, ts2024, s.GetTime())
}

func TestInitAsyncTwice(t *testing.T) {
	coretest.FakeClock(t)
	jb := &fakeJoybus{fakeClock: fakeClock{present: true}, hold: true}
	s := New(Backends{Joybus: jb})

	s.InitAsync()
	s.InitAsync()
	assert.Equal(t, []string{"detect"}, jb.steps)
	jb.release()
	s.Close()
}

func TestTimeHooks(t *testing.T) {
	fc := coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024}
	s := New(Backends{DD: dd})

	require.False(t, systime.Hooked())
	require.True(t, s.Init())
	require.True(t, systime.Hooked())
	assert.Equal(t, ts2024, systime.Now().Unix())

	fc.Advance(2 * time.Second)
	assert.Equal(t, ts2024+2, systime.Now().Unix())

	require.NoError(t, systime.Settimeofday(time.Unix(ts2024+600, 0)))
	assert.Equal(t, []int64{ts2024 + 600}, dd.written())
	assert.ErrorIs(t, systime.Settimeofday(time.Unix(TimestampMax+1, 0)), systime.ErrRejected)

	s.Close()
	assert.False(t, systime.Hooked())
}

func TestCalendarTime(t *testing.T) {
	coretest.FakeClock(t)
	dd := &fakeClock{present: true, ts: ts2024}
	s := New(Backends{DD: dd})
	t.Cleanup(s.Close)
	require.True(t, s.Init())

	got, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, Time{Year: 2024, Month: 2, Day: 9, Hour: 13, Min: 45, Sec: 30, Weekday: 6}, got)

	got.Year = 2030
	require.True(t, s.Set(got))
	assert.Equal(t, got.Unix(), dd.written()[0])
	assert.Equal(t, 2030, TimeFromUnix(dd.written()[0]).Year)
}

func TestDefaultHandle(t *testing.T) {
	coretest.FakeClock(t)
	prev := defaultSubsystem.Load()
	t.Cleanup(func() { defaultSubsystem.Store(prev) })

	defaultSubsystem.Store(nil)
	assert.Panics(t, func() { Default() })

	SetDefault(New(Backends{DD: &fakeClock{present: true, ts: ts2024}}))
	require.True(t, Init())
	t.Cleanup(Close)
	assert.Equal(t, StateReady, GetState())
	assert.Equal(t, SourceDD, GetSource())
	assert.Equal(t, ts2024, GetTime())
	assert.True(t, SetTime(ts2024+1))
	assert.True(t, IsPersistent())
}

func TestParseSource(t *testing.T) {
	for src := SourceNone; src < numSources; src++ {
		got, err := ParseSource(src.String())
		require.NoError(t, err)
		assert.Equal(t, src, got)
	}
	_, err := ParseSource("sundial")
	assert.Error(t, err)
	assert.Equal(t, "Source(9)", Source(9).String())
}
