package adapter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rtc64/core/coretest"
	"rtc64/emu"
	"rtc64/joybus"
	"rtc64/protocol"
	"rtc64/rtc/joybusrtc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// firmware is an in-memory Port playing the adapter: every frame written
// to it is run against a joybus.Bus and answered immediately. Reads with
// nothing queued return zero bytes, like a serial read timeout.
type firmware struct {
	mu      sync.Mutex
	bus     *joybus.Bus
	dec     *protocol.FrameDecoder
	pending []byte
	frames  int
	closed  bool

	// mangle, if set, rewrites each outgoing reply frame.
	mangle func(seq uint8, frame []byte) []byte
	// mute drops replies entirely.
	mute   bool
}

func newFirmware(bus *joybus.Bus) *firmware {
	return &firmware{bus: bus, dec: protocol.NewFrameDecoder()}
}

func (f *firmware) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dec.Feed(p)
	for {
		seq, payload, err := f.dec.Next()
		if err != nil {
			break
		}
		f.frames++
		var block protocol.PollBlock
		block.SetBytes(payload)
		if err := f.bus.Exchange(&block); err != nil {
			return 0, err
		}
		if f.mute {
			continue
		}
		var out protocol.ScratchOutput
		protocol.EncodeFrame(&out, seq, block.Bytes())
		frame := append([]byte(nil), out.Result()...)
		if f.mangle != nil {
			frame = f.mangle(seq, frame)
		}
		f.pending = append(f.pending, frame...)
	}
	return len(p), nil
}

func (f *firmware) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *firmware) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	return nil
}

func (f *firmware) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func echoBus() *joybus.Bus {
	bus := joybus.NewBus()
	bus.Attach(joybus.CartPort, joybus.DeviceFunc(func(tx, rx []byte) bool {
		for i := range rx {
			rx[i] = tx[0] + byte(i)
		}
		return true
	}))
	return bus
}

func TestExchange(t *testing.T) {
	fw := newFirmware(echoBus())
	a := New(fw)
	t.Cleanup(func() { a.Close() })

	reply, err := joybus.Exec(a, joybus.Command{Port: joybus.CartPort, Send: []byte{0x40}, Reply: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40, 0x41, 0x42}, reply)

	_, err = joybus.Exec(a, joybus.Command{Port: 1, Send: []byte{0x00}, Reply: 3})
	assert.ErrorIs(t, err, joybus.ErrNoDevice)
	assert.Equal(t, 2, fw.frames)
}

func TestSequenceWraps(t *testing.T) {
	fw := newFirmware(echoBus())
	a := New(fw)
	t.Cleanup(func() { a.Close() })

	var seqs []uint8
	fw.mangle = func(seq uint8, frame []byte) []byte {
		seqs = append(seqs, seq)
		return frame
	}
	for i := 0; i < 20; i++ {
		_, err := joybus.Exec(a, joybus.Command{Port: joybus.CartPort, Send: []byte{byte(i)}, Reply: 1})
		require.NoError(t, err)
	}
	require.Len(t, seqs, 20)
	assert.Equal(t, uint8(0), seqs[0])
	assert.Equal(t, uint8(15), seqs[15])
	assert.Equal(t, uint8(0), seqs[16])
}

func TestStaleFrameDropped(t *testing.T) {
	fw := newFirmware(echoBus())
	a := New(fw)
	t.Cleanup(func() { a.Close() })

	fw.mangle = func(seq uint8, frame []byte) []byte {
		var stale protocol.ScratchOutput
		protocol.EncodeFrame(&stale, protocol.NextSeq(seq+1), make([]byte, protocol.PollBlockSize))
		return append(append([]byte(nil), stale.Result()...), frame...)
	}
	reply, err := joybus.Exec(a, joybus.Command{Port: joybus.CartPort, Send: []byte{0x10}, Reply: 1})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10}, reply)
}

func TestCorruptReply(t *testing.T) {
	fw := newFirmware(echoBus())
	a := New(fw)
	t.Cleanup(func() { a.Close() })

	fw.mangle = func(_ uint8, frame []byte) []byte {
		frame[10] ^= 0x01
		return frame
	}
	_, err := joybus.Exec(a, joybus.Command{Port: joybus.CartPort, Send: []byte{0x10}, Reply: 1})
	assert.ErrorIs(t, err, ErrCRC)

	fw.mangle = nil
	_, err = joybus.Exec(a, joybus.Command{Port: joybus.CartPort, Send: []byte{0x10}, Reply: 1})
	assert.NoError(t, err, "the link recovers on the next exchange")
}

func TestShortPayload(t *testing.T) {
	fw := newFirmware(echoBus())
	a := New(fw)
	t.Cleanup(func() { a.Close() })

	fw.mangle = func(seq uint8, _ []byte) []byte {
		var out protocol.ScratchOutput
		protocol.EncodeFrame(&out, seq, []byte{1, 2, 3})
		return append([]byte(nil), out.Result()...)
	}
	err := a.Exchange(protocol.NewPollBlock())
	assert.ErrorIs(t, err, ErrBadFrame)
}

func TestTimeout(t *testing.T) {
	fw := newFirmware(echoBus())
	fw.mute = true
	a := New(fw)
	a.IdleReads = 2

	err := a.Exchange(protocol.NewPollBlock())
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, a.Close())
	assert.True(t, fw.closed)
	assert.ErrorIs(t, a.Exchange(protocol.NewPollBlock()), ErrClosed)
	assert.NoError(t, a.Close())
}

type failingPort struct{ firmware }

func (p *failingPort) Write([]byte) (int, error) { return 0, errors.New("cable pulled") }

func TestWriteError(t *testing.T) {
	a := New(&failingPort{})
	err := a.Exchange(protocol.NewPollBlock())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cable pulled")
}

func TestExchangeAsync(t *testing.T) {
	a := New(newFirmware(echoBus()))

	done := make(chan []byte, 1)
	joybus.ExecAsync(a, joybus.Command{Port: joybus.CartPort, Send: []byte{0x20}, Reply: 2}, func(reply []byte, err error) {
		assert.NoError(t, err)
		done <- reply
	})
	select {
	case reply := <-done:
		assert.Equal(t, []byte{0x20, 0x21}, reply)
	case <-time.After(5 * time.Second):
		t.Fatal("async exchange never completed")
	}
	require.NoError(t, a.Close())
}

func TestJoybusRTCOverAdapter(t *testing.T) {
	fc := coretest.FakeClock(t)
	coretest.AutoAdvance(t, fc, time.Millisecond)

	start := time.Date(2024, time.March, 9, 13, 45, 30, 0, time.UTC)
	bus := joybus.NewBus()
	bus.Attach(joybus.CartPort, emu.NewJoybusRTC(start, emu.JoybusAcceptWrites))
	a := New(newFirmware(bus))
	t.Cleanup(func() { a.Close() })

	drv := joybusrtc.New(a)
	require.True(t, drv.Detect())
	assert.InDelta(t, start.Unix(), drv.ReadTime(), 1)

	target := start.Add(72 * time.Hour).Unix()
	require.True(t, drv.SetTime(target))
	assert.InDelta(t, target, drv.ReadTime(), 1)
}
