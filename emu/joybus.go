package emu

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"rtc64/protocol"
)

// JoybusMode selects how faithfully a JoybusRTC honours writes. Flash
// cartridges and emulators differ here and the driver has to cope.
type JoybusMode int

const (
	// JoybusAcceptWrites behaves like the real RTC.
	JoybusAcceptWrites JoybusMode = iota
	// JoybusIgnoreTimeWrites stops and starts but drops time block writes.
	JoybusIgnoreTimeWrites
	// JoybusIgnoreControl never stops; every write is dropped.
	JoybusIgnoreControl
)

const (
	joybusRTCIdentifier = 0x1000
	joybusStatusStopped = 0x80

	controlLock1 = 0x02
	controlLock2 = 0x01
	controlStop  = 0x04
)

// JoybusRTC answers RTC commands on the cartridge channel of a joybus.Bus.
type JoybusRTC struct {
	mu      sync.Mutex
	mode    JoybusMode
	clock   wallClock
	blank   bool
	control [8]byte
	unused  [8]byte
	writes  int
}

// NewJoybusRTC returns a running RTC set to start with both blocks locked.
func NewJoybusRTC(start time.Time, mode JoybusMode) *JoybusRTC {
	r := &JoybusRTC{mode: mode, clock: newWallClock(start)}
	r.control[0] = controlLock1 | controlLock2
	return r
}

// NewBlankJoybusRTC returns an RTC that was never set: its time block
// reads back as zeros until written.
func NewBlankJoybusRTC(mode JoybusMode) *JoybusRTC {
	r := NewJoybusRTC(time.Time{}, mode)
	r.blank = true
	return r
}

// Now returns the time the RTC would report.
func (r *JoybusRTC) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.now()
}

// Control returns a copy of the control block.
func (r *JoybusRTC) Control() [8]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.control
}

// Writes counts accepted block writes.
func (r *JoybusRTC) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *JoybusRTC) status() byte {
	if r.clock.stopped {
		return joybusStatusStopped
	}
	return 0
}

func (r *JoybusRTC) Handle(tx, rx []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tx) == 0 {
		return false
	}
	switch tx[0] {
	case protocol.CmdIdentify:
		if len(rx) < 3 {
			return false
		}
		rx[0] = joybusRTCIdentifier >> 8
		rx[1] = joybusRTCIdentifier & 0xFF
		rx[2] = r.status()
		return true

	case protocol.CmdReadBlock:
		if len(tx) < 2 || len(rx) < 9 {
			return false
		}
		data := r.readBlock(tx[1])
		copy(rx, data[:])
		rx[8] = r.status()
		return true

	case protocol.CmdWriteBlock:
		if len(tx) < 10 || len(rx) < 1 {
			return false
		}
		var data [8]byte
		copy(data[:], tx[2:10])
		r.writeBlock(tx[1], data)
		rx[0] = r.status()
		return true
	}
	return false
}

func (r *JoybusRTC) readBlock(block byte) [8]byte {
	switch block {
	case 0:
		return r.control
	case 1:
		return r.unused
	case 2:
		if r.blank {
			return [8]byte{}
		}
		return encodeJoybusTime(r.clock.now())
	}
	return [8]byte{}
}

func (r *JoybusRTC) writeBlock(block byte, data [8]byte) {
	switch block {
	case 0:
		if r.mode == JoybusIgnoreControl {
			log.Debug().Msg("emu: joybus rtc dropped control write")
			return
		}
		r.control = data
		r.clock.setStopped(data[1]&controlStop != 0)
	case 1:
		if r.control[0]&controlLock1 != 0 {
			return
		}
		r.unused = data
	case 2:
		if r.mode != JoybusAcceptWrites || r.control[0]&controlLock2 != 0 {
			log.Debug().Msg("emu: joybus rtc dropped time write")
			return
		}
		t, ok := decodeJoybusTime(data)
		if !ok {
			return
		}
		r.clock.set(t)
		r.blank = false
	default:
		return
	}
	r.writes++
}

func encodeJoybusTime(t time.Time) [8]byte {
	return [8]byte{
		protocol.BCDEncode(t.Second()),
		protocol.BCDEncode(t.Minute()),
		protocol.BCDEncode(t.Hour()) | 0x80,
		protocol.BCDEncode(t.Day()),
		protocol.BCDEncode(int(t.Weekday())),
		protocol.BCDEncode(int(t.Month())),
		protocol.BCDEncode(t.Year() % 100),
		protocol.BCDEncode(t.Year()/100 - 19),
	}
}

func decodeJoybusTime(b [8]byte) (time.Time, bool) {
	month := protocol.BCDDecode(b[5])
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	year := 1900 + protocol.BCDDecode(b[6]) + protocol.BCDDecode(b[7])*100
	return time.Date(year, time.Month(month), protocol.BCDDecode(b[3]),
		protocol.BCDDecode(b[2]&0x7F), protocol.BCDDecode(b[1]), protocol.BCDDecode(b[0]),
		0, time.UTC), true
}
