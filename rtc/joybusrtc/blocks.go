package joybusrtc

import (
	"time"

	"rtc64/protocol"
)

// Block selects one of the RTC's 8-byte register blocks.
type Block uint8

const (
	BlockControl Block = 0
	BlockUnused  Block = 1
	BlockTime    Block = 2
)

// BlockSize is the payload size of every block.
const BlockSize = 8

// Status is the status byte returned with every RTC reply.
type Status uint8

const statusStopped Status = 0x80

// Stopped reports whether the RTC oscillator is halted.
func (s Status) Stopped() bool {
	return s&statusStopped != 0
}

const (
	controlLock1 = 0x02 // byte 0
	controlLock2 = 0x01 // byte 0
	controlStop  = 0x04 // byte 1
)

// ControlBlock is the contents of BlockControl. Outside of a write
// sequence both locks are set and stop is clear.
type ControlBlock [BlockSize]byte

// Lock1 reports whether block 1 is write protected.
func (c ControlBlock) Lock1() bool { return c[0]&controlLock1 != 0 }

// Lock2 reports whether the time block is write protected.
func (c ControlBlock) Lock2() bool { return c[0]&controlLock2 != 0 }

// Stop reports whether the stop bit is set.
func (c ControlBlock) Stop() bool { return c[1]&controlStop != 0 }

// SetStop sets the stop bit and puts both locks in the opposite state, so
// a stopped RTC is writable and a running one is protected.
func (c *ControlBlock) SetStop(stop bool) {
	if stop {
		c[1] |= controlStop
		c[0] &^= controlLock1 | controlLock2
	} else {
		c[1] &^= controlStop
		c[0] |= controlLock1 | controlLock2
	}
}

// EncodeTime packs ts into the time block layout.
func EncodeTime(ts int64) [BlockSize]byte {
	t := time.Unix(ts, 0).UTC()
	return [BlockSize]byte{
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

// DecodeTime unpacks a time block. An all-zero block means the RTC was
// never set and decodes to 0.
func DecodeTime(b [BlockSize]byte) int64 {
	if b == [BlockSize]byte{} {
		return 0
	}
	year := 1900 + protocol.BCDDecode(b[6]) + protocol.BCDDecode(b[7])*100
	return time.Date(year,
		time.Month(protocol.BCDDecode(b[5])),
		protocol.BCDDecode(b[3]),
		protocol.BCDDecode(b[2]&0x7F),
		protocol.BCDDecode(b[1]),
		protocol.BCDDecode(b[0]),
		0, time.UTC).Unix()
}
