package emu

import (
	"sync"
	"time"

	"rtc64/protocol"
)

// ChipAddress is the chip's 7-bit slave address.
const ChipAddress = 0x68

type chipPhase int

const (
	chipIdle      chipPhase = iota // waiting for START
	chipRecv                       // shifting in a byte from the master
	chipAck                        // holding data low for our acknowledge
	chipSend                       // shifting out a byte
	chipMasterAck                  // master acknowledges our byte
	chipWaitStop                   // transfer over, ignore until START/STOP
)

type chipRole int

const (
	roleAddress chipRole = iota
	roleRegister
	roleData
)

// ChipRTC is a bit-level model of the iQue RTC chip on the two-wire bus.
// It implements the Lines contract directly, with the master's view of the
// wires: each Write is one change of the GPIO register.
//
// When the clock falls it moves before data; when it rises data settles
// first. A data change with the clock held high is a START or STOP.
type ChipRTC struct {
	// ReadOnly drops register writes, as a chip with a dead battery
	// domain would.
	ReadOnly bool

	mu sync.Mutex

	clock   wallClock
	oscFail bool
	cen     bool
	out     bool

	sclk, sdata bool // master drive
	drive       bool // chip pulls data low

	phase   chipPhase
	role    chipRole
	bits    int
	shift   uint8
	reading bool
	reg     uint8
	snap    [8]byte
	shadow  [8]byte
	dirty   bool
	ackNext bool
}

func NewChipRTC(start time.Time) *ChipRTC {
	return &ChipRTC{
		clock: newWallClock(start),
		sclk:  true,
		sdata: true,
		cen:   true,
	}
}

// Now returns the chip's current time.
func (c *ChipRTC) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.now()
}

// Registers returns the register block as a read would see it now.
func (c *ChipRTC) Registers() [8]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registers()
}

// SetOscillatorFail sets the sticky oscillator fail flag.
func (c *ChipRTC) SetOscillatorFail(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oscFail = v
}

func (c *ChipRTC) registers() [8]byte {
	t := c.clock.now()
	var r [8]byte
	r[0] = protocol.BCDEncode(t.Second())
	if c.clock.stopped {
		r[0] |= 0x80
	}
	r[1] = protocol.BCDEncode(t.Minute())
	if c.oscFail {
		r[1] |= 0x80
	}
	r[2] = protocol.BCDEncode(t.Hour())
	if t.Year() >= 2000 {
		r[2] |= 0x40
	}
	if c.cen {
		r[2] |= 0x80
	}
	r[3] = byte(t.Weekday()) + 1
	r[4] = protocol.BCDEncode(t.Day())
	r[5] = protocol.BCDEncode(int(t.Month()))
	r[6] = protocol.BCDEncode(t.Year() % 100)
	if c.out {
		r[7] = 0x80
	}
	return r
}

func (c *ChipRTC) commit() {
	r := c.shadow
	c.oscFail = r[1]&0x80 != 0
	c.cen = r[2]&0x80 != 0
	c.out = r[7]&0x80 != 0

	year := 1900 + protocol.BCDDecode(r[6])
	if r[2]&0x40 != 0 {
		year += 100
	}
	t := time.Date(year, time.Month(protocol.BCDDecode(r[5]&0x1F)), protocol.BCDDecode(r[4]&0x3F),
		protocol.BCDDecode(r[2]&0x3F), protocol.BCDDecode(r[1]&0x7F), protocol.BCDDecode(r[0]&0x7F),
		0, time.UTC)
	c.clock.set(t)
	c.clock.setStopped(r[0]&0x80 != 0)
}

func (c *ChipRTC) line() bool {
	return c.sdata && !c.drive
}

// Write implements the master side of a GPIO update.
func (c *ChipRTC) Write(clock, data bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(clock, data)
}

// Read releases data, drives clock and samples the data line.
func (c *ChipRTC) Read(clock bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(clock, true)
	return c.line()
}

func (c *ChipRTC) update(clock, data bool) {
	switch {
	case c.sclk && !clock:
		c.sclk = false
		c.falling()
		c.sdata = data
	case !c.sclk && clock:
		c.sdata = data
		c.sclk = true
		c.rising()
	case c.sclk && data != c.sdata:
		c.sdata = data
		if data {
			c.stopCondition()
		} else {
			c.startCondition()
		}
	default:
		c.sdata = data
	}
}

func (c *ChipRTC) startCondition() {
	if c.dirty {
		c.commitWrite()
	}
	c.phase = chipRecv
	c.role = roleAddress
	c.bits = 0
	c.shift = 0
	c.drive = false
}

func (c *ChipRTC) stopCondition() {
	if c.dirty {
		c.commitWrite()
	}
	c.phase = chipIdle
	c.drive = false
}

func (c *ChipRTC) commitWrite() {
	c.dirty = false
	if !c.ReadOnly {
		c.commit()
	}
}

func (c *ChipRTC) rising() {
	switch c.phase {
	case chipRecv:
		c.shift <<= 1
		if c.line() {
			c.shift |= 1
		}
		c.bits++
		if c.bits == 8 {
			c.ackNext = c.received(c.shift)
		}
	case chipSend:
		c.bits++
	case chipMasterAck:
		if c.line() {
			c.phase = chipWaitStop
			return
		}
		c.reg = (c.reg + 1) & 7
		c.bits = 0
		c.phase = chipSend
	}
}

func (c *ChipRTC) falling() {
	switch c.phase {
	case chipRecv:
		if c.bits < 8 {
			return
		}
		if !c.ackNext {
			c.phase = chipWaitStop
			return
		}
		c.drive = true
		c.phase = chipAck
	case chipAck:
		c.drive = false
		c.bits = 0
		c.shift = 0
		if c.reading {
			c.phase = chipSend
			c.driveBit()
			return
		}
		c.phase = chipRecv
	case chipSend:
		if c.bits < 8 {
			c.driveBit()
			return
		}
		c.drive = false
		c.phase = chipMasterAck
	}
}

func (c *ChipRTC) driveBit() {
	b := c.snap[c.reg]
	c.drive = b>>(7-c.bits)&1 == 0
}

// received handles a complete byte from the master and reports whether to
// acknowledge it.
func (c *ChipRTC) received(b uint8) bool {
	switch c.role {
	case roleAddress:
		if b>>1 != ChipAddress {
			return false
		}
		c.reading = b&1 != 0
		if c.reading {
			c.snap = c.registers()
		} else {
			c.role = roleRegister
		}
		return true
	case roleRegister:
		c.reg = b & 7
		c.shadow = c.registers()
		c.role = roleData
		return true
	default:
		c.shadow[c.reg] = b
		c.reg = (c.reg + 1) & 7
		c.dirty = true
		return true
	}
}
