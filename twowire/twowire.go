// Package twowire bit-bangs the two-wire (I2C style) protocol used by the
// iQue Player RTC chip.
//
// Transfers are fire and forget: acknowledge bits are clocked but never
// checked, so a missing slave reads back as stale or all-ones data.
package twowire

import (
	"errors"
	"time"

	"rtc64/core"
)

// Lines drives the clock and data wires.
type Lines interface {
	// Write drives both lines.
	Write(clock, data bool)
	// Read releases the data line, drives clock and samples data.
	Read(clock bool) bool
}

// ErrNoRegister is returned by Tx when a transfer carries no register byte.
var ErrNoRegister = errors.New("twowire: missing register address")

// Bus runs transfers over Lines. Delay is waited around the clock edges
// that precede a sample, giving the slave time to settle the data line.
type Bus struct {
	Lines Lines
	Delay time.Duration
}

func New(lines Lines, delay time.Duration) *Bus {
	return &Bus{Lines: lines, Delay: delay}
}

func (b *Bus) wait() {
	if b.Delay > 0 {
		core.Sleep(b.Delay)
	}
}

func (b *Bus) start() {
	b.Lines.Write(true, true)
	b.Lines.Write(true, false)
}

func (b *Bus) stop() {
	b.Lines.Write(true, false)
	b.Lines.Write(true, true)
}

func (b *Bus) writeBit(data bool) {
	b.Lines.Write(false, data)
	b.Lines.Write(true, data)
	b.Lines.Write(false, data)
}

func (b *Bus) readBit() bool {
	b.Lines.Write(false, true)
	b.wait()
	b.Lines.Write(true, true)
	b.wait()
	data := b.Lines.Read(true)
	b.Lines.Write(false, true)
	return data
}

// readAck clocks the acknowledge slot. Low means acknowledged.
func (b *Bus) readAck() bool {
	b.Lines.Write(true, true)
	b.wait()
	ack := b.Lines.Read(true)
	b.Lines.Write(false, true)
	b.wait()
	return ack
}

func (b *Bus) writeAck()  { b.writeBit(false) }
func (b *Bus) writeNack() { b.writeBit(true) }

func (b *Bus) writeByte(v uint8) {
	for i := 7; i >= 0; i-- {
		b.writeBit(v>>i&1 != 0)
	}
}

func (b *Bus) readByte() uint8 {
	var v uint8
	for i := 7; i >= 0; i-- {
		if b.readBit() {
			v |= 1 << i
		}
	}
	return v
}

// ReadBlock reads len(buf) consecutive registers starting at reg.
func (b *Bus) ReadBlock(slave, reg uint8, buf []byte) bool {
	b.start()
	b.writeByte(slave << 1)
	b.readAck()
	b.writeByte(reg)
	b.readAck()
	b.start()
	b.writeByte(slave<<1 | 1)
	b.readAck()
	for i := range buf {
		buf[i] = b.readByte()
		if i < len(buf)-1 {
			b.writeAck()
		} else {
			b.writeNack()
		}
	}
	b.stop()
	return true
}

// WriteBlock writes data to consecutive registers starting at reg.
func (b *Bus) WriteBlock(slave, reg uint8, data []byte) bool {
	b.start()
	b.writeByte(slave << 1)
	b.readAck()
	b.writeByte(reg)
	b.readAck()
	for _, v := range data {
		b.writeByte(v)
		b.readAck()
	}
	b.stop()
	return true
}

// Tx implements drivers.I2C. w[0] selects the register; with a non-empty r
// the remaining registers are read, otherwise w[1:] is written.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 0 {
		if len(r) == 0 {
			return nil
		}
		return ErrNoRegister
	}
	if len(r) > 0 {
		b.ReadBlock(uint8(addr), w[0], r)
		return nil
	}
	b.WriteBlock(uint8(addr), w[0], w[1:])
	return nil
}

// ReadRegister and WriteRegister cover the older drivers.I2C shape.
func (b *Bus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	b.ReadBlock(addr, r, buf)
	return nil
}

func (b *Bus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	b.WriteBlock(addr, r, buf)
	return nil
}
