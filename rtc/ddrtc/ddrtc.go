// Package ddrtc reads and writes the RTC inside the 64DD disk drive ASIC.
//
// Every ASIC command completes by raising the cartridge interrupt; the
// driver counts mechanism interrupts and spins until the count moves.
// There is no timeout: an unanswered command hangs.
package ddrtc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"rtc64/core"
	"rtc64/protocol"
)

// ASIC registers on the PI bus
const (
	Base          = 0x05000500
	RegData       = Base + 0x00
	RegStatus     = Base + 0x08 // read: status, write: command
	RegCommand    = RegStatus
	RegBMControl  = Base + 0x10
	IPLMagicAddr  = 0x06000020
	IPLMagicValue = 0x36344444 // "64DD"

	statusMechaIRQ    = 1 << 9
	statusBMIRQ       = 1 << 10
	bmControlMechaRst = 1 << 8
)

// YearPivot splits two-digit years: yy >= 96 is 19yy, otherwise 20yy.
const YearPivot = 96

// Command is a 16-bit ASIC command code.
type Command uint16

const (
	CmdClearResetFlag Command = 0x09
	CmdSetYearMonth   Command = 0x0F
	CmdSetDayHour     Command = 0x10
	CmdSetMinSec      Command = 0x11
	CmdGetYearMonth   Command = 0x12
	CmdGetDayHour     Command = 0x13
	CmdGetMinSec      Command = 0x14
)

// Driver talks to the ASIC through a PI bus driver.
type Driver struct {
	io  core.IODriver
	irq core.InterruptController

	once    sync.Once
	present bool
	handler core.HandlerID

	mecha atomic.Uint32
	bm    atomic.Uint32
}

// New returns a driver using io for register access and irq for the
// completion interrupt. Detection happens on first use.
func New(io core.IODriver, irq core.InterruptController) *Driver {
	return &Driver{io: io, irq: irq}
}

func (d *Driver) read16(addr uint32) uint16 {
	return uint16(d.io.Read32(addr) >> 16)
}

func (d *Driver) write16(addr uint32, v uint16) {
	d.io.Write32(addr, uint32(v)<<16)
}

// Present reports whether a 64DD is attached. The first call probes the
// IPL ROM and, when the drive is found, hooks the cartridge interrupt.
// The probe is skipped on the iQue Player, which has no expansion port.
func (d *Driver) Present() bool {
	d.once.Do(func() {
		if core.IsBBPlayer() {
			return
		}
		if d.io.Read32(IPLMagicAddr) != IPLMagicValue {
			return
		}
		d.present = true
		d.handler = d.irq.Register(core.LineCart, d.handleInterrupt)
		d.irq.SetEnabled(core.LineCart, true)
		log.Debug().Msg("ddrtc: 64DD detected")
	})
	return d.present
}

// Close removes the interrupt handler.
func (d *Driver) Close() {
	if d.Present() {
		d.irq.Unregister(core.LineCart, d.handler)
	}
}

func (d *Driver) handleInterrupt() {
	status := d.read16(RegStatus)
	if status&statusMechaIRQ != 0 {
		d.mecha.Add(1)
		d.write16(RegBMControl, bmControlMechaRst)
	}
	if status&statusBMIRQ != 0 {
		d.bm.Add(1)
	}
}

// MechaInterrupts returns the number of mechanism interrupts handled.
func (d *Driver) MechaInterrupts() uint32 {
	return d.mecha.Load()
}

// BMInterrupts returns the number of buffer manager interrupts seen.
func (d *Driver) BMInterrupts() uint32 {
	return d.bm.Load()
}

// Command issues cmd and returns the data register once the drive
// signals completion.
func (d *Driver) Command(cmd Command) uint16 {
	before := d.mecha.Load()
	d.write16(RegCommand, uint16(cmd))
	core.SpinUntil(func() bool { return d.mecha.Load() != before })
	return d.read16(RegData)
}

func bcdHi(v uint16) int { return protocol.BCDDecode(byte(v >> 8)) }
func bcdLo(v uint16) int { return protocol.BCDDecode(byte(v)) }

func bcdPair(hi, lo int) uint16 {
	return uint16(protocol.BCDEncode(hi))<<8 | uint16(protocol.BCDEncode(lo))
}

// GetTime reads the drive clock. Minutes/seconds go first: that read
// latches the other two registers.
func (d *Driver) GetTime() int64 {
	if !d.Present() {
		return 0
	}
	ms := d.Command(CmdGetMinSec)
	dh := d.Command(CmdGetDayHour)
	ym := d.Command(CmdGetYearMonth)

	year := bcdHi(ym)
	if year >= YearPivot {
		year += 1900
	} else {
		year += 2000
	}
	return time.Date(year, time.Month(bcdLo(ym)), bcdHi(dh),
		bcdLo(dh), bcdHi(ms), bcdLo(ms), 0, time.UTC).Unix()
}

// SetTime writes ts field by field. Each set command echoes the value it
// applied; the write only counts if all three echoes match.
func (d *Driver) SetTime(ts int64) bool {
	if !d.Present() {
		return false
	}
	t := time.Unix(ts, 0).UTC()
	fields := []struct {
		cmd Command
		val uint16
	}{
		{CmdSetYearMonth, bcdPair(t.Year()%100, int(t.Month()))},
		{CmdSetDayHour, bcdPair(t.Day(), t.Hour())},
		{CmdSetMinSec, bcdPair(t.Minute(), t.Second())},
	}

	ok := true
	for _, f := range fields {
		d.write16(RegData, f.val)
		if got := d.Command(f.cmd); got != f.val {
			log.Warn().Uint16("cmd", uint16(f.cmd)).
				Uint16("want", f.val).Uint16("got", got).
				Msg("ddrtc: set command echoed a different value")
			ok = false
		}
	}
	return ok
}
