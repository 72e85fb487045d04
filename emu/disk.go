package emu

import (
	"sync"
	"time"

	"rtc64/core"
	"rtc64/protocol"
)

// 64DD register map as seen on the PI bus
const (
	DiskBase       = 0x05000500
	DiskData       = DiskBase + 0x00
	DiskStatus     = DiskBase + 0x08
	DiskBMControl  = DiskBase + 0x10
	DiskIPLMagic   = 0x06000020
	DiskMagicValue = 0x36344444

	diskStatusMecha  = 1 << 9
	diskControlMecha = 1 << 8
)

// 64DD RTC commands
const (
	diskCmdClearReset   = 0x09
	diskCmdSetYearMonth = 0x0F
	diskCmdSetDayHour   = 0x10
	diskCmdSetMinSec    = 0x11
	diskCmdGetYearMonth = 0x12
	diskCmdGetDayHour   = 0x13
	diskCmdGetMinSec    = 0x14
)

// DiskDrive models the 64DD ASIC on the PI bus. It implements
// core.IODriver and signals command completion by raising the cartridge
// interrupt on irq from a separate goroutine.
//
// Like the real drive, reading minutes/seconds latches the other RTC
// registers; reading day/hour or year/month first returns stale values.
type DiskDrive struct {
	// IgnoreWrites makes set commands echo the current value instead of
	// the requested one.
	IgnoreWrites bool

	mu       sync.Mutex
	irq      *core.SoftInterrupts
	clock    wallClock
	data     uint16
	wdata    uint16
	status   uint16
	latchYM  uint16
	latchDH  uint16
	pending  *diskFields
	commands []uint16
	wg       sync.WaitGroup
}

func NewDiskDrive(irq *core.SoftInterrupts, start time.Time) *DiskDrive {
	return &DiskDrive{irq: irq, clock: newWallClock(start)}
}

// Now returns the drive's current RTC time.
func (d *DiskDrive) Now() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock.now()
}

// Commands returns every command written so far, in order.
func (d *DiskDrive) Commands() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint16(nil), d.commands...)
}

// Wait blocks until all raised interrupts have been delivered.
func (d *DiskDrive) Wait() {
	d.wg.Wait()
}

func (d *DiskDrive) Read32(addr uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch addr {
	case DiskIPLMagic:
		return DiskMagicValue
	case DiskData:
		return uint32(d.data) << 16
	case DiskStatus:
		return uint32(d.status) << 16
	}
	return 0
}

func (d *DiskDrive) Write32(addr, value uint32) {
	v := uint16(value >> 16)
	d.mu.Lock()
	switch addr {
	case DiskData:
		d.wdata = v
	case DiskBMControl:
		if v&diskControlMecha != 0 {
			d.status &^= diskStatusMecha
		}
	case DiskStatus:
		d.commands = append(d.commands, v)
		d.data = d.execute(v)
		d.status |= diskStatusMecha
		d.mu.Unlock()
		d.raise()
		return
	}
	d.mu.Unlock()
}

func (d *DiskDrive) raise() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.irq.Raise(core.LineCart)
	}()
}

func bcdPair(hi, lo int) uint16 {
	return uint16(protocol.BCDEncode(hi))<<8 | uint16(protocol.BCDEncode(lo))
}

// diskFields holds the calendar fields between set commands so a sequence
// of partial writes is applied without intermediate normalisation.
type diskFields struct {
	year, month, day, hour, minute, sec int
}

func (f diskFields) time() time.Time {
	return time.Date(f.year, time.Month(f.month), f.day, f.hour, f.minute, f.sec, 0, time.UTC)
}

func (d *DiskDrive) execute(cmd uint16) uint16 {
	now := d.clock.now()
	if cmd < diskCmdSetYearMonth || cmd > diskCmdSetMinSec {
		d.pending = nil
	}
	switch cmd {
	case diskCmdGetMinSec:
		d.latchYM = bcdPair(now.Year()%100, int(now.Month()))
		d.latchDH = bcdPair(now.Day(), now.Hour())
		return bcdPair(now.Minute(), now.Second())
	case diskCmdGetDayHour:
		return d.latchDH
	case diskCmdGetYearMonth:
		return d.latchYM
	case diskCmdSetYearMonth, diskCmdSetDayHour, diskCmdSetMinSec:
		return d.set(cmd, now)
	case diskCmdClearReset:
		return 0
	}
	return 0
}

func (d *DiskDrive) set(cmd uint16, now time.Time) uint16 {
	if d.IgnoreWrites {
		switch cmd {
		case diskCmdSetYearMonth:
			return bcdPair(now.Year()%100, int(now.Month()))
		case diskCmdSetDayHour:
			return bcdPair(now.Day(), now.Hour())
		default:
			return bcdPair(now.Minute(), now.Second())
		}
	}

	if d.pending == nil {
		year, month, day := now.Date()
		hour, minute, sec := now.Clock()
		d.pending = &diskFields{year, int(month), day, hour, minute, sec}
	}
	f := d.pending
	hi := protocol.BCDDecode(byte(d.wdata >> 8))
	lo := protocol.BCDDecode(byte(d.wdata))
	switch cmd {
	case diskCmdSetYearMonth:
		f.year = 2000 + hi
		if hi >= 96 {
			f.year = 1900 + hi
		}
		f.month = lo
	case diskCmdSetDayHour:
		f.day, f.hour = hi, lo
	case diskCmdSetMinSec:
		f.minute, f.sec = hi, lo
	}
	d.clock.set(f.time())
	return d.wdata
}
