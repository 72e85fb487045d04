package emu

import (
	"encoding/binary"
	"sync"

	"rtc64/protocol"
)

// iQue PI GPIO register
const (
	GPIOAddr = 0x04600060

	gpioDataOut  = 1 << 7
	gpioClockOut = 1 << 6
	gpioDataBit  = 1 << 4
	gpioClockBit = 1 << 3
)

// PIF RAM and serial interface status.
const (
	PIFRAMAddr = 0x1FC007C0
	SIStatus   = 0x04800018

	pifRAMSize = 64
	pifRun     = 0x01
)

// Exchanger runs a poll block against the controller ports, e.g. a
// joybus.Bus.
type Exchanger interface {
	Exchange(block *protocol.PollBlock) error
}

// PIBus routes PI bus accesses to the modelled devices. Absent devices
// read as zero and ignore writes, like open bus.
type PIBus struct {
	Disk *DiskDrive
	Chip *ChipRTC
	PIF  Exchanger

	pifMu  sync.Mutex
	pifRAM [pifRAMSize]byte
}

func (b *PIBus) Read32(addr uint32) uint32 {
	switch {
	case addr == GPIOAddr && b.Chip != nil:
		v := uint32(gpioDataOut | gpioClockOut)
		b.Chip.mu.Lock()
		if b.Chip.line() {
			v |= gpioDataBit
		}
		if b.Chip.sclk {
			v |= gpioClockBit
		}
		b.Chip.mu.Unlock()
		return v
	case b.isDisk(addr) && b.Disk != nil:
		return b.Disk.Read32(addr)
	case b.isPIF(addr) && b.PIF != nil:
		b.pifMu.Lock()
		defer b.pifMu.Unlock()
		return binary.BigEndian.Uint32(b.pifRAM[addr-PIFRAMAddr:])
	}
	return 0
}

func (b *PIBus) Write32(addr, value uint32) {
	switch {
	case addr == GPIOAddr && b.Chip != nil:
		// A line without output enable floats high.
		clock := value&gpioClockOut == 0 || value&gpioClockBit != 0
		data := value&gpioDataOut == 0 || value&gpioDataBit != 0
		b.Chip.Write(clock, data)
	case b.isDisk(addr) && b.Disk != nil:
		b.Disk.Write32(addr, value)
	case b.isPIF(addr) && b.PIF != nil:
		b.writePIF(addr-PIFRAMAddr, value)
	}
}

// writePIF stores a word of PIF RAM. Setting the run bit in the control
// byte executes the block in place.
func (b *PIBus) writePIF(off, value uint32) {
	b.pifMu.Lock()
	defer b.pifMu.Unlock()
	binary.BigEndian.PutUint32(b.pifRAM[off:], value)
	if b.pifRAM[pifRAMSize-1]&pifRun == 0 {
		return
	}
	var block protocol.PollBlock
	block.SetBytes(b.pifRAM[:])
	if err := b.PIF.Exchange(&block); err != nil {
		return
	}
	copy(b.pifRAM[:], block.Bytes())
	b.pifRAM[pifRAMSize-1] &^= pifRun
}

func (b *PIBus) isPIF(addr uint32) bool {
	return addr >= PIFRAMAddr && addr < PIFRAMAddr+pifRAMSize && addr%4 == 0
}

func (b *PIBus) isDisk(addr uint32) bool {
	return addr == DiskIPLMagic || (addr >= DiskBase && addr < DiskBase+0x20)
}
