//go:build n64

package main

import (
	"runtime/volatile"
	"unsafe"
)

// kseg1 is the uncached, unmapped window onto physical addresses.
const kseg1 = 0xA0000000

// mmio is the PI bus IODriver: plain uncached word accesses.
type mmio struct{}

func reg(addr uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(kseg1 | addr)))
}

func (mmio) Read32(addr uint32) uint32 {
	return volatile.LoadUint32(reg(addr))
}

func (mmio) Write32(addr, value uint32) {
	volatile.StoreUint32(reg(addr), value)
}

// MIPS interface registers
const (
	miVersion = 0x04300004
	miIntr    = 0x04300008
	miMask    = 0x0430000C
)

// isBBPlayer checks the MI version register, whose IO revision field
// reads 0xB0 on the iQue.
func isBBPlayer(io mmio) bool {
	return io.Read32(miVersion)&0xF0 == 0xB0
}
