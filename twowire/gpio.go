package twowire

import "rtc64/core"

// GPIOAddr is the physical address of the iQue PI GPIO register.
const GPIOAddr = 0x04600060

// PI GPIO register bits
const (
	GPIODataOut  = 1 << 7 // data line output enable
	GPIOClockOut = 1 << 6 // clock line output enable
	GPIODataBit  = 1 << 4
	GPIOClockBit = 1 << 3
)

// GPIOLines drives the two wires through the PI GPIO register.
type GPIOLines struct {
	IO   core.IODriver
	Addr uint32
}

// NewGPIOLines uses the registered PI bus driver.
func NewGPIOLines() *GPIOLines {
	return &GPIOLines{IO: core.MustIO(), Addr: GPIOAddr}
}

func (g *GPIOLines) Write(clock, data bool) {
	v := uint32(GPIODataOut | GPIOClockOut)
	if data {
		v |= GPIODataBit
	}
	if clock {
		v |= GPIOClockBit
	}
	g.IO.Write32(g.Addr, v)
}

func (g *GPIOLines) Read(clock bool) bool {
	v := uint32(GPIOClockOut)
	if clock {
		v |= GPIOClockBit
	}
	g.IO.Write32(g.Addr, v)
	return g.IO.Read32(g.Addr)&GPIODataBit != 0
}
