//go:build n64

package main

import (
	"runtime"

	"rtc64/core"
)

// miController implements core.InterruptController on the MIPS interface.
// Pending lines are dispatched by poll, which a goroutine runs between
// yields. Cartridge interrupts reach the CPU directly rather than through
// the MI, so LineCart handlers run on every poll and must tolerate
// spurious calls.
type miController struct {
	io       mmio
	handlers [core.LineReset + 1][]handler
	enabled  uint32
	nextID   core.HandlerID
}

type handler struct {
	id core.HandlerID
	fn core.InterruptHandler
}

func (c *miController) Register(line core.InterruptLine, fn core.InterruptHandler) core.HandlerID {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	c.nextID++
	c.handlers[line] = append(c.handlers[line], handler{id: c.nextID, fn: fn})
	return c.nextID
}

func (c *miController) Unregister(line core.InterruptLine, id core.HandlerID) {
	state := core.DisableInterrupts()
	defer core.RestoreInterrupts(state)
	hs := c.handlers[line]
	for i, h := range hs {
		if h.id == id {
			c.handlers[line] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// SetEnabled writes the MI mask set/clear bit pair for MI lines.
func (c *miController) SetEnabled(line core.InterruptLine, enabled bool) {
	state := core.DisableInterrupts()
	if enabled {
		c.enabled |= 1 << line
	} else {
		c.enabled &^= 1 << line
	}
	core.RestoreInterrupts(state)

	if line > core.LineDP {
		return
	}
	bit := uint32(1) << (2 * uint32(line))
	if enabled {
		bit <<= 1
	}
	c.io.Write32(miMask, bit)
}

func (c *miController) poll() {
	state := core.DisableInterrupts()
	pending := c.io.Read32(miIntr) | 1<<core.LineCart
	pending &= c.enabled
	var run []core.InterruptHandler
	for line := core.LineSP; line <= core.LineReset; line++ {
		if pending&(1<<line) == 0 {
			continue
		}
		for _, h := range c.handlers[line] {
			run = append(run, h.fn)
		}
	}
	core.RestoreInterrupts(state)

	for _, fn := range run {
		fn()
	}
}

func (c *miController) run() {
	for {
		c.poll()
		runtime.Gosched()
	}
}
