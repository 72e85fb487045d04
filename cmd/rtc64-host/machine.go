package main

import (
	"fmt"
	"time"

	"rtc64/core"
	"rtc64/emu"
	"rtc64/host/adapter"
	"rtc64/host/config"
	"rtc64/joybus"
	"rtc64/rtc"
	"rtc64/rtc/bbrtc"
	"rtc64/rtc/ddrtc"
	"rtc64/rtc/joybusrtc"
	"rtc64/twowire"
)

// machine is the set of clocks the tool talks to and whatever must be
// released afterwards.
type machine struct {
	rtc     *rtc.Subsystem
	closers []func()
}

func (m *machine) Close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		m.closers[i]()
	}
}

// newAdapterMachine reaches the cartridge RTC through a USB adapter. The
// PI bus is not reachable from a PC, so only the Joybus clock exists.
func newAdapterMachine(vals config.Values) (*machine, error) {
	a, err := adapter.Open(vals.SerialConfig())
	if err != nil {
		return nil, err
	}
	jb := joybusrtc.New(a)
	jb.Cart = vals.CartType()
	jb.SettleMs = vals.SettleMs

	return &machine{
		rtc:     rtc.New(rtc.Backends{Joybus: jb}),
		closers: []func(){func() { a.Close() }},
	}, nil
}

type simOptions struct {
	rtc      string
	dd       bool
	bb       bool
	settleMs uint32
}

// newSimMachine builds a console out of emulated devices starting at the
// host's current time.
func newSimMachine(o simOptions) (*machine, error) {
	now := time.Now().UTC()
	m := &machine{}

	bus := joybus.NewBus()
	m.closers = append(m.closers, bus.Wait)
	switch o.rtc {
	case "accept":
		bus.Attach(joybus.CartPort, emu.NewJoybusRTC(now, emu.JoybusAcceptWrites))
	case "ignore":
		bus.Attach(joybus.CartPort, emu.NewJoybusRTC(now, emu.JoybusIgnoreTimeWrites))
	case "none":
	default:
		return nil, fmt.Errorf("unknown simulated rtc %q", o.rtc)
	}

	irq := core.NewSoftInterrupts()
	pi := &emu.PIBus{}
	if o.dd {
		pi.Disk = emu.NewDiskDrive(irq, now)
		m.closers = append(m.closers, pi.Disk.Wait)
	}
	if o.bb {
		pi.Chip = emu.NewChipRTC(now)
		core.SetBBPlayer(true)
	}
	core.SetIODriver(pi)
	core.SetInterruptController(irq)

	jb := joybusrtc.New(bus)
	jb.SettleMs = o.settleMs
	dd := ddrtc.New(core.MustIO(), core.MustInterrupts())
	m.closers = append(m.closers, dd.Close)
	bb := bbrtc.New(twowire.New(twowire.NewGPIOLines(), 0))

	m.rtc = rtc.New(rtc.Backends{Joybus: jb, DD: dd, BB: bb})
	return m, nil
}
