//go:build n64

// Command n64 keeps the console clock: it brings up the RTC subsystem on
// whatever hardware is present and resyncs it once a minute.
package main

import (
	"time"

	"github.com/rs/zerolog/log"

	"rtc64/core"
	"rtc64/joybus"
	"rtc64/rtc"
	"rtc64/rtc/bbrtc"
	"rtc64/rtc/ddrtc"
	"rtc64/rtc/joybusrtc"
	"rtc64/systime"
	"rtc64/twowire"
)

// chipBitDelay paces the iQue two-wire bus well under its 100kHz limit.
const chipBitDelay = 5 * time.Microsecond

func main() {
	io := mmio{}
	irq := &miController{io: io}
	core.SetIODriver(io)
	core.SetInterruptController(irq)
	core.SetBBPlayer(isBBPlayer(io))
	core.TimerInit()
	go irq.run()

	s := rtc.New(rtc.Backends{
		Joybus: joybusrtc.New(joybus.NewPIF(io)),
		DD:     ddrtc.New(io, irq),
		BB:     bbrtc.New(twowire.New(twowire.NewGPIOLines(), chipBitDelay)),
	})
	rtc.SetDefault(s)

	if !rtc.Init() {
		log.Warn().Msg("no hardware clock, time starts at 2000-01-01")
	}
	log.Info().Stringer("source", rtc.GetSource()).Time("now", systime.Now()).Msg("clock ready")

	for {
		core.WaitMs(60 * 1000)
		rtc.Resync()
	}
}
