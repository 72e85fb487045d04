package joybus

import (
	"encoding/binary"
	"sync"

	"github.com/rs/zerolog/log"

	"rtc64/core"
	"rtc64/protocol"
)

// Serial interface and PIF RAM on the console's bus.
const (
	PIFRAMAddr = 0x1FC007C0
	SIStatus   = 0x04800018

	siStatusBusy = 0x3 // DMA busy | IO busy
)

// PIF runs poll blocks through the console's PIF RAM with word accesses.
// The final word carries the control byte, which starts the PIF.
type PIF struct {
	io core.IODriver

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewPIF uses io for all register accesses.
func NewPIF(io core.IODriver) *PIF {
	return &PIF{io: io}
}

func (p *PIF) waitIdle() {
	core.SpinUntil(func() bool { return p.io.Read32(SIStatus)&siStatusBusy == 0 })
}

func (p *PIF) Exchange(block *protocol.PollBlock) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := block.Bytes()
	p.waitIdle()
	for off := 0; off < protocol.PollBlockSize; off += 4 {
		p.io.Write32(PIFRAMAddr+uint32(off), binary.BigEndian.Uint32(data[off:]))
		p.waitIdle()
	}

	var reply [protocol.PollBlockSize]byte
	for off := 0; off < protocol.PollBlockSize; off += 4 {
		binary.BigEndian.PutUint32(reply[off:], p.io.Read32(PIFRAMAddr+uint32(off)))
		p.waitIdle()
	}
	block.SetBytes(reply[:])
	return nil
}

// ExchangeAsync runs the exchange on its own goroutine, the stand-in for
// the SI interrupt.
func (p *PIF) ExchangeAsync(block *protocol.PollBlock, done func(*protocol.PollBlock, error)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.Exchange(block)
		if err != nil {
			log.Error().Err(err).Msg("joybus: pif exchange failed")
		}
		done(block, err)
	}()
}

// Wait blocks until every pending async exchange has completed.
func (p *PIF) Wait() {
	p.wg.Wait()
}
