package joybus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"rtc64/protocol"
)

// Device answers commands addressed to one channel. It writes the reply
// into rx and reports whether it responded at all.
type Device interface {
	Handle(tx, rx []byte) bool
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func(tx, rx []byte) bool

func (f DeviceFunc) Handle(tx, rx []byte) bool { return f(tx, rx) }

// Bus is an in-process PIF: it walks each poll block and dispatches commands
// to the attached devices. Completions of ExchangeAsync run on their own
// goroutine, standing in for the SI interrupt.
type Bus struct {
	mu      sync.Mutex
	devices [protocol.PollChannels]Device
	wg      sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{}
}

// Attach connects dev to channel port, replacing what was there. A nil dev
// empties the channel.
func (b *Bus) Attach(port int, dev Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[port] = dev
}

func (b *Bus) Exchange(block *protocol.PollBlock) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	block.Walk(func(channel int, tx, rx []byte) bool {
		dev := b.devices[channel]
		if dev == nil {
			return false
		}
		return dev.Handle(tx, rx)
	})
	return nil
}

func (b *Bus) ExchangeAsync(block *protocol.PollBlock, done func(*protocol.PollBlock, error)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := b.Exchange(block)
		if err != nil {
			log.Error().Err(err).Msg("joybus: async exchange failed")
		}
		done(block, err)
	}()
}

// Wait blocks until every pending async exchange has completed.
func (b *Bus) Wait() {
	b.wg.Wait()
}
