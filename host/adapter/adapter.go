// Package adapter drives a USB Joybus adapter over a serial link. Each
// PIF poll block travels in one frame; the adapter runs it against the
// console-side bus and sends the replied block back in a frame with the
// same sequence number.
package adapter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"rtc64/host/serial"
	"rtc64/protocol"
)

var (
	// ErrTimeout means the adapter stopped answering mid-exchange.
	ErrTimeout = errors.New("adapter: no reply")
	ErrClosed  = errors.New("adapter: closed")

	// Frame errors, re-exported for callers matching with errors.Is.
	ErrBadFrame = protocol.ErrBadFrame
	ErrCRC      = protocol.ErrCRC
)

// DefaultIdleReads is how many consecutive empty reads end an exchange.
// With the default 100ms port timeout that is half a second.
const DefaultIdleReads = 5

// Adapter is a joybus.Transport over a serial Port. Exchanges are
// serialised; ExchangeAsync runs them on their own goroutine.
type Adapter struct {
	// IdleReads overrides DefaultIdleReads when non-zero.
	IdleReads int

	port serial.Port

	mu     sync.Mutex
	dec    *protocol.FrameDecoder
	out    protocol.ScratchOutput
	buf    [protocol.FrameSize]byte
	seq    uint8
	closed bool

	wg sync.WaitGroup
}

// New wraps an open port.
func New(port serial.Port) *Adapter {
	return &Adapter{port: port, dec: protocol.NewFrameDecoder()}
}

// Open opens the serial device described by cfg and wraps it.
func Open(cfg *serial.Config) (*Adapter, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("adapter: %w", err)
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("adapter: flush: %w", err)
	}
	return New(port), nil
}

func (a *Adapter) idleReads() int {
	if a.IdleReads > 0 {
		return a.IdleReads
	}
	return DefaultIdleReads
}

// Exchange sends block to the adapter and replaces its contents with the
// reply.
func (a *Adapter) Exchange(block *protocol.PollBlock) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	seq := a.seq
	a.seq = protocol.NextSeq(seq)

	a.out.Reset()
	protocol.EncodeFrame(&a.out, seq, block.Bytes())
	if _, err := a.port.Write(a.out.Result()); err != nil {
		return fmt.Errorf("adapter: write: %w", err)
	}

	payload, err := a.receive(seq)
	if err != nil {
		return err
	}
	if len(payload) != protocol.PollBlockSize {
		return fmt.Errorf("%w: payload of %d bytes", ErrBadFrame, len(payload))
	}
	block.SetBytes(payload)
	return nil
}

// receive reads until the frame answering seq arrives. Frames carrying
// another sequence number are replies to abandoned exchanges and are
// dropped.
func (a *Adapter) receive(seq uint8) ([]byte, error) {
	idle := 0
	for {
		gotSeq, payload, err := a.dec.Next()
		switch {
		case err == nil && gotSeq == seq:
			return payload, nil
		case err == nil:
			log.Debug().Uint8("seq", gotSeq).Uint8("want", seq).Msg("adapter: dropping stale frame")
			continue
		case !errors.Is(err, protocol.ErrShortFrame):
			log.Error().Err(err).Msg("adapter: bad frame")
			return nil, fmt.Errorf("adapter: %w", err)
		}

		n, err := a.port.Read(a.buf[:])
		if err != nil {
			return nil, fmt.Errorf("adapter: read: %w", err)
		}
		if n == 0 {
			idle++
			if idle >= a.idleReads() {
				a.dec.Reset()
				return nil, ErrTimeout
			}
			continue
		}
		idle = 0
		a.dec.Feed(a.buf[:n])
	}
}

// ExchangeAsync runs Exchange on a new goroutine and passes the result to
// done.
func (a *Adapter) ExchangeAsync(block *protocol.PollBlock, done func(*protocol.PollBlock, error)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.Exchange(block)
		done(block, err)
	}()
}

// Close waits for pending asynchronous exchanges and closes the port.
func (a *Adapter) Close() error {
	a.wg.Wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.port.Close()
}
