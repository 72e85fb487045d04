// Package joybus moves PIF poll blocks between the CPU and the devices on
// the serial controller bus.
package joybus

import (
	"errors"
	"fmt"

	"rtc64/protocol"
)

// CartPort is the channel of the cartridge (EEPROM / RTC) on the bus.
const CartPort = 4

// ErrNoDevice is returned by Exec when nothing answered on the channel.
var ErrNoDevice = errors.New("joybus: no device")

// ErrShortReply is returned when the reply length in an executed block does
// not match what the command asked for.
var ErrShortReply = errors.New("joybus: reply length mismatch")

// Transport executes poll blocks. ExchangeAsync returns immediately; done
// runs once the reply has been copied back into block, possibly from
// another goroutine.
type Transport interface {
	Exchange(block *protocol.PollBlock) error
	ExchangeAsync(block *protocol.PollBlock, done func(*protocol.PollBlock, error))
}

// Command is a single request on one channel.
type Command struct {
	Port  int
	Send  []byte
	Reply int
}

// Block builds a poll block holding c and returns the reply offset.
func (c Command) Block() (*protocol.PollBlock, int, error) {
	block := protocol.NewPollBlock()
	off, err := block.AddCommand(c.Port, c.Send, c.Reply)
	if err != nil {
		return nil, 0, fmt.Errorf("joybus: build command 0x%02x: %w", c.first(), err)
	}
	return block, off, nil
}

// Result extracts the reply of c from an executed block.
func (c Command) Result(block *protocol.PollBlock, off int) ([]byte, error) {
	reply, ok := block.Reply(off)
	if !ok {
		return reply, fmt.Errorf("%w on port %d", ErrNoDevice, c.Port)
	}
	if len(reply) != c.Reply {
		return nil, fmt.Errorf("%w: command 0x%02x got %d bytes, want %d",
			ErrShortReply, c.first(), len(reply), c.Reply)
	}
	return reply, nil
}

func (c Command) first() byte {
	if len(c.Send) == 0 {
		return 0
	}
	return c.Send[0]
}

// Exec runs c synchronously.
func Exec(t Transport, c Command) ([]byte, error) {
	block, off, err := c.Block()
	if err != nil {
		return nil, err
	}
	if err := t.Exchange(block); err != nil {
		return nil, fmt.Errorf("joybus: exchange: %w", err)
	}
	return c.Result(block, off)
}

// ExecAsync runs c and hands the reply to done.
func ExecAsync(t Transport, c Command, done func([]byte, error)) {
	block, off, err := c.Block()
	if err != nil {
		done(nil, err)
		return
	}
	t.ExchangeAsync(block, func(b *protocol.PollBlock, err error) {
		if err != nil {
			done(nil, fmt.Errorf("joybus: exchange: %w", err))
			return
		}
		done(c.Result(b, off))
	})
}
