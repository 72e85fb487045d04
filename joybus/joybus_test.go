package joybus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc64/protocol"
)

func echoDevice() Device {
	return DeviceFunc(func(tx, rx []byte) bool {
		for i := range rx {
			rx[i] = tx[0] + byte(i)
		}
		return true
	})
}

func TestExecReachesAttachedDevice(t *testing.T) {
	bus := NewBus()
	bus.Attach(CartPort, echoDevice())

	reply, err := Exec(bus, Command{Port: CartPort, Send: []byte{0x06}, Reply: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x06, 0x07, 0x08}, reply)
}

func TestExecEmptyPort(t *testing.T) {
	bus := NewBus()
	_, err := Exec(bus, Command{Port: CartPort, Send: []byte{0x06}, Reply: 3})
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestExecBadCommand(t *testing.T) {
	bus := NewBus()
	_, err := Exec(bus, Command{Port: 9, Send: []byte{0x06}, Reply: 3})
	assert.ErrorIs(t, err, protocol.ErrBadChannel)
}

func TestExecAsync(t *testing.T) {
	bus := NewBus()
	bus.Attach(CartPort, echoDevice())

	done := make(chan []byte, 1)
	ExecAsync(bus, Command{Port: CartPort, Send: []byte{0x07, 2}, Reply: 2}, func(reply []byte, err error) {
		assert.NoError(t, err)
		done <- reply
	})
	assert.Equal(t, []byte{0x07, 0x08}, <-done)
	bus.Wait()
}

type failingTransport struct{}

var errLink = errors.New("link down")

func (failingTransport) Exchange(*protocol.PollBlock) error { return errLink }

func (failingTransport) ExchangeAsync(b *protocol.PollBlock, done func(*protocol.PollBlock, error)) {
	done(b, errLink)
}

func TestExecWrapsTransportErrors(t *testing.T) {
	_, err := Exec(failingTransport{}, Command{Port: CartPort, Send: []byte{0x06}, Reply: 3})
	assert.ErrorIs(t, err, errLink)

	var asyncErr error
	ExecAsync(failingTransport{}, Command{Port: CartPort, Send: []byte{0x06}, Reply: 3}, func(_ []byte, err error) {
		asyncErr = err
	})
	assert.ErrorIs(t, asyncErr, errLink)
}

// truncatingTransport rewrites the rx length of every command after the
// exchange, the way a corrupted PIF RAM image would.
type truncatingTransport struct {
	*Bus
	rxLen byte
}

func (tr truncatingTransport) truncate(block *protocol.PollBlock) {
	// Skip the zero bytes that advance to the command's channel.
	off := 0
	for block.Data[off] == 0 {
		off++
	}
	block.Data[off+1] = tr.rxLen
}

func (tr truncatingTransport) Exchange(block *protocol.PollBlock) error {
	err := tr.Bus.Exchange(block)
	tr.truncate(block)
	return err
}

func (tr truncatingTransport) ExchangeAsync(block *protocol.PollBlock, done func(*protocol.PollBlock, error)) {
	tr.Bus.ExchangeAsync(block, func(b *protocol.PollBlock, err error) {
		tr.truncate(b)
		done(b, err)
	})
}

func TestExecRejectsShortReply(t *testing.T) {
	bus := NewBus()
	bus.Attach(CartPort, echoDevice())
	tr := truncatingTransport{Bus: bus, rxLen: 1}
	cmd := Command{Port: CartPort, Send: []byte{0x06}, Reply: 3}

	reply, err := Exec(tr, cmd)
	assert.ErrorIs(t, err, ErrShortReply)
	assert.Nil(t, reply)

	done := make(chan error, 1)
	ExecAsync(tr, cmd, func(reply []byte, err error) {
		assert.Nil(t, reply)
		done <- err
	})
	assert.ErrorIs(t, <-done, ErrShortReply)
	bus.Wait()
}
