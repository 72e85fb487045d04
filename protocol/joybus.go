package protocol

import (
	"errors"
	"fmt"
)

// Joybus command IDs understood by the cartridge RTC
const (
	CmdIdentify   = 0x06
	CmdReadBlock  = 0x07
	CmdWriteBlock = 0x08
)

// PIF poll block layout
const (
	PollBlockSize = 64
	PollControl   = PollBlockSize - 1

	PollSkip    = 0x00 // advance to the next channel
	PollEnd     = 0xFE // no more commands
	PollPad     = 0xFF // ignored filler
	PollRun     = 0x01 // control byte: execute the block
	PollNoReply = 0x80 // set by the PIF in the rx length when nothing answered
	PollLenMask = 0x3F

	PollChannels = 5
)

var (
	ErrBlockFull  = errors.New("poll block full")
	ErrBadChannel = errors.New("poll channel out of order")
)

// PollBlock is the 64-byte command buffer exchanged with the PIF. Commands
// are appended in channel order; each reply is read back from the offsets
// its command occupied.
type PollBlock struct {
	Data    [PollBlockSize]byte
	pos     int
	channel int
}

// NewPollBlock returns an empty block ready for AddCommand.
func NewPollBlock() *PollBlock {
	b := &PollBlock{}
	b.Reset()
	return b
}

// Reset clears all commands.
func (b *PollBlock) Reset() {
	for i := range b.Data {
		b.Data[i] = 0
	}
	b.Data[0] = PollEnd
	b.Data[PollControl] = PollRun
	b.pos = 0
	b.channel = 0
}

// AddCommand appends tx for channel, reserving rxLen reply bytes. It returns
// the offset of the command's tx length byte, which Reply takes.
func (b *PollBlock) AddCommand(channel int, tx []byte, rxLen int) (int, error) {
	if channel < b.channel || channel >= PollChannels {
		return 0, fmt.Errorf("%w: channel %d after %d", ErrBadChannel, channel, b.channel)
	}
	if len(tx) > PollLenMask || rxLen > PollLenMask {
		return 0, fmt.Errorf("%w: tx %d rx %d", ErrBlockFull, len(tx), rxLen)
	}
	need := channel - b.channel + 2 + len(tx) + rxLen + 1
	if b.pos+need > PollControl {
		return 0, ErrBlockFull
	}
	for ; b.channel < channel; b.channel++ {
		b.Data[b.pos] = PollSkip
		b.pos++
	}
	off := b.pos
	b.Data[off] = byte(len(tx))
	b.Data[off+1] = byte(rxLen)
	copy(b.Data[off+2:], tx)
	for i := 0; i < rxLen; i++ {
		b.Data[off+2+len(tx)+i] = PollPad
	}
	b.pos = off + 2 + len(tx) + rxLen
	b.Data[b.pos] = PollEnd
	b.channel++
	return off, nil
}

// Reply returns the reply bytes of the command at off. ok is false when the
// PIF flagged the channel as empty.
func (b *PollBlock) Reply(off int) (reply []byte, ok bool) {
	txLen := int(b.Data[off] & PollLenMask)
	rxByte := b.Data[off+1]
	rxLen := int(rxByte & PollLenMask)
	start := off + 2 + txLen
	if start+rxLen > PollControl {
		return nil, false
	}
	reply = make([]byte, rxLen)
	copy(reply, b.Data[start:start+rxLen])
	return reply, rxByte&PollNoReply == 0
}

// Walk visits every command in the block the way the PIF does. fn fills rx
// and reports whether a device answered; unanswered commands get the
// no-reply flag.
func (b *PollBlock) Walk(fn func(channel int, tx, rx []byte) bool) {
	channel := 0
	for i := 0; i < PollControl; {
		switch b.Data[i] {
		case PollEnd:
			return
		case PollSkip:
			channel++
			i++
			continue
		case PollPad:
			i++
			continue
		}
		txLen := int(b.Data[i] & PollLenMask)
		rxLen := int(b.Data[i+1] & PollLenMask)
		start := i + 2
		if start+txLen+rxLen > PollControl {
			return
		}
		tx := b.Data[start : start+txLen]
		rx := b.Data[start+txLen : start+txLen+rxLen]
		if channel >= PollChannels || !fn(channel, tx, rx) {
			b.Data[i+1] |= PollNoReply
		}
		channel++
		i = start + txLen + rxLen
	}
}

// Bytes returns the raw block.
func (b *PollBlock) Bytes() []byte {
	return b.Data[:]
}

// SetBytes replaces the raw block contents, keeping the command layout so
// Reply offsets stay valid.
func (b *PollBlock) SetBytes(data []byte) {
	copy(b.Data[:], data)
}
