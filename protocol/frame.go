package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrShortFrame means more input is needed before a frame completes.
	ErrShortFrame = errors.New("incomplete frame")
	ErrBadFrame   = errors.New("malformed frame")
	ErrCRC        = errors.New("frame crc mismatch")
)

// EncodeFrame appends one adapter frame carrying payload to out:
// len, seq, payload, crc16 (big endian), sync.
func EncodeFrame(out *ScratchOutput, seq uint8, payload []byte) {
	cursor := out.CurPosition()
	out.Output([]byte{0, FrameDest | seq&FrameSeqMask})
	out.Output(payload)

	frameLen := len(out.DataSince(cursor)) + FrameTrailerSize
	out.Update(cursor+FramePositionLen, uint8(frameLen))

	crc := CRC16(out.DataSince(cursor))
	out.Output([]byte{
		uint8(crc >> 8),
		uint8(crc),
		FrameSyncByte,
	})
}

// NextSeq returns the sequence number following seq.
func NextSeq(seq uint8) uint8 {
	return (seq + 1) & FrameSeqMask
}

// FrameDecoder reassembles adapter frames from a byte stream. After a
// malformed frame it drops input up to the next sync byte.
type FrameDecoder struct {
	in *FifoBuffer
}

func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{in: NewFifoBuffer(FrameSize * 4)}
}

// Feed queues received bytes and returns how many were accepted.
func (d *FrameDecoder) Feed(data []byte) int {
	return d.in.Write(data)
}

// Buffered reports how many bytes are waiting.
func (d *FrameDecoder) Buffered() int {
	return d.in.Available()
}

// Reset discards all buffered input.
func (d *FrameDecoder) Reset() {
	d.in.Reset()
}

// Next pops the next complete frame. ErrShortFrame means wait for more
// input; ErrBadFrame and ErrCRC mean a frame was discarded and Next may be
// called again.
func (d *FrameDecoder) Next() (seq uint8, payload []byte, err error) {
	data := d.in.Data()
	if len(data) < FrameHeaderSize {
		return 0, nil, ErrShortFrame
	}

	frameLen := int(data[FramePositionLen])
	if frameLen < FrameHeaderSize+FrameTrailerSize || frameLen > FrameSize {
		d.resync(data)
		return 0, nil, fmt.Errorf("%w: length %d", ErrBadFrame, frameLen)
	}
	rawSeq := data[FramePositionSeq]
	if rawSeq&^FrameSeqMask != FrameDest {
		d.resync(data)
		return 0, nil, fmt.Errorf("%w: seq 0x%02x", ErrBadFrame, rawSeq)
	}
	if len(data) < frameLen {
		return 0, nil, ErrShortFrame
	}
	if data[frameLen-FrameTrailerSync] != FrameSyncByte {
		d.resync(data)
		return 0, nil, fmt.Errorf("%w: missing sync", ErrBadFrame)
	}

	want := uint16(data[frameLen-FrameTrailerCRC])<<8 | uint16(data[frameLen-FrameTrailerCRC+1])
	if got := CRC16(data[:frameLen-FrameTrailerSize]); got != want {
		d.in.Pop(frameLen)
		return 0, nil, fmt.Errorf("%w: got 0x%04x want 0x%04x", ErrCRC, got, want)
	}

	payload = make([]byte, frameLen-FrameHeaderSize-FrameTrailerSize)
	copy(payload, data[FrameHeaderSize:frameLen-FrameTrailerSize])
	d.in.Pop(frameLen)
	return rawSeq & FrameSeqMask, payload, nil
}

func (d *FrameDecoder) resync(data []byte) {
	if i := bytes.IndexByte(data, FrameSyncByte); i >= 0 {
		d.in.Pop(i + 1)
		return
	}
	d.in.Pop(len(data))
}
