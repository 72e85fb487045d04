// Package protocol holds the wire codecs shared by the RTC drivers and the
// host tooling: BCD digits, Joybus commands and PIF poll blocks, and the
// framed link to a USB Joybus adapter.
package protocol

// Adapter frame layout
const (
	FrameHeaderSize  = 2 // len + seq
	FrameTrailerSize = 3 // crc16 + sync
	FrameSize        = FrameHeaderSize + PollBlockSize + FrameTrailerSize

	FramePositionLen = 0
	FramePositionSeq = 1

	FrameTrailerCRC  = 3
	FrameTrailerSync = 1

	FrameDest     = 0x10
	FrameSeqMask  = 0x0F
	FrameSyncByte = 0x7E
)
