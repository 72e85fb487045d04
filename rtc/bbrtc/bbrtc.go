// Package bbrtc drives the RTC chip fitted to the iQue Player, reached over
// the two-wire bus on the PI GPIO register.
package bbrtc

import (
	"time"

	"github.com/rs/zerolog/log"
	"tinygo.org/x/drivers"

	"rtc64/core"
	"rtc64/protocol"
)

const (
	// Address is the chip's slave address.
	Address = 0x68

	regBase  = 0
	regCount = 8

	// YearPivot splits two-digit years: yy >= 96 is 19yy, otherwise 20yy.
	YearPivot = 96
)

// State is a dump of the chip's register block.
type State struct {
	Secs    uint8 // 0-59
	Mins    uint8 // 0-59
	Hours   uint8 // 0-23
	Weekday uint8 // 1-7, Sunday first
	Day     uint8 // 1-31
	Month   uint8 // 1-12
	Year    uint8 // 0-99

	Stop          bool
	OscFail       bool
	Century       bool
	CenturyEnable bool
	OutputLevel   bool
}

// Device is the chip RTC on a two-wire bus.
type Device struct {
	bus     drivers.I2C
	Address uint8
}

func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, Address: Address}
}

// Present reports whether this console carries the chip.
func (d *Device) Present() bool {
	return core.IsBBPlayer()
}

func (d *Device) readRegisters() ([regCount]byte, bool) {
	var data [regCount]byte
	if err := d.bus.Tx(uint16(d.Address), []byte{regBase}, data[:]); err != nil {
		log.Error().Err(err).Msg("bbrtc: register read failed")
		return data, false
	}
	return data, true
}

// ReadState reads and decodes the register block.
func (d *Device) ReadState() (State, bool) {
	data, ok := d.readRegisters()
	if !ok {
		return State{}, false
	}
	return decodeState(data), true
}

// WriteState encodes s into the register block and writes it.
func (d *Device) WriteState(s State) bool {
	data := encodeState(s)
	w := make([]byte, 0, regCount+1)
	w = append(w, regBase)
	w = append(w, data[:]...)
	if err := d.bus.Tx(uint16(d.Address), w, nil); err != nil {
		log.Error().Err(err).Msg("bbrtc: register write failed")
		return false
	}
	return true
}

func decodeState(data [regCount]byte) State {
	return State{
		Secs:    uint8(protocol.BCDDecode(data[0] & 0x7F)),
		Mins:    uint8(protocol.BCDDecode(data[1] & 0x7F)),
		Hours:   uint8(protocol.BCDDecode(data[2] & 0x3F)),
		Weekday: uint8(protocol.BCDDecode(data[3] & 0x07)),
		Day:     uint8(protocol.BCDDecode(data[4] & 0x3F)),
		Month:   uint8(protocol.BCDDecode(data[5] & 0x1F)),
		Year:    uint8(protocol.BCDDecode(data[6])),

		Stop:          data[0]&0x80 != 0,
		OscFail:       data[1]&0x80 != 0,
		Century:       data[2]&0x40 != 0,
		CenturyEnable: data[2]&0x80 != 0,
		OutputLevel:   data[7]&0x80 != 0,
	}
}

func flag(v bool, mask byte) byte {
	if v {
		return mask
	}
	return 0
}

func encodeState(s State) [regCount]byte {
	return [regCount]byte{
		protocol.BCDEncode(int(s.Secs)) | flag(s.Stop, 0x80),
		protocol.BCDEncode(int(s.Mins)) | flag(s.OscFail, 0x80),
		protocol.BCDEncode(int(s.Hours)) | flag(s.Century, 0x40) | flag(s.CenturyEnable, 0x80),
		protocol.BCDEncode(int(s.Weekday)) & 0x07,
		protocol.BCDEncode(int(s.Day)),
		protocol.BCDEncode(int(s.Month)),
		protocol.BCDEncode(int(s.Year)),
		flag(s.OutputLevel, 0x80),
	}
}

// Time converts the calendar fields of s to a UNIX timestamp.
func (s State) Time() int64 {
	year := 2000 + int(s.Year)
	if s.Year >= YearPivot {
		year = 1900 + int(s.Year)
	}
	return time.Date(year, time.Month(s.Month), int(s.Day),
		int(s.Hours), int(s.Mins), int(s.Secs), 0, time.UTC).Unix()
}

// GetTime returns the chip time as a UNIX timestamp, or 0 when the chip
// cannot be read.
func (d *Device) GetTime() int64 {
	s, ok := d.ReadState()
	if !ok {
		return 0
	}
	return s.Time()
}

// SetTime writes ts to the chip with the oscillator running and reads it
// back. The output pin level is preserved.
func (d *Device) SetTime(ts int64) bool {
	cur, ok := d.ReadState()
	if !ok {
		return false
	}
	t := time.Unix(ts, 0).UTC()
	next := State{
		Secs:          uint8(t.Second()),
		Mins:          uint8(t.Minute()),
		Hours:         uint8(t.Hour()),
		Weekday:       uint8(t.Weekday()) + 1,
		Day:           uint8(t.Day()),
		Month:         uint8(t.Month()),
		Year:          uint8(t.Year() % 100),
		Century:       t.Year() >= 2000,
		CenturyEnable: true,
		OutputLevel:   cur.OutputLevel,
	}
	if !d.WriteState(next) {
		return false
	}

	got, ok := d.ReadState()
	if !ok {
		return false
	}
	// The chip may tick over a second between the write and the readback.
	if drift := got.Time() - ts; got.Stop || drift < 0 || drift > 1 {
		log.Warn().Int64("ts", ts).Int64("readback", got.Time()).Msg("bbrtc: write not retained")
		return false
	}
	return true
}
