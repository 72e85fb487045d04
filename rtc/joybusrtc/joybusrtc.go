// Package joybusrtc drives the cartridge RTC on the Joybus (the serial
// controller bus), in blocking and callback driven forms.
//
// Every block write is followed by a settle delay: several RTC
// reimplementations do not report completion through the status byte.
package joybusrtc

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"rtc64/core"
	"rtc64/joybus"
	"rtc64/protocol"
)

// Identifier is the device ID an RTC reports to the identify command.
const Identifier = 0x1000

// DefaultSettleMs is the wait after every block write.
const DefaultSettleMs = 20

// DetectState is the memoized result of RTC detection.
type DetectState int32

const (
	DetectInit DetectState = iota
	DetectPending
	Detected
	NotDetected
)

func (s DetectState) String() string {
	switch s {
	case DetectInit:
		return "init"
	case DetectPending:
		return "pending"
	case Detected:
		return "detected"
	case NotDetected:
		return "not-detected"
	}
	return "invalid"
}

// Driver is the RTC on channel Port of a Joybus transport.
type Driver struct {
	// Cart is the flash cartridge in use. Some never accept time writes.
	Cart CartType
	// SettleMs is the delay after each block write.
	SettleMs uint32
	// Port is the Joybus channel of the cartridge.
	Port int

	t      joybus.Transport
	detect atomic.Int32

	mu      sync.Mutex
	waiters []func(bool)
}

func New(t joybus.Transport) *Driver {
	return &Driver{
		SettleMs: DefaultSettleMs,
		Port:     joybus.CartPort,
		t:        t,
	}
}

// DetectState returns the current detection state.
func (d *Driver) DetectState() DetectState {
	return DetectState(d.detect.Load())
}

func (d *Driver) detected() bool {
	return d.DetectState() == Detected
}

func (d *Driver) settle() {
	core.WaitMs(d.SettleMs)
}

func (d *Driver) command(send []byte, reply int) joybus.Command {
	return joybus.Command{Port: d.Port, Send: send, Reply: reply}
}

// exec runs one command. Transport failures are logged and read as an
// all-zero reply.
func (d *Driver) exec(c joybus.Command) []byte {
	reply, err := joybus.Exec(d.t, c)
	return d.replyOrZero(c, reply, err)
}

func (d *Driver) replyOrZero(c joybus.Command, reply []byte, err error) []byte {
	if err != nil {
		log.Error().Err(err).Uint8("cmd", c.Send[0]).Msg("joybusrtc: command failed")
		return make([]byte, c.Reply)
	}
	return reply
}

func identifyCmd() []byte { return []byte{protocol.CmdIdentify} }

func readCmd(b Block) []byte { return []byte{protocol.CmdReadBlock, byte(b)} }

func writeCmd(b Block, data [BlockSize]byte) []byte {
	return append([]byte{protocol.CmdWriteBlock, byte(b)}, data[:]...)
}

func parseIdentify(reply []byte) (uint16, Status) {
	return uint16(reply[0])<<8 | uint16(reply[1]), Status(reply[2])
}

func parseRead(reply []byte) ([BlockSize]byte, Status) {
	var data [BlockSize]byte
	copy(data[:], reply[:BlockSize])
	return data, Status(reply[BlockSize])
}

func (d *Driver) identify() (uint16, Status) {
	return parseIdentify(d.exec(d.command(identifyCmd(), 3)))
}

// ReadBlock reads one block and the status byte.
func (d *Driver) ReadBlock(b Block) ([BlockSize]byte, Status) {
	return parseRead(d.exec(d.command(readCmd(b), BlockSize+1)))
}

// WriteBlock writes one block and returns the status byte. The caller
// owns the settle delay.
func (d *Driver) WriteBlock(b Block, data [BlockSize]byte) Status {
	return Status(d.exec(d.command(writeCmd(b, data), 1))[0])
}

// Detect reports whether an RTC answers on the cartridge port. The result
// is probed once and kept for the life of the driver.
func (d *Driver) Detect() bool {
	if d.detect.CompareAndSwap(int32(DetectInit), int32(DetectPending)) {
		d.startDetect()
	}
	core.SpinUntil(func() bool { return d.DetectState() != DetectPending })
	return d.detected()
}

// IsStopped reports the stopped flag from a fresh identify.
func (d *Driver) IsStopped() bool {
	_, status := d.identify()
	return status.Stopped()
}

// SetStopped halts or restarts the RTC. Nothing is written when the stop
// bit already matches.
func (d *Driver) SetStopped(stop bool) {
	data, _ := d.ReadBlock(BlockControl)
	control := ControlBlock(data)
	if control.Stop() == stop {
		return
	}
	control.SetStop(stop)
	d.WriteBlock(BlockControl, control)
	d.settle()
}

// ReadTime returns the RTC time, or 0 when there is no RTC or it was
// never set.
func (d *Driver) ReadTime() int64 {
	if !d.Detect() {
		return 0
	}
	data, _ := d.ReadBlock(BlockTime)
	return DecodeTime(data)
}

// SetTime writes ts to the RTC. True means the RTC accepted the stop
// request and the write sequence completed; whether the value stuck is
// only visible by reading it back.
func (d *Driver) SetTime(ts int64) bool {
	if !d.Detect() {
		return false
	}
	if !d.Cart.writesTime() {
		log.Warn().Stringer("cart", d.Cart).Msg("joybusrtc: cart does not support rtc writes")
		return false
	}

	data, _ := d.ReadBlock(BlockControl)
	control := ControlBlock(data)
	control.SetStop(true)
	d.WriteBlock(BlockControl, control)
	d.settle()

	if !d.IsStopped() {
		log.Warn().Msg("joybusrtc: rtc did not stop, writes unsupported")
		return false
	}

	d.WriteBlock(BlockTime, EncodeTime(ts))
	d.settle()

	control.SetStop(false)
	d.WriteBlock(BlockControl, control)
	d.settle()
	return true
}
