package twowire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtc64/core/coretest"
	"rtc64/emu"
)

var chipStart = time.Date(2024, time.March, 9, 13, 45, 30, 0, time.UTC)

// recorder logs every line state the master drives.
type recorder struct {
	writes [][2]bool
}

func (r *recorder) Write(clock, data bool) { r.writes = append(r.writes, [2]bool{clock, data}) }
func (r *recorder) Read(clock bool) bool {
	r.writes = append(r.writes, [2]bool{clock, true})
	return true
}

func TestStartStopFraming(t *testing.T) {
	rec := &recorder{}
	bus := New(rec, 0)

	bus.start()
	bus.stop()
	assert.Equal(t, [][2]bool{{true, true}, {true, false}, {true, false}, {true, true}}, rec.writes)
}

func TestWriteByteClocksMSBFirst(t *testing.T) {
	rec := &recorder{}
	bus := New(rec, 0)

	bus.writeByte(0x80)
	require.Len(t, rec.writes, 24)
	assert.Equal(t, [2]bool{true, true}, rec.writes[1], "first bit is the MSB")
	assert.Equal(t, [2]bool{true, false}, rec.writes[4])
}

func TestReadBlockFromChip(t *testing.T) {
	coretest.FakeClock(t)
	chip := emu.NewChipRTC(chipStart)
	bus := New(chip, 0)

	buf := make([]byte, 8)
	require.True(t, bus.ReadBlock(emu.ChipAddress, 0, buf))
	want := chip.Registers()
	assert.Equal(t, want[:], buf)
	assert.Equal(t, byte(0x30), buf[0])
	assert.Equal(t, byte(0x45), buf[1])
}

func TestReadBlockAtOffset(t *testing.T) {
	coretest.FakeClock(t)
	chip := emu.NewChipRTC(chipStart)
	bus := New(chip, 0)

	buf := make([]byte, 3)
	bus.ReadBlock(emu.ChipAddress, 4, buf)
	assert.Equal(t, []byte{0x09, 0x03, 0x24}, buf)
}

func TestWriteBlockSetsChip(t *testing.T) {
	coretest.FakeClock(t)
	chip := emu.NewChipRTC(chipStart)
	bus := New(chip, 0)

	// 2031-12-25 08:15:00, century bit set
	regs := []byte{0x00, 0x15, 0xC8, 0x05, 0x25, 0x12, 0x31, 0x00}
	require.True(t, bus.WriteBlock(emu.ChipAddress, 0, regs))
	assert.Equal(t, time.Date(2031, time.December, 25, 8, 15, 0, 0, time.UTC), chip.Now())
}

func TestWrongSlaveReadsOnes(t *testing.T) {
	coretest.FakeClock(t)
	chip := emu.NewChipRTC(chipStart)
	bus := New(chip, 0)

	buf := make([]byte, 2)
	bus.ReadBlock(0x50, 0, buf)
	assert.Equal(t, []byte{0xFF, 0xFF}, buf)
}

func TestTxSatisfiesI2C(t *testing.T) {
	coretest.FakeClock(t)
	chip := emu.NewChipRTC(chipStart)
	bus := New(chip, 0)

	r := make([]byte, 1)
	require.NoError(t, bus.Tx(emu.ChipAddress, []byte{6}, r))
	assert.Equal(t, byte(0x24), r[0])

	require.NoError(t, bus.Tx(emu.ChipAddress, []byte{7, 0x80}, nil))
	assert.Equal(t, byte(0x80), chip.Registers()[7])

	assert.ErrorIs(t, bus.Tx(emu.ChipAddress, nil, r), ErrNoRegister)
	assert.NoError(t, bus.Tx(emu.ChipAddress, nil, nil))
}

func TestGPIOLinesThroughPIBus(t *testing.T) {
	coretest.FakeClock(t)
	chip := emu.NewChipRTC(chipStart)
	lines := &GPIOLines{IO: &emu.PIBus{Chip: chip}, Addr: GPIOAddr}
	bus := New(lines, 0)

	buf := make([]byte, 8)
	bus.ReadBlock(emu.ChipAddress, 0, buf)
	want := chip.Registers()
	assert.Equal(t, want[:], buf)
}
