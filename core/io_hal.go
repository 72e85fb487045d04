package core

// IODriver is the abstract PI bus register interface. Addresses are physical
// bus addresses; every access is a 32-bit word.
type IODriver interface {
	// Read32 reads a 32-bit word from the bus.
	Read32(addr uint32) uint32

	// Write32 writes a 32-bit word to the bus.
	Write32(addr uint32, value uint32)
}

// Global singleton used by core code.
var ioDriver IODriver

// SetIODriver is called by target-specific code to register its driver.
func SetIODriver(d IODriver) {
	ioDriver = d
}

// MustIO returns the configured driver or panics if missing.
func MustIO() IODriver {
	if ioDriver == nil {
		panic("IO driver not configured")
	}
	return ioDriver
}
