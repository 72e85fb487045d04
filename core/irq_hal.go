package core

// InterruptLine identifies a console interrupt source.
type InterruptLine uint8

const (
	LineSP InterruptLine = iota
	LineSI
	LineAI
	LineVI
	LinePI
	LineDP
	LineCart  // devices on the PI (cartridge) bus, e.g. the disk drive ASIC
	LineReset // pre-NMI reset button
	numInterruptLines
)

// InterruptHandler runs in interrupt context. It must not block.
type InterruptHandler func()

// HandlerID identifies a registered handler so it can be removed again.
type HandlerID uint32

// InterruptController is the abstract interrupt controller that drivers use.
type InterruptController interface {
	// Register adds a handler for the line. Handlers on the same line run in
	// registration order.
	Register(line InterruptLine, handler InterruptHandler) HandlerID

	// Unregister removes a handler previously returned by Register.
	Unregister(line InterruptLine, id HandlerID)

	// SetEnabled masks or unmasks the line.
	SetEnabled(line InterruptLine, enabled bool)
}

// Global singleton used by core code.
var interruptController InterruptController

// SetInterruptController is called by target-specific code to register its controller.
func SetInterruptController(c InterruptController) {
	interruptController = c
}

// MustInterrupts returns the configured controller or panics if missing.
func MustInterrupts() InterruptController {
	if interruptController == nil {
		panic("interrupt controller not configured")
	}
	return interruptController
}
