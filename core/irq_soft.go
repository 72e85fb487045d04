package core

import "sync"

type softHandler struct {
	id      HandlerID
	handler InterruptHandler
}

// SoftInterrupts is an InterruptController whose lines are raised by
// software. Hosted builds and emulated devices use it in place of the
// console's MIPS interface.
type SoftInterrupts struct {
	mu       sync.Mutex
	handlers [numInterruptLines][]softHandler
	enabled  [numInterruptLines]bool
	nextID   HandlerID
}

// NewSoftInterrupts creates a controller with every line masked.
func NewSoftInterrupts() *SoftInterrupts {
	return &SoftInterrupts{}
}

// Register adds a handler for the line.
func (s *SoftInterrupts) Register(line InterruptLine, handler InterruptHandler) HandlerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.handlers[line] = append(s.handlers[line], softHandler{id: s.nextID, handler: handler})
	return s.nextID
}

// Unregister removes a handler. Unknown IDs are ignored.
func (s *SoftInterrupts) Unregister(line InterruptLine, id HandlerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := s.handlers[line]
	for i, h := range hs {
		if h.id == id {
			s.handlers[line] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// SetEnabled masks or unmasks the line.
func (s *SoftInterrupts) SetEnabled(line InterruptLine, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[line] = enabled
}

// Enabled reports whether the line is unmasked.
func (s *SoftInterrupts) Enabled(line InterruptLine) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[line]
}

// Raise runs every handler registered on an unmasked line and reports
// whether any handler ran. Handlers run on the caller's goroutine without
// the controller lock held, so they may call back into devices.
func (s *SoftInterrupts) Raise(line InterruptLine) bool {
	s.mu.Lock()
	if !s.enabled[line] {
		s.mu.Unlock()
		return false
	}
	hs := make([]softHandler, len(s.handlers[line]))
	copy(hs, s.handlers[line])
	s.mu.Unlock()

	for _, h := range hs {
		h.handler()
	}
	return len(hs) > 0
}
