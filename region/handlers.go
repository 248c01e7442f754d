package region

import "github.com/risor-io/unwind/bytecode"

// Handler is the record kept for each protected region that has been
// entered and not yet exited on a frame.
type Handler struct {
	// Finally is the region's finally entry, if it has one.
	Finally bytecode.Address

	// StackDepth is the value-stack depth when the region was entered. The
	// dispatch loop restores it before running a catch or finally body.
	StackDepth int
}

// HandlerStack is a frame's stack of active protected regions.
type HandlerStack struct {
	handlers []Handler
}

// Push adds a handler for a newly entered region.
func (s *HandlerStack) Push(h Handler) {
	s.handlers = append(s.handlers, h)
}

// Pop removes and returns the innermost handler.
func (s *HandlerStack) Pop() (Handler, bool) {
	n := len(s.handlers)
	if n == 0 {
		return Handler{}, false
	}
	h := s.handlers[n-1]
	s.handlers = s.handlers[:n-1]
	return h, true
}

// Top returns the innermost handler without removing it.
func (s *HandlerStack) Top() (Handler, bool) {
	n := len(s.handlers)
	if n == 0 {
		return Handler{}, false
	}
	return s.handlers[n-1], true
}

// Depth returns the number of active regions.
func (s *HandlerStack) Depth() int {
	return len(s.handlers)
}

// IsEmpty is true when no region is active.
func (s *HandlerStack) IsEmpty() bool {
	return len(s.handlers) == 0
}

func (s *HandlerStack) reset() {
	s.handlers = s.handlers[:0]
}
