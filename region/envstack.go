package region

import "github.com/risor-io/unwind/bytecode"

// Marker is one entry of a frame's environment stack. It counts the scope
// records pushed while it was the innermost marker and says whether it
// delimits a protected region.
//
// Apart from the scope count, a marker is never modified after it is
// pushed.
type Marker struct {
	scopes  int
	region  bool
	finally bool

	catchAddr   bytecode.Address
	finallyAddr bytecode.Address

	// catching is set on the region boundary pushed around a catch body, so
	// a payload thrown from it is routed to the finally instead.
	catching bool

	// The first marker pushed for a region records the completion that was
	// live when the region was entered.
	restore    Completion
	hasRestore bool
}

// BlockMarker returns a plain marker that is not a region boundary.
func BlockMarker() Marker {
	return Marker{}
}

func regionMarker(catch, finally bytecode.Address) Marker {
	return Marker{region: true, catchAddr: catch, finallyAddr: finally}
}

func catchBodyMarker(finally bytecode.Address) Marker {
	return Marker{region: true, catching: true, finallyAddr: finally}
}

func finallyMarker(finally bytecode.Address) Marker {
	return Marker{finally: true, finallyAddr: finally}
}

func (m Marker) withRestore(c Completion) Marker {
	m.restore = c
	m.hasRestore = true
	return m
}

// ScopeCount is the number of scope records discarded when this marker is
// popped.
func (m Marker) ScopeCount() int { return m.scopes }

// IsRegionBoundary is true for the marker pushed at a try's start (or around
// its catch body).
func (m Marker) IsRegionBoundary() bool { return m.region }

// IsFinallyBoundary is true for the marker pushed before a region boundary
// when the region has a finally.
func (m Marker) IsFinallyBoundary() bool { return m.finally }

// IsBoundary is true for region and finally boundaries.
func (m Marker) IsBoundary() bool { return m.region || m.finally }

// Catch returns the catch address of a region boundary whose catch has not
// been entered yet.
func (m Marker) Catch() bytecode.Address { return m.catchAddr }

// Finally returns the finally address carried by the marker, if any.
func (m Marker) Finally() bytecode.Address { return m.finallyAddr }

// InCatch is true for the region boundary of a catch body.
func (m Marker) InCatch() bool { return m.catching }

// EnvStack is a frame's stack of scope markers.
type EnvStack struct {
	markers    []Marker
	boundaries int
}

// Len returns the number of markers.
func (s *EnvStack) Len() int {
	return len(s.markers)
}

// Boundaries returns the number of region and finally boundaries.
func (s *EnvStack) Boundaries() int {
	return s.boundaries
}

// At returns the marker at index i, counted from the bottom.
func (s *EnvStack) At(i int) Marker {
	return s.markers[i]
}

// Push adds m on top of the stack.
func (s *EnvStack) Push(m Marker) {
	if m.IsBoundary() {
		s.boundaries++
	}
	s.markers = append(s.markers, m)
}

// Pop removes and returns the top marker.
func (s *EnvStack) Pop() (Marker, bool) {
	n := len(s.markers)
	if n == 0 {
		return Marker{}, false
	}
	m := s.markers[n-1]
	s.markers[n-1] = Marker{}
	s.markers = s.markers[:n-1]
	if m.IsBoundary() {
		s.boundaries--
	}
	return m, true
}

// Top returns the top marker without removing it.
func (s *EnvStack) Top() (Marker, bool) {
	n := len(s.markers)
	if n == 0 {
		return Marker{}, false
	}
	return s.markers[n-1], true
}

// innermostRegion returns the topmost region boundary.
func (s *EnvStack) innermostRegion() (Marker, bool) {
	for i := len(s.markers) - 1; i >= 0; i-- {
		if s.markers[i].region {
			return s.markers[i], true
		}
	}
	return Marker{}, false
}

// AddScope counts one more scope record against the top marker.
func (s *EnvStack) AddScope() {
	if len(s.markers) == 0 {
		s.Push(BlockMarker())
	}
	s.markers[len(s.markers)-1].scopes++
}

// RemoveScope uncounts one scope record from the top marker.
func (s *EnvStack) RemoveScope() error {
	n := len(s.markers)
	if n == 0 || s.markers[n-1].scopes == 0 {
		return ErrScopeUnderflow
	}
	s.markers[n-1].scopes--
	return nil
}

// TotalScopes returns the sum of all scope counts.
func (s *EnvStack) TotalScopes() int {
	total := 0
	for _, m := range s.markers {
		total += m.scopes
	}
	return total
}

func (s *EnvStack) reset() {
	for i := range s.markers {
		s.markers[i] = Marker{}
	}
	s.markers = s.markers[:0]
	s.boundaries = 0
}
