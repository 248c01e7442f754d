package vm

import (
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/region"
)

const (
	// DefaultFrameLocals is the number of local variables that can be stored
	// directly in the frame's fixed storage array, avoiding heap allocation.
	DefaultFrameLocals = 8

	// MinExtendedLocalsCapacity is the minimum capacity allocated for extended
	// locals when heap allocation is needed.
	MinExtendedLocalsCapacity = 32
)

// scopeRecord is one entry of a frame's live scope list. It only remembers
// where it was pushed; what a scope holds is up to the language above.
type scopeRecord struct {
	pushedAt int
}

// scopeList is the frame's live scope list. The region controller shortens
// it through Truncate when markers are popped.
type scopeList struct {
	records []scopeRecord
}

func (s *scopeList) push(ip int) {
	s.records = append(s.records, scopeRecord{pushedAt: ip})
}

func (s *scopeList) Len() int {
	return len(s.records)
}

func (s *scopeList) Truncate(n int) {
	for i := n; i < len(s.records); i++ {
		s.records[i] = scopeRecord{}
	}
	s.records = s.records[:n]
}

func (s *scopeList) reset() {
	s.records = s.records[:0]
}

var _ region.ScopeList = (*scopeList)(nil)

type frame struct {
	returnAddr     int
	returnSp       int
	callSiteIP     int // IP of the call instruction in the caller's code (for stack traces)
	localsCount    uint16
	fn             *bytecode.Function
	code           *code
	storage        [DefaultFrameLocals]any
	locals         []any
	extendedLocals []any

	// Per-frame region state. Frames never share these stacks.
	scopes scopeList
	region region.State
}

func (f *frame) ActivateCode(code *code) {
	f.code = code
	f.fn = nil
	f.returnAddr = 0
	f.returnSp = -1
	f.callSiteIP = 0
	f.localsCount = uint16(code.LocalCount())
	f.scopes.reset()
	f.region.Reset(&f.scopes)

	// Decide where to store local variables. If the frame storage has enough
	// space, use that. Otherwise, reuse extendedLocals if large enough, or
	// allocate a new slice.
	if f.localsCount > DefaultFrameLocals {
		if cap(f.extendedLocals) >= int(f.localsCount) {
			f.extendedLocals = f.extendedLocals[:f.localsCount]
			for i := range f.extendedLocals {
				f.extendedLocals[i] = nil
			}
		} else {
			allocSize := int(f.localsCount)
			if allocSize < MinExtendedLocalsCapacity {
				allocSize = MinExtendedLocalsCapacity
			}
			f.extendedLocals = make([]any, f.localsCount, allocSize)
		}
		f.locals = f.extendedLocals
	} else {
		for i := uint16(0); i < f.localsCount; i++ {
			f.storage[i] = nil
		}
		f.extendedLocals = nil
		f.locals = f.storage[:f.localsCount]
	}
}

func (f *frame) ActivateFunction(fn *bytecode.Function, code *code, returnAddr, returnSp int, localValues []any) {
	f.ActivateCode(code)
	f.fn = fn
	// Save the instruction and stack pointers of the caller
	f.returnAddr = returnAddr
	f.returnSp = returnSp
	// The caller's ip has already moved past the CALL and its operand
	f.callSiteIP = returnAddr - 1
	copy(f.locals, localValues)
}

func (f *frame) Locals() []any {
	return f.locals
}

// ScopeDepth is the number of live scope records in the frame.
func (f *frame) ScopeDepth() int {
	return f.scopes.Len()
}
