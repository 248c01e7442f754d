package region

import (
	"fmt"

	"github.com/risor-io/unwind/bytecode"
)

// Kind identifies the variant of a Completion.
type Kind uint8

const (
	KindNone Kind = iota
	KindReturn
	KindThrow
	KindBreak
	KindContinue
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindReturn:
		return "return"
	case KindThrow:
		return "throw"
	case KindBreak:
		return "break"
	case KindContinue:
		return "continue"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Completion is the deferred control transfer a finally body resumes when it
// ends. The set of implementations is closed: None, Return, Throw, Break and
// Continue.
type Completion interface {
	Kind() Kind
	completion()
}

// None means the finally body was reached by fallthrough.
type None struct{}

// Return is a deferred return of Value from the current frame.
type Return struct {
	Value any
}

// Throw is a deferred re-throw of Payload.
type Throw struct {
	Payload any
}

// Abort is a thrown payload that no catch clause receives. Dispatching it
// runs the finally body of every region it leaves, then propagates.
type Abort struct {
	Cause error
}

func (a Abort) Error() string {
	if a.Cause == nil {
		return "execution aborted"
	}
	return "execution aborted: " + a.Cause.Error()
}

func (a Abort) Unwrap() error { return a.Cause }

// Break is a deferred jump to the end of a loop. Depth is the length of the
// environment stack at Target.
type Break struct {
	Target bytecode.Address
	Depth  int
}

// Continue is a deferred jump to the head of a loop. Depth is the length of
// the environment stack at Target.
type Continue struct {
	Target bytecode.Address
	Depth  int
}

func (None) Kind() Kind     { return KindNone }
func (Return) Kind() Kind   { return KindReturn }
func (Throw) Kind() Kind    { return KindThrow }
func (Break) Kind() Kind    { return KindBreak }
func (Continue) Kind() Kind { return KindContinue }

func (None) completion()     {}
func (Return) completion()   {}
func (Throw) completion()    {}
func (Break) completion()    {}
func (Continue) completion() {}

// KindOf returns the kind of c, treating nil as None.
func KindOf(c Completion) Kind {
	if c == nil {
		return KindNone
	}
	return c.Kind()
}

// Describe returns a short human readable form of c for logs and traces.
func Describe(c Completion) string {
	switch c := c.(type) {
	case nil, None:
		return "none"
	case Return:
		return fmt.Sprintf("return(%v)", c.Value)
	case Throw:
		return fmt.Sprintf("throw(%v)", c.Payload)
	case Break:
		return fmt.Sprintf("break(%s)", c.Target)
	case Continue:
		return fmt.Sprintf("continue(%s)", c.Target)
	default:
		return fmt.Sprintf("%T", c)
	}
}
