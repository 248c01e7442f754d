package region

// ScopeList is the frame's live list of scope records, owned by the caller.
// The region code only ever shortens it.
type ScopeList interface {
	Len() int
	Truncate(n int)
}

// BaseDepth is the environment-stack length of a frame outside every block
// and region. A return unwinds to it.
const BaseDepth = 1

// State holds the per-frame stacks the controller drives. A State belongs
// to exactly one frame and is never shared.
type State struct {
	Env        EnvStack
	Handlers   HandlerStack
	Completion Completion

	scopes ScopeList
}

// NewState returns the state for a fresh frame whose scope records live in
// scopes.
func NewState(scopes ScopeList) *State {
	st := &State{}
	st.Reset(scopes)
	return st
}

// Reset prepares st for reuse by a new frame, keeping allocated capacity.
func (st *State) Reset(scopes ScopeList) {
	st.Env.reset()
	st.Handlers.reset()
	st.Env.Push(BlockMarker())
	st.Completion = None{}
	st.scopes = scopes
}

// Scopes returns the frame's live scope list.
func (st *State) Scopes() ScopeList {
	return st.scopes
}

// Snapshot is a point-in-time summary of a State, used for tracing and for
// checking that stacks round-trip.
type Snapshot struct {
	Markers    int
	Boundaries int
	Handlers   int
	Scopes     int
	Completion Kind
}

// Snapshot summarizes the current depths of st.
func (st *State) Snapshot() Snapshot {
	scopes := 0
	if st.scopes != nil {
		scopes = st.scopes.Len()
	}
	return Snapshot{
		Markers:    st.Env.Len(),
		Boundaries: st.Env.Boundaries(),
		Handlers:   st.Handlers.Depth(),
		Scopes:     scopes,
		Completion: KindOf(st.Completion),
	}
}

// Action tells the dispatch loop what to do after a controller operation.
type Action uint8

const (
	// ActionFallThrough continues with the next instruction.
	ActionFallThrough Action = iota
	// ActionJump moves the instruction pointer to Target.Address.
	ActionJump
	// ActionReturn returns Target.Value from the current frame.
	ActionReturn
	// ActionPropagate rethrows Target.Value in the calling frame.
	ActionPropagate
)

func (a Action) String() string {
	switch a {
	case ActionFallThrough:
		return "fallthrough"
	case ActionJump:
		return "jump"
	case ActionReturn:
		return "return"
	case ActionPropagate:
		return "propagate"
	default:
		return "unknown"
	}
}

// Target is the control transfer computed by the controller. The dispatch
// loop performs it; the controller never moves the instruction pointer.
type Target struct {
	Action  Action
	Address int
	Value   any

	// Bind is set when Value must be pushed for a catch body.
	Bind bool

	// StackDepth is the value-stack depth to restore before continuing, or
	// -1 to leave the stack alone.
	StackDepth int
}

var fallThrough = Target{Action: ActionFallThrough, StackDepth: -1}
