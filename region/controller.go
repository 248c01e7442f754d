package region

import (
	"github.com/risor-io/unwind/bytecode"
	"github.com/rs/zerolog"
)

// Controller drives a frame's environment stack, handler stack and
// completion slot through region entry, region exit, exception dispatch,
// abrupt exits and finally resumption. It holds no per-frame state, so one
// Controller serves every frame of a VM.
type Controller struct {
	log zerolog.Logger
}

// NewController returns a Controller that logs transitions at debug level.
func NewController(log zerolog.Logger) *Controller {
	return &Controller{log: log}
}

func (c *Controller) debug(op string, st *State) *zerolog.Event {
	e := c.log.Debug()
	if !e.Enabled() {
		return e
	}
	snap := st.Snapshot()
	return e.Str("op", op).
		Int("markers", snap.Markers).
		Int("handlers", snap.Handlers).
		Int("scopes", snap.Scopes)
}

// Enter opens a protected region. When the region has a finally, its
// finally boundary is pushed below the region boundary so that unwinding
// out of an inner region still finds it.
func (c *Controller) Enter(st *State, catch, finally bytecode.Address, stackDepth int) {
	live := st.Completion
	if finally.IsPresent() {
		st.Env.Push(finallyMarker(finally).withRestore(live))
		st.Env.Push(regionMarker(catch, finally))
	} else {
		st.Env.Push(regionMarker(catch, finally).withRestore(live))
	}
	st.Completion = None{}
	st.Handlers.Push(Handler{Finally: finally, StackDepth: stackDepth})
	c.debug("enter", st).
		Stringer("catch", catch).
		Stringer("finally", finally).
		Msg("region")
}

// Exit closes the innermost region after its try or catch body completed
// normally. The finally boundary, if any, stays live until EndFinally.
func (c *Controller) Exit(st *State) error {
	if _, ok := st.Handlers.Pop(); !ok {
		return violation("exit region", ErrHandlerUnderflow)
	}
	boundary, err := c.unwindThroughRegion(st)
	if err != nil {
		return violation("exit region", err)
	}
	// Restore rather than clear: a try nested in a finally body must not
	// drop the completion that finally body is still holding.
	st.Completion = restoreOf(boundary)
	c.debug("exit", st).Msg("region")
	return nil
}

// Dispatch routes a thrown payload to the nearest handler of this frame.
// The result is a jump into a catch or finally body, or a propagate signal
// when no handler of this frame applies. An Abort payload skips catch
// bodies.
func (c *Controller) Dispatch(st *State, payload any) (Target, error) {
	_, abort := payload.(Abort)
	for {
		h, ok := st.Handlers.Top()
		if !ok {
			c.debug("propagate", st).Msg("region")
			return Target{Action: ActionPropagate, Value: payload, StackDepth: -1}, nil
		}
		boundary, ok := st.Env.innermostRegion()
		if !ok {
			return Target{}, violation("dispatch", ErrNoRegionBoundary)
		}

		if catch, ok := boundary.catchAddr.Get(); ok && !abort {
			popped, err := c.unwindThroughRegion(st)
			if err != nil {
				return Target{}, violation("dispatch", err)
			}
			marker := catchBodyMarker(h.Finally)
			if popped.hasRestore {
				marker = marker.withRestore(popped.restore)
			}
			st.Env.Push(marker)
			st.Completion = None{}
			c.debug("catch", st).Int("addr", catch).Msg("region")
			return Target{
				Action:     ActionJump,
				Address:    catch,
				Value:      payload,
				Bind:       true,
				StackDepth: h.StackDepth,
			}, nil
		}

		finally, hasFinally := h.Finally.Get()
		if !hasFinally && !boundary.catching && !boundary.catchAddr.IsPresent() {
			return Target{}, violation("dispatch", ErrNoHandler)
		}
		st.Handlers.Pop()
		if _, err := c.unwindThroughRegion(st); err != nil {
			return Target{}, violation("dispatch", err)
		}
		if !hasFinally {
			// The catch already ran and there is nothing left to do in this
			// region. Try the next one out.
			continue
		}
		if err := c.unwindToFinally(st); err != nil {
			return Target{}, violation("dispatch", err)
		}
		st.Completion = Throw{Payload: payload}
		c.debug("finally", st).Int("addr", finally).Str("pending", "throw").Msg("region")
		return Target{Action: ActionJump, Address: finally, StackDepth: h.StackDepth}, nil
	}
}

// Abrupt performs a return, break or continue. Every region between the
// transfer and its target that has a finally runs it first, innermost
// first: the completion is parked in st.Completion and control jumps to the
// finally. EndFinally resumes the transfer from there.
func (c *Controller) Abrupt(st *State, completion Completion) (Target, error) {
	depth := BaseDepth
	var target bytecode.Address
	switch cmp := completion.(type) {
	case Return:
	case Break:
		target, depth = cmp.Target, cmp.Depth
	case Continue:
		target, depth = cmp.Target, cmp.Depth
	default:
		return Target{}, violation("abrupt", ErrBadCompletion)
	}
	if depth < BaseDepth || depth > st.Env.Len() {
		return Target{}, violation("abrupt", ErrDepth)
	}

	stackDepth := -1
	discard := 0
	var restore Completion
	restored := false
	for st.Env.Len() > depth {
		top, _ := st.Env.Pop()
		discard += top.scopes
		if top.hasRestore {
			restore, restored = top.restore, true
		}
		if !top.region {
			// A block, or a finally body being left early.
			continue
		}
		h, ok := st.Handlers.Pop()
		if !ok {
			st.discardScopes(discard)
			return Target{}, violation("abrupt", ErrHandlerUnderflow)
		}
		stackDepth = h.StackDepth
		finally, ok := h.Finally.Get()
		if !ok {
			continue
		}
		st.discardScopes(discard)
		if err := c.unwindToFinally(st); err != nil {
			return Target{}, violation("abrupt", err)
		}
		st.Completion = completion
		c.debug("finally", st).
			Int("addr", finally).
			Stringer("pending", completion.Kind()).
			Msg("region")
		return Target{Action: ActionJump, Address: finally, StackDepth: h.StackDepth}, nil
	}
	st.discardScopes(discard)
	if restored {
		st.Completion = restoreValue(restore)
	}

	if r, ok := completion.(Return); ok {
		return Target{Action: ActionReturn, Value: r.Value, StackDepth: -1}, nil
	}
	addr, ok := target.Get()
	if !ok {
		return Target{}, violation("abrupt", ErrBadCompletion)
	}
	return Target{Action: ActionJump, Address: addr, StackDepth: stackDepth}, nil
}

// EndFinally runs at the normal end of a finally body. It pops the finally
// boundary and resumes whatever completion was deferred, clearing the slot
// first so that a completion recorded by the finally body itself wins.
func (c *Controller) EndFinally(st *State) (Target, error) {
	top, ok := st.Env.Top()
	if !ok || !top.finally {
		return Target{}, violation("end finally", ErrNoFinallyBoundary)
	}
	st.Env.Pop()
	st.discardScopes(top.scopes)
	pending := st.Completion
	st.Completion = restoreOf(top)
	c.debug("end finally", st).Stringer("pending", KindOf(pending)).Msg("region")

	switch p := pending.(type) {
	case nil, None:
		return fallThrough, nil
	case Throw:
		return c.Dispatch(st, p.Payload)
	case Return, Break, Continue:
		return c.Abrupt(st, p)
	default:
		return Target{}, violation("end finally", ErrBadCompletion)
	}
}

// EnterBlock pushes a plain marker, typically for a loop body.
func (c *Controller) EnterBlock(st *State) {
	st.Env.Push(BlockMarker())
}

// ExitBlock pops the plain marker pushed by EnterBlock and discards the
// scopes it counted.
func (c *Controller) ExitBlock(st *State) error {
	top, ok := st.Env.Top()
	if !ok || top.IsBoundary() || st.Env.Len() <= BaseDepth {
		return violation("exit block", ErrBlockMismatch)
	}
	st.Env.Pop()
	st.discardScopes(top.scopes)
	return nil
}

// unwindThroughRegion pops markers up to and including the innermost region
// boundary, which it returns.
func (c *Controller) unwindThroughRegion(st *State) (Marker, error) {
	discard := 0
	defer func() { st.discardScopes(discard) }()
	for {
		m, ok := st.Env.Pop()
		if !ok {
			return Marker{}, ErrNoRegionBoundary
		}
		discard += m.scopes
		if m.region {
			return m, nil
		}
	}
}

// unwindToFinally pops markers until a finally boundary is on top, leaving
// it in place.
func (c *Controller) unwindToFinally(st *State) error {
	discard := 0
	defer func() { st.discardScopes(discard) }()
	for {
		m, ok := st.Env.Top()
		if !ok {
			return ErrNoFinallyBoundary
		}
		if m.finally {
			return nil
		}
		st.Env.Pop()
		discard += m.scopes
	}
}

// discardScopes shortens the live scope list by n, saturating at zero.
func (st *State) discardScopes(n int) {
	if n <= 0 || st.scopes == nil {
		return
	}
	keep := st.scopes.Len() - n
	if keep < 0 {
		keep = 0
	}
	st.scopes.Truncate(keep)
}

// CountScope records that the dispatch loop pushed one scope record.
func (st *State) CountScope() {
	st.Env.AddScope()
}

// ReleaseScope discards the innermost scope record.
func (st *State) ReleaseScope() error {
	if err := st.Env.RemoveScope(); err != nil {
		return violation("pop scope", err)
	}
	st.discardScopes(1)
	return nil
}

func restoreOf(m Marker) Completion {
	if !m.hasRestore {
		return None{}
	}
	return restoreValue(m.restore)
}

func restoreValue(c Completion) Completion {
	if c == nil {
		return None{}
	}
	return c
}
