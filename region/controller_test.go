package region

import (
	"errors"
	"testing"

	"github.com/risor-io/unwind/bytecode"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var none = bytecode.NoAddress

func at(offset int) bytecode.Address {
	return bytecode.AddressOf(offset)
}

func newTestState() (*Controller, *State, *scopeSlice) {
	scopes := &scopeSlice{}
	return NewController(zerolog.Nop()), NewState(scopes), scopes
}

func requireJump(t *testing.T, target Target, addr int) {
	t.Helper()
	require.Equal(t, ActionJump, target.Action, "action")
	require.Equal(t, addr, target.Address, "address")
}

func TestNewState(t *testing.T) {
	_, st, _ := newTestState()
	require.Equal(t, BaseDepth, st.Env.Len())
	require.True(t, st.Handlers.IsEmpty())
	require.Equal(t, KindNone, KindOf(st.Completion))
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
}

func TestEnterPushesMarkers(t *testing.T) {
	c, st, _ := newTestState()

	c.Enter(st, at(10), none, 0)
	require.Equal(t, 2, st.Env.Len())
	require.Equal(t, 1, st.Handlers.Depth())
	top, _ := st.Env.Top()
	require.True(t, top.IsRegionBoundary())

	c.Enter(st, none, at(30), 0)
	require.Equal(t, 4, st.Env.Len())
	require.Equal(t, 2, st.Handlers.Depth())
	require.True(t, st.Env.At(2).IsFinallyBoundary())
	require.Equal(t, 30, st.Env.At(2).Finally().Offset())
	require.True(t, st.Env.At(3).IsRegionBoundary())
	h, _ := st.Handlers.Top()
	require.Equal(t, 30, h.Finally.Offset())
}

func TestNestedRoundTrip(t *testing.T) {
	c, st, scopes := newTestState()
	scopes.push(st, "global")
	before := st.Snapshot()

	c.Enter(st, at(100), at(200), 0)
	scopes.push(st, "a")
	c.Enter(st, none, at(300), 0)
	scopes.push(st, "b1")
	scopes.push(st, "b2")

	require.NoError(t, c.Exit(st))
	require.Equal(t, []string{"global", "a"}, scopes.names)
	require.Equal(t, 1, st.Handlers.Depth())
	top, _ := st.Env.Top()
	require.True(t, top.IsFinallyBoundary(), "finally boundary stays live after exit")

	scopes.push(st, "finally-local")
	target, err := c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionFallThrough, target.Action)
	require.Equal(t, []string{"global", "a"}, scopes.names)

	require.NoError(t, c.Exit(st))
	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionFallThrough, target.Action)

	require.Equal(t, before, st.Snapshot())
	require.Equal(t, []string{"global"}, scopes.names)
}

func TestThrowRunsCatchThenFinally(t *testing.T) {
	// A(catch@100, finally@200) around B(finally@300); B's body throws.
	c, st, scopes := newTestState()
	c.Enter(st, at(100), at(200), 0)
	scopes.push(st, "a")
	c.Enter(st, none, at(300), 0)
	scopes.push(st, "b")

	target, err := c.Dispatch(st, "boom")
	require.NoError(t, err)
	requireJump(t, target, 300)
	require.False(t, target.Bind)
	require.Equal(t, Throw{Payload: "boom"}, st.Completion)
	require.Equal(t, []string{"a"}, scopes.names)
	require.Equal(t, 1, st.Handlers.Depth())
	top, _ := st.Env.Top()
	require.True(t, top.IsFinallyBoundary())
	require.Equal(t, 300, top.Finally().Offset())

	// B's finally falls through and the throw resumes into A's catch.
	target, err = c.EndFinally(st)
	require.NoError(t, err)
	requireJump(t, target, 100)
	require.True(t, target.Bind)
	require.Equal(t, "boom", target.Value)
	require.Empty(t, scopes.names)
	require.Equal(t, KindNone, KindOf(st.Completion))
	top, _ = st.Env.Top()
	require.True(t, top.InCatch())

	// The catch body ends normally and A's finally runs.
	require.NoError(t, c.Exit(st))
	require.Equal(t, 0, st.Handlers.Depth())
	top, _ = st.Env.Top()
	require.True(t, top.IsFinallyBoundary())
	require.Equal(t, 200, top.Finally().Offset())

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionFallThrough, target.Action)
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
}

func TestTryFinallyThrowPropagates(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(50), 0)

	target, err := c.Dispatch(st, "x")
	require.NoError(t, err)
	requireJump(t, target, 50)

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionPropagate, target.Action)
	require.Equal(t, "x", target.Value)
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
}

func TestNestedFinallyThrowOrder(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(10), 0)
	c.Enter(st, none, at(20), 0)

	var order []int
	target, err := c.Dispatch(st, "x")
	require.NoError(t, err)
	for target.Action == ActionJump {
		order = append(order, target.Address)
		target, err = c.EndFinally(st)
		require.NoError(t, err)
	}
	require.Equal(t, []int{20, 10}, order)
	require.Equal(t, ActionPropagate, target.Action)
	require.Equal(t, "x", target.Value)
}

func TestThrowFromCatchRunsFinally(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, at(10), at(20), 0)

	target, err := c.Dispatch(st, "first")
	require.NoError(t, err)
	requireJump(t, target, 10)

	target, err = c.Dispatch(st, "second")
	require.NoError(t, err)
	requireJump(t, target, 20)
	require.Equal(t, Throw{Payload: "second"}, st.Completion)

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionPropagate, target.Action)
	require.Equal(t, "second", target.Value)
}

func TestThrowFromCatchReachesOuterCatch(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, at(30), none, 1)
	c.Enter(st, at(10), none, 2)

	target, err := c.Dispatch(st, "first")
	require.NoError(t, err)
	requireJump(t, target, 10)
	require.Equal(t, 2, target.StackDepth)

	target, err = c.Dispatch(st, "second")
	require.NoError(t, err)
	requireJump(t, target, 30)
	require.Equal(t, "second", target.Value)
	require.Equal(t, 1, target.StackDepth)
	require.Equal(t, 1, st.Handlers.Depth())
}

func TestAbortSkipsCatches(t *testing.T) {
	// A(catch@100, finally@200) around B(catch@300); an abort from B's body
	// runs only A's finally.
	c, st, scopes := newTestState()
	c.Enter(st, at(100), at(200), 0)
	scopes.push(st, "a")
	c.Enter(st, at(300), none, 0)
	scopes.push(st, "b")

	abort := Abort{Cause: errors.New("stop")}
	target, err := c.Dispatch(st, abort)
	require.NoError(t, err)
	requireJump(t, target, 200)
	require.False(t, target.Bind)
	require.Equal(t, Throw{Payload: abort}, st.Completion)
	require.Empty(t, scopes.names)
	require.Equal(t, 0, st.Handlers.Depth())

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionPropagate, target.Action)
	require.Equal(t, abort, target.Value)
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
	require.Equal(t, "execution aborted: stop", abort.Error())
}

func TestAbortFromCatchBody(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, at(10), none, 0)

	target, err := c.Dispatch(st, "first")
	require.NoError(t, err)
	requireJump(t, target, 10)

	target, err = c.Dispatch(st, Abort{})
	require.NoError(t, err)
	require.Equal(t, ActionPropagate, target.Action)
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
}

func TestDispatchWithoutHandlers(t *testing.T) {
	c, st, _ := newTestState()
	target, err := c.Dispatch(st, 42)
	require.NoError(t, err)
	require.Equal(t, ActionPropagate, target.Action)
	require.Equal(t, 42, target.Value)
}

func TestReturnRunsFinally(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(40), 0)

	target, err := c.Abrupt(st, Return{Value: 7})
	require.NoError(t, err)
	requireJump(t, target, 40)
	require.Equal(t, Return{Value: 7}, st.Completion)

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionReturn, target.Action)
	require.Equal(t, 7, target.Value)
}

func TestReturnInFinallyOverrides(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(40), 0)

	target, err := c.Abrupt(st, Return{Value: 7})
	require.NoError(t, err)
	requireJump(t, target, 40)

	target, err = c.Abrupt(st, Return{Value: 9})
	require.NoError(t, err)
	require.Equal(t, ActionReturn, target.Action)
	require.Equal(t, 9, target.Value)
	require.Equal(t, KindNone, KindOf(st.Completion))
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
}

func TestReturnRunsEveryFinallyInnermostFirst(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(40), 0)
	c.Enter(st, at(50), none, 0)
	c.Enter(st, none, at(60), 0)

	var order []int
	target, err := c.Abrupt(st, Return{Value: "r"})
	require.NoError(t, err)
	for target.Action == ActionJump {
		order = append(order, target.Address)
		target, err = c.EndFinally(st)
		require.NoError(t, err)
	}
	require.Equal(t, []int{60, 40}, order)
	require.Equal(t, ActionReturn, target.Action)
	require.Equal(t, "r", target.Value)
	require.True(t, st.Handlers.IsEmpty())
}

func TestBreakThroughFinally(t *testing.T) {
	c, st, scopes := newTestState()
	loopDepth := st.Env.Len()
	c.EnterBlock(st)
	scopes.push(st, "i")
	c.Enter(st, none, at(80), 3)
	scopes.push(st, "inner")

	brk := Break{Target: at(90), Depth: loopDepth}
	target, err := c.Abrupt(st, brk)
	require.NoError(t, err)
	requireJump(t, target, 80)
	require.Equal(t, brk, st.Completion)
	require.Equal(t, []string{"i"}, scopes.names)

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	requireJump(t, target, 90)
	require.Empty(t, scopes.names)
	require.Equal(t, loopDepth, st.Env.Len())
	require.True(t, st.Handlers.IsEmpty())
}

func TestContinueWithoutFinally(t *testing.T) {
	c, st, scopes := newTestState()
	loopDepth := st.Env.Len()
	c.EnterBlock(st)
	c.Enter(st, at(70), none, 1)
	scopes.push(st, "x")

	target, err := c.Abrupt(st, Continue{Target: at(5), Depth: loopDepth})
	require.NoError(t, err)
	requireJump(t, target, 5)
	require.Equal(t, 1, target.StackDepth)
	require.Empty(t, scopes.names)
	require.True(t, st.Handlers.IsEmpty())
	require.Equal(t, loopDepth, st.Env.Len())
}

func TestBreakInsideRegionStaysInside(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(80), 0)
	loopDepth := st.Env.Len()
	c.EnterBlock(st)

	target, err := c.Abrupt(st, Break{Target: at(12), Depth: loopDepth})
	require.NoError(t, err)
	requireJump(t, target, 12)
	require.Equal(t, -1, target.StackDepth)
	require.Equal(t, 1, st.Handlers.Depth())
}

func TestBreakFromFinallyDiscardsThrow(t *testing.T) {
	c, st, _ := newTestState()
	loopDepth := st.Env.Len()
	c.EnterBlock(st)
	c.Enter(st, none, at(50), 0)

	target, err := c.Dispatch(st, "lost")
	require.NoError(t, err)
	requireJump(t, target, 50)

	target, err = c.Abrupt(st, Break{Target: at(90), Depth: loopDepth})
	require.NoError(t, err)
	requireJump(t, target, 90)
	require.Equal(t, KindNone, KindOf(st.Completion))
	require.Equal(t, loopDepth, st.Env.Len())
}

func TestTryInsideFinallyKeepsDeferredReturn(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, none, at(40), 0)
	target, err := c.Abrupt(st, Return{Value: 1})
	require.NoError(t, err)
	requireJump(t, target, 40)

	// The finally body contains its own try/catch.
	c.Enter(st, at(60), none, 0)
	require.Equal(t, KindNone, KindOf(st.Completion))
	target, err = c.Dispatch(st, "inner")
	require.NoError(t, err)
	requireJump(t, target, 60)
	require.NoError(t, c.Exit(st))
	require.Equal(t, Return{Value: 1}, st.Completion)

	target, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, ActionReturn, target.Action)
	require.Equal(t, 1, target.Value)
}

func TestUnwindSaturates(t *testing.T) {
	c, st, scopes := newTestState()
	c.Enter(st, none, at(5), 0)
	scopes.push(st, "a")
	scopes.push(st, "b")
	scopes.Truncate(0)

	target, err := c.Dispatch(st, "x")
	require.NoError(t, err)
	requireJump(t, target, 5)
	require.Empty(t, scopes.names)

	scopes.push(st, "f")
	scopes.Truncate(0)
	_, err = c.EndFinally(st)
	require.NoError(t, err)
	require.Equal(t, 0, scopes.Len())
}

func TestBlocks(t *testing.T) {
	c, st, scopes := newTestState()
	c.EnterBlock(st)
	scopes.push(st, "loop")
	require.NoError(t, c.ExitBlock(st))
	require.Empty(t, scopes.names)

	err := c.ExitBlock(st)
	require.ErrorIs(t, err, ErrBlockMismatch)

	c.Enter(st, at(1), none, 0)
	err = c.ExitBlock(st)
	require.ErrorIs(t, err, ErrBlockMismatch)
}

func TestScopes(t *testing.T) {
	_, st, scopes := newTestState()
	scopes.push(st, "a")
	require.NoError(t, st.ReleaseScope())
	require.Empty(t, scopes.names)
	err := st.ReleaseScope()
	require.ErrorIs(t, err, ErrScopeUnderflow)
	require.True(t, IsContractViolation(err))
}

func TestContractViolations(t *testing.T) {
	c := NewController(zerolog.Nop())

	t.Run("exit without entry", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		err := c.Exit(st)
		require.ErrorIs(t, err, ErrHandlerUnderflow)
		require.True(t, IsContractViolation(err))
		require.Equal(t, "exit region: region exit without a matching entry", err.Error())
	})

	t.Run("end finally outside finally", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		_, err := c.EndFinally(st)
		require.ErrorIs(t, err, ErrNoFinallyBoundary)
	})

	t.Run("region without catch or finally", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		c.Enter(st, none, none, 0)
		_, err := c.Dispatch(st, "x")
		require.ErrorIs(t, err, ErrNoHandler)
	})

	t.Run("handler without boundary", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		st.Handlers.Push(Handler{Finally: at(3)})
		_, err := c.Dispatch(st, "x")
		require.ErrorIs(t, err, ErrNoRegionBoundary)
	})

	t.Run("target deeper than stack", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		_, err := c.Abrupt(st, Break{Target: at(1), Depth: 4})
		require.ErrorIs(t, err, ErrDepth)
	})

	t.Run("unknown completion", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		_, err := c.Abrupt(st, nil)
		require.ErrorIs(t, err, ErrBadCompletion)
		_, err = c.Abrupt(st, Throw{Payload: 1})
		require.ErrorIs(t, err, ErrBadCompletion)
	})

	t.Run("break without target", func(t *testing.T) {
		st := NewState(&scopeSlice{})
		_, err := c.Abrupt(st, Break{Depth: 1})
		require.ErrorIs(t, err, ErrBadCompletion)
	})
}

func TestReset(t *testing.T) {
	c, st, _ := newTestState()
	c.Enter(st, at(1), at(2), 0)
	st.Completion = Return{Value: 1}
	scopes := &scopeSlice{}
	st.Reset(scopes)
	require.Equal(t, Snapshot{Markers: 1}, st.Snapshot())
	require.Same(t, scopes, st.Scopes())
}
