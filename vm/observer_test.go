package vm

import (
	"context"
	"testing"

	c "github.com/risor-io/unwind/compiler"
	"github.com/risor-io/unwind/op"
	"github.com/risor-io/unwind/region"
	"github.com/stretchr/testify/require"
)

// recordingObserver records every event it receives.
type recordingObserver struct {
	NoOpObserver
	config  *ObserverConfig
	Steps   []StepEvent
	Calls   []CallEvent
	Returns []ReturnEvent
	Regions []RegionEvent
}

func (o *recordingObserver) Config() ObserverConfig {
	if o.config != nil {
		return *o.config
	}
	return NewObserverConfig(StepAll)
}

func (o *recordingObserver) OnStep(event StepEvent) bool {
	o.Steps = append(o.Steps, event)
	return true
}

func (o *recordingObserver) OnCall(event CallEvent) bool {
	o.Calls = append(o.Calls, event)
	return true
}

func (o *recordingObserver) OnReturn(event ReturnEvent) bool {
	o.Returns = append(o.Returns, event)
	return true
}

func (o *recordingObserver) OnRegion(event RegionEvent) bool {
	o.Regions = append(o.Regions, event)
	return true
}

func (o *recordingObserver) stepsNamed(name string) []StepEvent {
	var steps []StepEvent
	for _, s := range o.Steps {
		if s.OpcodeName == name {
			steps = append(steps, s)
		}
	}
	return steps
}

func (o *recordingObserver) regionOps() []string {
	var ops []string
	for _, r := range o.Regions {
		ops = append(ops, r.Op)
	}
	return ops
}

// cancelObserver cancels a context after a number of steps.
type cancelObserver struct {
	NoOpObserver
	cancel func()
	after  int
	steps  int
}

func (o *cancelObserver) OnStep(StepEvent) bool {
	o.steps++
	if o.steps == o.after {
		o.cancel()
	}
	return true
}

// haltObserver stops execution at the first step.
type haltObserver struct {
	NoOpObserver
}

func (haltObserver) OnStep(StepEvent) bool { return false }

func TestObserverOnStep(t *testing.T) {
	obs := &recordingObserver{}
	_, _, err := run(t, compile(t, c.Output(c.BinaryOp(op.Add, c.Const(1), c.Const(2)))), WithObserver(obs))
	require.NoError(t, err)

	var names []string
	for _, step := range obs.Steps {
		names = append(names, step.OpcodeName)
	}
	require.Equal(t, []string{
		"LOAD_CONST", "LOAD_CONST", "BINARY_OP", "EMIT", "NIL", "RETURN_VALUE",
	}, names)
	require.Equal(t, 2, obs.Steps[2].StackDepth)
	require.Equal(t, 1, obs.Steps[2].FrameDepth)
}

func TestObserverSampled(t *testing.T) {
	cfg := NewObserverConfig(StepSampled)
	cfg.SampleInterval = 2
	obs := &recordingObserver{config: &cfg}
	_, _, err := run(t, compile(t, c.Output(c.BinaryOp(op.Add, c.Const(1), c.Const(2)))), WithObserver(obs))
	require.NoError(t, err)
	require.Len(t, obs.Steps, 3)
}

func TestObserverStepNone(t *testing.T) {
	cfg := NewObserverConfig(StepNone)
	obs := &recordingObserver{config: &cfg}
	_, _, err := run(t, compile(t, c.Try(c.Throw(c.Const("x")), &c.Catch{}, nil)), WithObserver(obs))
	require.NoError(t, err)
	require.Empty(t, obs.Steps)
	require.NotEmpty(t, obs.Regions)
}

func TestObserverOnCallAndReturn(t *testing.T) {
	obs := &recordingObserver{}
	code := compile(t,
		c.Def("add", []string{"a", "b"},
			c.Return(c.BinaryOp(op.Add, c.Local("a"), c.Local("b"))),
		),
		c.Output(c.Call(c.Local("add"), c.Const(1), c.Const(2))),
	)
	_, _, err := run(t, code, WithObserver(obs))
	require.NoError(t, err)

	require.Len(t, obs.Calls, 1)
	require.Equal(t, "add", obs.Calls[0].FunctionName)
	require.Equal(t, 2, obs.Calls[0].ArgCount)
	require.Equal(t, 2, obs.Calls[0].FrameDepth)

	require.Len(t, obs.Returns, 2)
	require.Equal(t, "add", obs.Returns[0].FunctionName)
	require.Equal(t, 1, obs.Returns[0].FrameDepth)
	require.Equal(t, "", obs.Returns[1].FunctionName)
	require.Equal(t, 0, obs.Returns[1].FrameDepth)
}

func TestObserverOnRegion(t *testing.T) {
	obs := &recordingObserver{}
	code := compile(t, c.Try(c.Throw(c.Const("x")), &c.Catch{}, emit("f")))
	out, _, err := run(t, code, WithObserver(obs))
	require.NoError(t, err)
	require.Equal(t, []any{"f"}, out)

	require.Equal(t, []string{"enter", "dispatch", "exit", "end_finally", "return"}, obs.regionOps())

	enter := obs.Regions[0]
	require.Equal(t, 3, enter.State.Markers)
	require.Equal(t, 2, enter.State.Boundaries)
	require.Equal(t, 1, enter.State.Handlers)

	dispatch := obs.Regions[1]
	require.Equal(t, region.ActionJump, dispatch.Action)
	require.Equal(t, 11, dispatch.Address)
	require.Equal(t, 3, dispatch.State.Markers)
	require.Equal(t, 1, dispatch.State.Handlers)
	require.Equal(t, region.KindNone, dispatch.State.Completion)

	exit := obs.Regions[2]
	require.Equal(t, 2, exit.State.Markers)
	require.Equal(t, 0, exit.State.Handlers)

	end := obs.Regions[3]
	require.Equal(t, region.ActionFallThrough, end.Action)
	require.Equal(t, 1, end.State.Markers)
	require.Equal(t, 0, end.State.Boundaries)

	require.Equal(t, region.ActionReturn, obs.Regions[4].Action)
}

func TestObserverSeesDeferredCompletion(t *testing.T) {
	obs := &recordingObserver{}
	code := compile(t, c.While(nil, c.Try(c.Break(), nil, emit("f"))))
	_, _, err := run(t, code, WithObserver(obs))
	require.NoError(t, err)

	require.Equal(t, []string{"enter", "break", "end_finally", "return"}, obs.regionOps())
	brk := obs.Regions[1]
	require.Equal(t, region.ActionJump, brk.Action)
	require.Equal(t, region.KindBreak, brk.State.Completion)
	require.Equal(t, 3, brk.State.Markers)
	require.Equal(t, 0, brk.State.Handlers)

	end := obs.Regions[2]
	require.Equal(t, region.ActionJump, end.Action)
	require.Equal(t, 1, end.State.Markers)
	require.Equal(t, region.KindNone, end.State.Completion)
}

func TestObserverHalts(t *testing.T) {
	machine := New(compile(t, emit(1)), WithObserver(haltObserver{}))
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, ErrHalted)
	require.Nil(t, machine.Output())
}
