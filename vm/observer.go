package vm

import (
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/errz"
	"github.com/risor-io/unwind/op"
	"github.com/risor-io/unwind/region"
)

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled

	// StepOnLine calls OnStep when the source line changes.
	StepOnLine
)

// ObserverConfig specifies what events an observer wants to receive.
// Use NewObserverConfig() to create configs with safe defaults.
type ObserverConfig struct {
	// StepMode controls OnStep callback frequency.
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	// ObserveCalls enables OnCall callbacks.
	ObserveCalls bool

	// ObserveReturns enables OnReturn callbacks.
	ObserveReturns bool

	// ObserveRegions enables OnRegion callbacks.
	ObserveRegions bool
}

// NewObserverConfig creates a config with safe defaults. Calls, returns
// and region transitions are all observed.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
		ObserveRegions: true,
	}
}

// NormalizeConfig validates and clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer is an interface for observing VM execution events.
//
// All methods are optional - implementations can embed NoOpObserver
// to provide default no-op implementations for methods they don't need.
//
// Observer methods are called synchronously during VM execution.
// Returning false from any of them halts execution with ErrHalted.
type Observer interface {
	// Config returns the observer's configuration.
	// Called once when the observer is attached to the VM.
	Config() ObserverConfig

	// OnStep is called based on the StepMode in the observer's config.
	OnStep(event StepEvent) bool

	// OnCall is called when a function is invoked.
	OnCall(event CallEvent) bool

	// OnReturn is called when a function returns.
	OnReturn(event ReturnEvent) bool

	// OnRegion is called after every region transition.
	OnRegion(event RegionEvent) bool
}

// StepEvent contains information about a single instruction step.
type StepEvent struct {
	IP         int
	Opcode     op.Code
	OpcodeName string
	Location   errz.SourceLocation

	// StackDepth is the current depth of the value stack.
	StackDepth int

	// FrameDepth is the current depth of the call stack.
	FrameDepth int

	// ScopeDepth is the number of live scope records in the active frame.
	ScopeDepth int
}

// CallEvent contains information about a function call.
type CallEvent struct {
	FunctionName string
	ArgCount     int
	Location     errz.SourceLocation

	// FrameDepth is the call stack depth after the call.
	FrameDepth int
}

// ReturnEvent contains information about a function return.
type ReturnEvent struct {
	FunctionName string
	Location     errz.SourceLocation

	// FrameDepth is the call stack depth after returning.
	FrameDepth int
}

// RegionEvent describes one region transition in the active frame.
type RegionEvent struct {
	// Op is one of "enter", "exit", "dispatch", "end_finally", "return",
	// "break" or "continue".
	Op string

	// Action and Address describe where control goes next.
	Action  region.Action
	Address int

	// Snapshot of the active frame's region state after the transition.
	State region.Snapshot

	FrameDepth int
}

// NoOpObserver is an Observer implementation that does nothing.
// Embed this in your observer to provide default implementations
// for methods you don't need.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }
func (NoOpObserver) OnRegion(RegionEvent) bool { return true }

var _ Observer = NoOpObserver{}

func (vm *VirtualMachine) observeStep(opcode op.Code) bool {
	cfg := vm.observerCfg
	loc := vm.activeCode.LocationAt(vm.ip)
	switch cfg.StepMode {
	case StepNone:
		return true
	case StepSampled:
		vm.stepCount++
		if vm.stepCount < cfg.SampleInterval {
			return true
		}
		vm.stepCount = 0
	case StepOnLine:
		if loc.Line == vm.lastLine {
			return true
		}
		vm.lastLine = loc.Line
	}
	return vm.observer.OnStep(StepEvent{
		IP:         vm.ip,
		Opcode:     opcode,
		OpcodeName: op.GetInfo(opcode).Name,
		Location:   loc,
		StackDepth: vm.sp + 1,
		FrameDepth: vm.fp + 1,
		ScopeDepth: vm.activeFrame.ScopeDepth(),
	})
}

func (vm *VirtualMachine) observeCall(fn *bytecode.Function, argc int) bool {
	if vm.observer == nil || !vm.observerCfg.ObserveCalls {
		return true
	}
	return vm.observer.OnCall(CallEvent{
		FunctionName: fn.Name(),
		ArgCount:     argc,
		Location:     vm.frames[vm.fp-1].code.LocationAt(vm.activeFrame.callSiteIP),
		FrameDepth:   vm.fp + 1,
	})
}

func (vm *VirtualMachine) observeReturn(f *frame) bool {
	if vm.observer == nil || !vm.observerCfg.ObserveReturns {
		return true
	}
	name := ""
	if f.fn != nil {
		name = f.fn.Name()
	}
	return vm.observer.OnReturn(ReturnEvent{
		FunctionName: name,
		Location:     vm.getCurrentLocation(),
		FrameDepth:   vm.fp,
	})
}

func (vm *VirtualMachine) observeRegion(name string, target region.Target) bool {
	if vm.observer == nil || !vm.observerCfg.ObserveRegions {
		return true
	}
	return vm.observer.OnRegion(RegionEvent{
		Op:         name,
		Action:     target.Action,
		Address:    target.Address,
		State:      vm.activeFrame.region.Snapshot(),
		FrameDepth: vm.fp + 1,
	})
}
