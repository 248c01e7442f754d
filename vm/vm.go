// Package vm provides a VirtualMachine that executes unwind bytecode.
//
// The dispatch loop owns the value stack, the call frames and the
// instruction pointer. Everything to do with protected regions, loops
// blocks and scope bookkeeping is delegated to a region.Controller, which
// answers each region opcode with a region.Target that the loop performs.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid"
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/errz"
	"github.com/risor-io/unwind/op"
	"github.com/risor-io/unwind/region"
	"github.com/rs/zerolog"
)

const (
	MaxArgs       = 256
	MaxFrameDepth = 1024
	MaxStackDepth = 1024

	// DefaultContextCheckInterval is the number of instructions between
	// deterministic checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

// ErrHalted is returned when an observer stops execution.
var ErrHalted = errors.New("execution halted by observer")

type VirtualMachine struct {
	ip          int // instruction pointer
	sp          int // stack pointer
	fp          int // frame pointer
	halt        int32
	aborting    bool
	activeFrame *frame
	activeCode  *code
	main        *bytecode.Code
	loadedCode  map[*bytecode.Code]*code
	running     bool
	runMutex    sync.Mutex
	done        chan struct{}
	stack       [MaxStackDepth]any
	frames      [MaxFrameDepth]frame

	// Values passed to EMIT during the current run, and an optional sink
	// that sees them as they are produced.
	output  []any
	emitter func(any)

	ctl    *region.Controller
	log    zerolog.Logger
	runLog zerolog.Logger
	runID  string

	// Where the payload currently being dispatched was thrown. Set at the
	// throw site and kept while the payload travels through finally bodies
	// and caller frames.
	throwLoc   errz.SourceLocation
	throwStack []errz.StackFrame

	// contextCheckInterval is the number of instructions between
	// deterministic checks of ctx.Done(). A value of 0 disables
	// deterministic checking, relying only on the background goroutine.
	contextCheckInterval int

	// observer receives callbacks for VM execution events. If nil, no
	// callbacks are made.
	observer    Observer
	observerCfg ObserverConfig
	stepCount   int
	lastLine    int

	validate      bool
	maxFrameDepth int
}

// New creates a new Virtual Machine that runs main.
func New(main *bytecode.Code, options ...Option) *VirtualMachine {
	vm := NewEmpty(options...)
	vm.main = main
	return vm
}

// NewEmpty creates a new Virtual Machine without main code. Code can be
// provided later using RunCode, or functions can be called directly using
// Call.
func NewEmpty(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		sp:                   -1,
		loadedCode:           map[*bytecode.Code]*code{},
		log:                  zerolog.Nop(),
		contextCheckInterval: DefaultContextCheckInterval,
		validate:             true,
		maxFrameDepth:        MaxFrameDepth,
	}
	for _, opt := range options {
		opt(vm)
	}
	return vm
}

func (vm *VirtualMachine) start(ctx context.Context) error {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if vm.running {
		return fmt.Errorf("vm is already running")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	vm.running = true
	vm.runID = id.String()
	vm.runLog = vm.log.With().Str("run", vm.runID).Logger()
	vm.ctl = region.NewController(vm.runLog)

	// Halt execution when the context is cancelled
	vm.halt = 0
	vm.done = make(chan struct{})
	if doneChan := ctx.Done(); doneChan != nil {
		go func(stop <-chan struct{}) {
			select {
			case <-doneChan:
				atomic.StoreInt32(&vm.halt, 1)
			case <-stop:
			}
		}(vm.done)
	}
	vm.runLog.Debug().Msg("run started")
	return nil
}

func (vm *VirtualMachine) stop() {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	close(vm.done)
	vm.running = false
}

// Run executes the main code given to New. The result is left on the top of
// the stack; see TOS.
func (vm *VirtualMachine) Run(ctx context.Context) error {
	if vm.main == nil {
		return fmt.Errorf("no main code available")
	}
	return vm.runCode(ctx, vm.main)
}

// RunCode runs the given code on the VM. This allows running multiple
// different code objects on the same VM instance sequentially. The VM must
// not be currently running when this method is called.
func (vm *VirtualMachine) RunCode(ctx context.Context, codeToRun *bytecode.Code, opts ...Option) error {
	vm.runMutex.Lock()
	if vm.running {
		vm.runMutex.Unlock()
		return fmt.Errorf("vm is already running")
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.runMutex.Unlock()
	return vm.runCode(ctx, codeToRun)
}

func (vm *VirtualMachine) runCode(ctx context.Context, codeToRun *bytecode.Code) (err error) {
	if err := vm.check(codeToRun); err != nil {
		return err
	}
	// Set up some guarantees:
	// 1. It is an error to call Run on a VM that is already running
	// 2. The running flag will always be set to false when Run returns
	// 3. Any panics are translated to errors and the VM is stopped
	if err := vm.start(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		vm.stop()
	}()

	vm.reset()
	vm.activateCode(0, 0, vm.loadCode(codeToRun))
	return vm.eval(ctx)
}

// Call a function with the given arguments and return its result. The
// function runs in frame zero, so a throw that escapes it is reported as an
// uncaught exception. If this VM is already running, an error is returned.
func (vm *VirtualMachine) Call(ctx context.Context, fn *bytecode.Function, args []any) (result any, err error) {
	if err := vm.check(fn.Code()); err != nil {
		return nil, err
	}
	if len(args) > MaxArgs {
		return nil, fmt.Errorf("max args limit of %d exceeded (got %d)", MaxArgs, len(args))
	}
	if err := checkCallArgs(fn, len(args)); err != nil {
		return nil, err
	}
	if err := vm.start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		vm.stop()
	}()

	vm.reset()
	vm.activateFunction(0, 0, fn, args)
	if err := vm.eval(ctx); err != nil {
		return nil, err
	}
	if vm.sp < 0 {
		return nil, nil
	}
	return vm.stack[vm.sp], nil
}

// check validates code before it runs, unless validation is disabled.
func (vm *VirtualMachine) check(c *bytecode.Code) error {
	if c == nil {
		return fmt.Errorf("no code to run")
	}
	if !vm.validate {
		return nil
	}
	if err := bytecode.Validate(c); err != nil {
		return errz.NewStructuredError(errz.ErrValidation, err.Error(), errz.SourceLocation{}, nil).WithCause(err)
	}
	return nil
}

// reset clears the state left behind by a previous run.
func (vm *VirtualMachine) reset() {
	for i := 0; i <= vm.sp && i < MaxStackDepth; i++ {
		vm.stack[i] = nil
	}
	vm.sp = -1
	vm.ip = 0
	vm.fp = 0
	vm.activeFrame = nil
	vm.activeCode = nil
	vm.output = nil
	vm.throwLoc = errz.SourceLocation{}
	vm.throwStack = nil
	vm.aborting = false
	vm.stepCount = 0
	vm.lastLine = 0
}

// Evaluate the active code. The caller must initialize the following
// variables before calling this function:
//   - vm.ip - instruction pointer within the active code
//   - vm.fp - frame pointer with the active code already set
//   - vm.activeCode - the code object to execute
//   - vm.activeFrame - the active call frame to use
//
// Calls do not recurse into eval: a CALL activates the callee's frame and
// the loop carries on there, and a return or a propagating throw resumes
// the caller. When eval returns without error the result of frame zero is
// on the top of the stack.
func (vm *VirtualMachine) eval(ctx context.Context) error {
	// Instruction counter for deterministic context checking
	var instructionCount int
	checkInterval := vm.contextCheckInterval
	doneChan := ctx.Done()

	for vm.ip < len(vm.activeCode.Instructions) {

		if !vm.aborting && atomic.LoadInt32(&vm.halt) == 1 {
			if stop, err := vm.abort(ctx); stop || err != nil {
				return err
			}
			continue
		}

		// Deterministic check of ctx.Done() every N instructions.
		if !vm.aborting && checkInterval > 0 && doneChan != nil {
			instructionCount++
			if instructionCount >= checkInterval {
				instructionCount = 0
				select {
				case <-doneChan:
					atomic.StoreInt32(&vm.halt, 1)
					if stop, err := vm.abort(ctx); stop || err != nil {
						return err
					}
					continue
				default:
				}
			}
		}

		opcode := vm.activeCode.Instructions[vm.ip]

		if vm.observer != nil && !vm.observeStep(opcode) {
			return ErrHalted
		}

		// Advance the instruction pointer to the next instruction. Note that
		// this is done before we actually execute the current instruction, so
		// relative jump instructions will need to take this into account.
		vm.ip++

		// No instruction pushes more than one value.
		if vm.sp >= MaxStackDepth-1 {
			if stop, err := vm.raise(vm.runtimeError("stack overflow")); stop || err != nil {
				return err
			}
			continue
		}

		switch opcode {
		case op.Nop:
		case op.LoadConst:
			vm.push(vm.activeCode.Constants[vm.fetch()])
		case op.LoadFast:
			vm.push(vm.activeFrame.Locals()[vm.fetch()])
		case op.StoreFast:
			idx := vm.fetch()
			obj := vm.pop()
			vm.activeFrame.Locals()[idx] = obj
		case op.Nil:
			vm.push(nil)
		case op.True:
			vm.push(true)
		case op.False:
			vm.push(false)
		case op.CompareOp:
			opType := op.CompareOpType(vm.fetch())
			b := vm.pop()
			a := vm.pop()
			result, err := compare(opType, a, b)
			if err != nil {
				if stop, err := vm.raise(vm.runtimeError("%v", err)); stop || err != nil {
					return err
				}
				continue
			}
			vm.push(result)
		case op.BinaryOp:
			opType := op.BinaryOpType(vm.fetch())
			b := vm.pop()
			a := vm.pop()
			result, err := binaryOp(opType, a, b)
			if err != nil {
				if stop, err := vm.raise(vm.runtimeError("%v", err)); stop || err != nil {
					return err
				}
				continue
			}
			vm.push(result)
		case op.Call:
			argc := int(vm.fetch())
			if argc > MaxArgs {
				return vm.contractError(fmt.Errorf("max args limit of %d exceeded (got %d)", MaxArgs, argc))
			}
			args := make([]any, argc)
			for argIndex := argc - 1; argIndex >= 0; argIndex-- {
				args[argIndex] = vm.pop()
			}
			if stop, err := vm.call(vm.pop(), args); stop || err != nil {
				return err
			}
		case op.ReturnValue:
			value := vm.pop()
			if stop, err := vm.abrupt("return", region.Return{Value: value}); stop || err != nil {
				return err
			}
		case op.PopJumpForwardIfTrue:
			tos := vm.pop()
			delta := int(vm.fetch()) - 2
			if isTruthy(tos) {
				vm.ip += delta
			}
		case op.PopJumpForwardIfFalse:
			tos := vm.pop()
			delta := int(vm.fetch()) - 2
			if !isTruthy(tos) {
				vm.ip += delta
			}
		case op.JumpForward:
			base := vm.ip - 1
			delta := int(vm.fetch())
			vm.ip = base + delta
		case op.JumpBackward:
			base := vm.ip - 1
			delta := int(vm.fetch())
			vm.ip = base - delta
		case op.Copy:
			offset := vm.fetch()
			vm.push(vm.stack[vm.sp-int(offset)])
		case op.PopTop:
			vm.pop()
		case op.PushScope:
			vm.activeFrame.scopes.push(vm.ip - 1)
			vm.activeFrame.region.CountScope()
		case op.PopScope:
			if err := vm.activeFrame.region.ReleaseScope(); err != nil {
				return vm.contractError(err)
			}
		case op.EnterBlock:
			vm.ctl.EnterBlock(&vm.activeFrame.region)
		case op.ExitBlock:
			if err := vm.ctl.ExitBlock(&vm.activeFrame.region); err != nil {
				return vm.contractError(err)
			}
		case op.Emit:
			value := vm.pop()
			vm.output = append(vm.output, value)
			if vm.emitter != nil {
				vm.emitter(value)
			}
		case op.PushExcept:
			catch := vm.fetchAddress()
			finally := vm.fetchAddress()
			vm.ctl.Enter(&vm.activeFrame.region, catch, finally, vm.sp+1)
			if !vm.observeRegion("enter", region.Target{Action: region.ActionFallThrough}) {
				return ErrHalted
			}
		case op.PopExcept:
			if err := vm.ctl.Exit(&vm.activeFrame.region); err != nil {
				return vm.contractError(err)
			}
			if !vm.observeRegion("exit", region.Target{Action: region.ActionFallThrough}) {
				return ErrHalted
			}
		case op.Throw:
			if stop, err := vm.raise(vm.pop()); stop || err != nil {
				return err
			}
		case op.EndFinally:
			target, err := vm.ctl.EndFinally(&vm.activeFrame.region)
			if err != nil {
				return vm.contractError(err)
			}
			if stop, err := vm.perform("end_finally", target); stop || err != nil {
				return err
			}
		case op.Break:
			target := vm.fetchAddress()
			depth := int(vm.fetch())
			if stop, err := vm.abrupt("break", region.Break{Target: target, Depth: depth}); stop || err != nil {
				return err
			}
		case op.Continue:
			target := vm.fetchAddress()
			depth := int(vm.fetch())
			if stop, err := vm.abrupt("continue", region.Continue{Target: target, Depth: depth}); stop || err != nil {
				return err
			}
		case op.Halt:
			return nil
		default:
			return vm.contractError(fmt.Errorf("unknown opcode: %d", opcode))
		}
	}
	if vm.fp != 0 {
		return vm.contractError(fmt.Errorf("function %s ended without a return", vm.activeCode.label()))
	}
	return nil
}

// raise throws payload from the current instruction.
func (vm *VirtualMachine) raise(payload any) (bool, error) {
	vm.throwLoc = vm.getCurrentLocation()
	vm.throwStack = vm.captureStack()
	target, err := vm.ctl.Dispatch(&vm.activeFrame.region, payload)
	if err != nil {
		return false, vm.contractError(err)
	}
	return vm.perform("dispatch", target)
}

// abrupt starts a return, break or continue in the active frame.
func (vm *VirtualMachine) abrupt(name string, completion region.Completion) (bool, error) {
	target, err := vm.ctl.Abrupt(&vm.activeFrame.region, completion)
	if err != nil {
		return false, vm.contractError(err)
	}
	return vm.perform(name, target)
}

// perform carries out a transfer computed by the region controller. It
// returns true when the run is over.
func (vm *VirtualMachine) perform(name string, target region.Target) (bool, error) {
	if !vm.observeRegion(name, target) {
		return false, ErrHalted
	}
	switch target.Action {
	case region.ActionFallThrough:
		return false, nil
	case region.ActionJump:
		if target.StackDepth >= 0 {
			vm.truncateStack(target.StackDepth)
		}
		vm.ip = target.Address
		if target.Bind {
			vm.push(target.Value)
		}
		return false, nil
	case region.ActionReturn:
		return vm.returnValue(target.Value)
	case region.ActionPropagate:
		return vm.propagate(target.Value)
	default:
		return false, vm.contractError(fmt.Errorf("unknown action %s", target.Action))
	}
}

// returnValue pops the active frame and hands value to its caller. A return
// from frame zero ends the run with value on the top of the stack.
func (vm *VirtualMachine) returnValue(value any) (bool, error) {
	activeFrame := vm.activeFrame
	if !vm.observeReturn(activeFrame) {
		return false, ErrHalted
	}
	if vm.fp == 0 {
		vm.truncateStack(0)
		vm.push(value)
		return true, nil
	}
	vm.resumeFrame(vm.fp-1, activeFrame.returnAddr, activeFrame.returnSp)
	vm.push(value)
	return false, nil
}

// propagate re-dispatches payload in each calling frame in turn until one
// of them handles it. Reaching past frame zero ends the run.
func (vm *VirtualMachine) propagate(payload any) (bool, error) {
	for vm.fp > 0 {
		activeFrame := vm.activeFrame
		vm.resumeFrame(vm.fp-1, activeFrame.returnAddr, activeFrame.returnSp)
		target, err := vm.ctl.Dispatch(&vm.activeFrame.region, payload)
		if err != nil {
			return false, vm.contractError(err)
		}
		if target.Action != region.ActionPropagate {
			return vm.perform("dispatch", target)
		}
	}
	vm.runLog.Debug().Msg("uncaught exception")
	switch p := payload.(type) {
	case region.Abort:
		err := errz.NewUncaught(p, vm.throwLoc, vm.throwStack).WithCause(p.Cause)
		err.Message = "execution cancelled"
		return false, err
	case *errz.StructuredError:
		return false, errz.NewUncaughtError(p)
	}
	return false, errz.NewUncaught(payload, vm.throwLoc, vm.throwStack)
}

// call activates a frame for fn. Problems with the call itself are thrown
// as runtime errors in the calling frame.
func (vm *VirtualMachine) call(callee any, args []any) (bool, error) {
	fn, ok := callee.(*bytecode.Function)
	if !ok {
		return vm.raise(vm.runtimeError("object is not callable (got %s)", typeName(callee)))
	}
	if err := checkCallArgs(fn, len(args)); err != nil {
		return vm.raise(vm.runtimeError("%v", err))
	}
	if vm.fp+1 >= vm.maxFrameDepth {
		return vm.raise(vm.runtimeError("max frame depth of %d exceeded", vm.maxFrameDepth))
	}
	vm.activateFunction(vm.fp+1, 0, fn, args)
	if !vm.observeCall(fn, len(args)) {
		return false, ErrHalted
	}
	return false, nil
}

// abort throws the context's error at the current instruction as a payload
// that only finally bodies see. Cancellation checks stay off while those
// bodies run.
func (vm *VirtualMachine) abort(ctx context.Context) (bool, error) {
	cause := ctx.Err()
	if cause == nil {
		cause = context.Canceled
	}
	vm.aborting = true
	vm.runLog.Debug().Err(cause).Msg("execution cancelled")
	return vm.raise(region.Abort{Cause: cause})
}

// GetIP returns the current instruction pointer.
func (vm *VirtualMachine) GetIP() int {
	return vm.ip
}

// RunID returns the identifier of the current or most recent run. It is
// attached to every log entry of that run.
func (vm *VirtualMachine) RunID() string {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	return vm.runID
}

// Output returns the values emitted by the most recent run.
func (vm *VirtualMachine) Output() []any {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if len(vm.output) == 0 {
		return nil
	}
	out := make([]any, len(vm.output))
	copy(out, vm.output)
	return out
}

// TOS returns the top-of-stack object if there is one, without modifying the
// stack. The returned bool value indicates whether there was a valid TOS. This
// only works on a stopped VM. If the VM is running, (nil, false) is returned.
func (vm *VirtualMachine) TOS() (any, bool) {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	if !vm.running && vm.sp >= 0 {
		return vm.stack[vm.sp], true
	}
	return nil, false
}

func (vm *VirtualMachine) pop() any {
	obj := vm.stack[vm.sp]
	vm.stack[vm.sp] = nil
	vm.sp--
	return obj
}

func (vm *VirtualMachine) push(obj any) {
	vm.sp++
	vm.stack[vm.sp] = obj
}

// truncateStack drops values until depth remain.
func (vm *VirtualMachine) truncateStack(depth int) {
	for vm.sp >= depth {
		vm.stack[vm.sp] = nil
		vm.sp--
	}
}

func (vm *VirtualMachine) fetch() uint16 {
	ip := vm.ip
	vm.ip++
	return uint16(vm.activeCode.Instructions[ip])
}

func (vm *VirtualMachine) fetchAddress() bytecode.Address {
	hi := vm.activeCode.Instructions[vm.ip]
	lo := vm.activeCode.Instructions[vm.ip+1]
	vm.ip += 2
	return bytecode.DecodeAddress(hi, lo)
}

// Resume the frame at the given frame pointer, restoring the given IP and SP.
func (vm *VirtualMachine) resumeFrame(fp, ip, sp int) *frame {
	vm.truncateStack(sp + 1)
	vm.fp = fp
	vm.ip = ip
	vm.activeFrame = &vm.frames[fp]
	vm.activeCode = vm.activeFrame.code
	return vm.activeFrame
}

// Activate a frame with the given code. This is used to begin running the
// entrypoint.
func (vm *VirtualMachine) activateCode(fp, ip int, code *code) *frame {
	vm.fp = fp
	vm.ip = ip
	vm.activeFrame = &vm.frames[fp]
	vm.activeFrame.ActivateCode(code)
	vm.activeCode = code
	return vm.activeFrame
}

// Activate a frame with the given function, to implement a function call.
func (vm *VirtualMachine) activateFunction(fp, ip int, fn *bytecode.Function, locals []any) *frame {
	code := vm.loadCode(fn.Code())
	returnAddr := vm.ip
	returnSp := vm.sp
	vm.fp = fp
	vm.ip = ip
	vm.activeFrame = &vm.frames[fp]
	vm.activeFrame.ActivateFunction(fn, code, returnAddr, returnSp, locals)
	vm.activeCode = code
	return vm.activeFrame
}

// Wrap the *bytecode.Code in a *vm.code object to make it usable by the VM.
func (vm *VirtualMachine) loadCode(bc *bytecode.Code) *code {
	if c, ok := vm.loadedCode[bc]; ok {
		return c
	}
	c := wrapCode(bc)
	vm.loadedCode[bc] = c
	return c
}

// captureStack builds a stack trace from the current call frames.
func (vm *VirtualMachine) captureStack() []errz.StackFrame {
	var frames []errz.StackFrame

	for i := vm.fp; i >= 0; i-- {
		frame := &vm.frames[i]
		if frame.code == nil {
			continue
		}
		funcName := frame.code.label()
		if frame.fn != nil && frame.fn.Name() == "" {
			funcName = "<anonymous>"
		}

		// The active frame reports its current instruction, callers report
		// their call site.
		ip := vm.ip - 1
		if i != vm.fp {
			ip = vm.frames[i+1].callSiteIP
		}
		if ip < 0 {
			ip = 0
		}
		frames = append(frames, errz.StackFrame{
			Function: funcName,
			Location: frame.code.LocationAt(ip),
		})
	}
	return frames
}

// getCurrentLocation returns the source location of the current instruction.
func (vm *VirtualMachine) getCurrentLocation() errz.SourceLocation {
	if vm.activeCode == nil {
		return errz.SourceLocation{}
	}
	ip := vm.ip - 1 // Current instruction (ip was already incremented)
	if ip < 0 {
		ip = 0
	}
	return vm.activeCode.LocationAt(ip)
}

// runtimeError creates a catchable runtime error with source location and
// stack trace.
func (vm *VirtualMachine) runtimeError(format string, args ...any) *errz.StructuredError {
	return errz.NewStructuredErrorf(errz.ErrRuntime, vm.getCurrentLocation(), vm.captureStack(), format, args...)
}

// contractError reports bytecode that broke the contract between the
// compiler and the VM. These are never catchable.
func (vm *VirtualMachine) contractError(err error) *errz.StructuredError {
	vm.runLog.Error().Err(err).Int("ip", vm.ip-1).Msg("contract violation")
	return errz.NewStructuredError(errz.ErrContract, err.Error(), vm.getCurrentLocation(), vm.captureStack()).WithCause(err)
}
