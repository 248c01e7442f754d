package vm

import "github.com/rs/zerolog"

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithLogger sets the logger used for run and region tracing. Region
// transitions are logged at debug level. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.log = logger
	}
}

// WithContextCheckInterval sets how often the VM checks ctx.Done() during
// execution. The interval is specified in number of instructions. A value of 0
// disables deterministic checking, relying only on the background goroutine
// that monitors the context. The default is DefaultContextCheckInterval (1000).
//
// Cancellation stops the run where it is: no catch or finally body runs.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithObserver sets an observer for VM execution events.
// The observer receives callbacks for instruction steps, function calls,
// function returns and region transitions.
//
// Observer methods are called synchronously during execution, so
// implementations should be fast to avoid impacting performance.
// Returning false from any observer method halts execution immediately.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
		if observer != nil {
			vm.observerCfg = NormalizeConfig(observer.Config())
		}
	}
}

// WithValidation controls whether code is checked with bytecode.Validate
// before it runs. It is on by default.
func WithValidation(enabled bool) Option {
	return func(vm *VirtualMachine) {
		vm.validate = enabled
	}
}

// WithMaxFrameDepth limits the call stack depth. Values outside
// 1..MaxFrameDepth are clamped.
func WithMaxFrameDepth(depth int) Option {
	return func(vm *VirtualMachine) {
		if depth < 1 {
			depth = 1
		}
		if depth > MaxFrameDepth {
			depth = MaxFrameDepth
		}
		vm.maxFrameDepth = depth
	}
}

// WithEmitter sets a function that receives every emitted value as it is
// produced. Emitted values are also collected; see Output.
func WithEmitter(fn func(value any)) Option {
	return func(vm *VirtualMachine) {
		vm.emitter = fn
	}
}
