package region

import (
	"errors"
	"fmt"
)

// Contract violations. Each indicates a defect in the compiler or the
// dispatch loop rather than a runtime condition; the frame that detects one
// cannot continue.
var (
	ErrHandlerUnderflow  = errors.New("region exit without a matching entry")
	ErrNoRegionBoundary  = errors.New("no region boundary on the environment stack")
	ErrNoFinallyBoundary = errors.New("no finally boundary on the environment stack")
	ErrNoHandler         = errors.New("region has neither catch nor finally")
	ErrBadCompletion     = errors.New("unknown completion")
	ErrScopeUnderflow    = errors.New("scope pop without a matching push")
	ErrBlockMismatch     = errors.New("block exit does not match a block entry")
	ErrDepth             = errors.New("transfer target is deeper than the environment stack")
)

// ContractError records which operation detected a contract violation.
type ContractError struct {
	Op  string
	Err error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

func violation(op string, err error) error {
	return &ContractError{Op: op, Err: err}
}

// IsContractViolation reports whether err was raised by this package for a
// broken compiler or dispatch-loop contract.
func IsContractViolation(err error) bool {
	var ce *ContractError
	return errors.As(err, &ce)
}
