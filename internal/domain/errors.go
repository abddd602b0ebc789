package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidOrder    = errors.New("invalid order parameters")
	ErrOutOfRange      = errors.New("index out of range")
	ErrLockHeld        = errors.New("lock already held")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidRequest  = errors.New("invalid request")
)

// StrategyError wraps a failure raised while a strategy analysed a bar.
type StrategyError struct {
	Step int
	Err  error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy error at step %d: %v", e.Step, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// RiskError wraps a failure raised while sizing a proposal.
type RiskError struct {
	Step int
	Err  error
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk error at step %d: %v", e.Step, e.Err)
}

func (e *RiskError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure raised while turning a decision into orders.
type ExecutionError struct {
	Step int
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error at step %d: %v", e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// EngineError wraps a failure raised by the trading engine, typically
// ErrInvalidOrder from the book.
type EngineError struct {
	Step int
	Err  error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error at step %d: %v", e.Step, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
