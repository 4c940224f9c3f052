package core

import (
	"errors"
	"fmt"
)

var (
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrSafetyCapExceeded = errors.New("safety cap exceeded")
	ErrChainNotFound     = errors.New("chain not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrChainClosed       = errors.New("chain is closed")
	ErrInvalidSettings   = errors.New("invalid settings")
	ErrQuotesUnsupported = errors.New("broker does not accept quotes")
)

// ExecutionError represents a failure reported by the execution client
type ExecutionError struct {
	Op        string
	Symbol    string
	Err       error
	Temporary bool // transient transport failure, safe to retry
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution error: %s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is an execution error worth retrying
func IsTemporary(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr) && execErr.Temporary
}
