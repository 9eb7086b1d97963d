// internal/agent/errors.go
package agent

import "errors"

// ErrorCode classifies why a command did not produce a normal result.
// Using a custom type ensures that only predefined constants can be used where an
// ErrorCode is expected.
type ErrorCode string

const (
	// -- Registry and argument errors --
	ErrCodeUnknownCommand    ErrorCode = "UNKNOWN_COMMAND"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeSandboxViolation  ErrorCode = "SANDBOX_VIOLATION"

	// -- Execution errors --
	ErrCodeExecutionFailure ErrorCode = "EXECUTION_FAILURE"
	ErrCodeTimeoutError     ErrorCode = "TIMEOUT_ERROR"
	ErrCodeOutputTooLarge   ErrorCode = "OUTPUT_TOO_LARGE"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

var (
	// ErrUserExit is returned by the gate when the operator chooses to stop.
	// It ends a run cleanly.
	ErrUserExit = errors.New("operator requested exit")
	// ErrInterrupted is returned when an interrupt arrives with no batch pending.
	ErrInterrupted = errors.New("interrupted")
)
