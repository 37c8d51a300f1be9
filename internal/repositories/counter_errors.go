package repositories

import "fmt"

// CounterErrorCode enumerates failure reasons for sequence allocation.
type CounterErrorCode string

const (
	// CounterErrorUnknown represents an unspecified failure.
	CounterErrorUnknown CounterErrorCode = "counter_unknown"
	// CounterErrorInvalidInput indicates an empty counter id or negative floor.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
)

// CounterError wraps sequence allocation failures with machine readable codes.
type CounterError struct {
	Op        string
	Code      CounterErrorCode
	CounterID string
	Message   string
	Err       error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.CounterID != "" {
		msg = fmt.Sprintf("%s (counter %s)", msg, e.CounterID)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, counterID, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{
		Code:      code,
		CounterID: counterID,
		Message:   message,
		Err:       err,
	}
}
