package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnitNotFound    = errors.New("unit not found")
	ErrCardNotFound    = errors.New("card not found")
	ErrPartyNotFound   = errors.New("party not found")
	ErrUnknownAction   = errors.New("unknown action kind")
	ErrQueueClosed     = errors.New("action queue is closed")
	ErrQueueDrained    = errors.New("request dropped by emergency drain")
	ErrNoPendingChoice = errors.New("no pending interception to decide")
)

// ValidationError is a structured, user-surfaceable rule violation. It is
// returned as a value, never aborts the queue, and the requester is expected
// to resubmit a corrected request.
type ValidationError struct {
	Reason string
}

func (that *ValidationError) Error() string {
	return that.Reason
}

func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// AsValidation unwraps err into a ValidationError if it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation, true
	}
	return nil, false
}
