package service

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

var (
	ErrInvalidStep       = errors.New("operation not allowed at the current step")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownOption     = errors.New("selected option is not offered")
	ErrEquipmentRequired = errors.New("plan requires an equipment line")
	ErrNothingToRetry    = errors.New("no failed operation to retry")
	ErrOrderLocked       = errors.New("order already created")
	ErrPaymentMismatch   = errors.New("payment outcome does not match the pending order")
	ErrPaymentRejected   = errors.New("payment rejected")
	ErrPaymentExpired    = errors.New("payment window expired")

	// errUnchanged ends an operation that found nothing to do
	errUnchanged = errors.New("nothing changed")
)

// StepError is returned by every flow operation that could not complete.
// State is the session as it was stored after the failure.
type StepError struct {
	Op      string
	Code    string
	Message string
	Step    domain.Step
	State   *domain.FlowState
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s at step %s: %s: %v", e.Op, e.Step, e.Code, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// rejection is a request the flow refuses before any backend call; the
// session is left untouched.
type rejection struct {
	code string
	args []any
	err  error
}

func (r *rejection) Error() string {
	return r.err.Error()
}

func (r *rejection) Unwrap() error {
	return r.err
}

func reject(code string, err error, args ...any) error {
	return &rejection{code: code, args: args, err: err}
}

// replayAs makes Retry run a different operation than the one that failed,
// for failures that happen after the operation's own remote effects landed.
type replayAs struct {
	op    string
	input any
	code  string
	err   error
}

func (r *replayAs) Error() string {
	return r.err.Error()
}

func (r *replayAs) Unwrap() error {
	return r.err
}
