package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
	"github.com/fjod/go_cart/fixed-checkout/internal/token"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

type stepFunc func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error

// mutate runs one state-changing operation: credentials first, then the
// operation under the session lock, then the state is stored whatever the
// outcome except for rejections.
func (s *CheckoutServiceImpl) mutate(ctx context.Context, sessionID, op string, input any, fn stepFunc) (*domain.FlowState, error) {
	creds, credsErr := s.tokens.Credentials(ctx, sessionID)
	if errors.Is(credsErr, session.ErrSessionNotFound) {
		return nil, credsErr
	}

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	runErr := credsErr
	if runErr == nil {
		runErr = fn(ctx, creds, state)
	}

	if errors.Is(runErr, errUnchanged) {
		// a replay that finds nothing to do still settles the failure
		if !replaying(state, op) {
			return state, nil
		}
		clearFailure(state)
		if err := s.save(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if runErr != nil {
		var rej *rejection
		if errors.As(runErr, &rej) {
			return state, s.rejected(op, state, rej)
		}
		stepErr := s.fail(ctx, op, input, state, runErr)
		if err := s.save(ctx, state); err != nil {
			return nil, err
		}
		return state, stepErr
	}

	clearFailure(state)
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "checkout step completed",
		logger.SessionID(sessionID),
		logger.Op(op),
		logger.Step(state.Step),
		slog.String("screen", string(state.Screen)))
	return state, nil
}

// withState runs a local operation that needs no backend call.
func (s *CheckoutServiceImpl) withState(ctx context.Context, sessionID, op string, fn func(state *domain.FlowState) error) (*domain.FlowState, error) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			return state, s.rejected(op, state, rej)
		}
		return nil, err
	}
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// query runs a read-only backend operation. Failures are reported but not
// recorded in the session, except that a refused token is dropped.
func query[T any](ctx context.Context, s *CheckoutServiceImpl, sessionID, op string, minStep domain.Step,
	call func(creds *backend.Credentials, state *domain.FlowState) (T, error)) (T, error) {

	var zero T
	creds, credsErr := s.tokens.Credentials(ctx, sessionID)
	if errors.Is(credsErr, session.ErrSessionNotFound) {
		return zero, credsErr
	}
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return zero, err
	}
	if credsErr != nil {
		return zero, s.stepError(op, state, credsErr)
	}
	if state.Step < minStep {
		return zero, s.rejected(op, state, &rejection{code: i18n.CodeInvalidStep, err: ErrInvalidStep})
	}

	out, err := call(creds, state)
	if err != nil {
		var rej *rejection
		if errors.As(err, &rej) {
			return zero, s.rejected(op, state, rej)
		}
		if errors.Is(err, backend.ErrUnauthorized) {
			s.dropToken(ctx, sessionID)
		}
		slog.WarnContext(ctx, "checkout query failed",
			logger.SessionID(sessionID),
			logger.Op(op),
			logger.Error(err))
		return zero, s.stepError(op, state, err)
	}
	return out, nil
}

// fail applies a step failure to state: localized error, error screen, and
// the attempt Retry will replay. The step does not change.
func (s *CheckoutServiceImpl) fail(ctx context.Context, op string, input any, state *domain.FlowState, err error) *StepError {
	token.Invalidate(state, err)

	replayOp, replayInput := op, input
	var replay *replayAs
	if errors.As(err, &replay) {
		replayOp, replayInput = replay.op, replay.input
	}

	attempt := &domain.Attempt{Op: replayOp}
	if replayInput != nil {
		raw, marshalErr := json.Marshal(replayInput)
		if marshalErr == nil {
			attempt.Input = raw
		}
	}

	stepErr := s.stepError(op, state, err)
	state.Fail(stepErr.Code, stepErr.Message, attempt)
	state.UpdatedAt = s.now()

	slog.WarnContext(ctx, "checkout step failed",
		logger.SessionID(state.SessionID),
		logger.Op(op),
		logger.Step(state.Step),
		slog.String("code", stepErr.Code),
		logger.Error(err))
	return stepErr
}

func (s *CheckoutServiceImpl) stepError(op string, state *domain.FlowState, err error) *StepError {
	code, args := classify(err)
	return &StepError{
		Op:      op,
		Code:    code,
		Message: s.translator.Message(state.Language, code, args...),
		Step:    state.Step,
		State:   state,
		Err:     err,
	}
}

func (s *CheckoutServiceImpl) rejected(op string, state *domain.FlowState, rej *rejection) *StepError {
	return &StepError{
		Op:      op,
		Code:    rej.code,
		Message: s.translator.Message(state.Language, rej.code, rej.args...),
		Step:    state.Step,
		State:   state,
		Err:     rej.err,
	}
}

func classify(err error) (string, []any) {
	var replay *replayAs
	if errors.As(err, &replay) && replay.code != "" {
		return replay.code, nil
	}
	var business *backend.BusinessError
	switch {
	case errors.As(err, &business):
		if business.Message != "" {
			return i18n.CodeBusinessErrorDetail, []any{business.Message}
		}
		return i18n.CodeBusinessError, nil
	case errors.Is(err, backend.ErrUnauthorized):
		return i18n.CodeSessionExpired, nil
	default:
		return i18n.CodeBackendUnavailable, nil
	}
}

func (s *CheckoutServiceImpl) save(ctx context.Context, state *domain.FlowState) error {
	state.UpdatedAt = s.now()
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *CheckoutServiceImpl) dropToken(ctx context.Context, sessionID string) {
	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return
	}
	if token.Invalidate(state, backend.ErrUnauthorized) {
		if err := s.save(ctx, state); err != nil {
			slog.ErrorContext(ctx, "failed to drop session token", logger.SessionID(sessionID), logger.Error(err))
		}
	}
}

// requireStep refuses operations that belong to another step, and anything
// once the flow is confirmed.
func requireStep(state *domain.FlowState, step domain.Step) error {
	if state.Step != step {
		return reject(i18n.CodeInvalidStep, ErrInvalidStep)
	}
	return nil
}

// advance moves the flow to next, which may be the current step.
func advance(state *domain.FlowState, next domain.Step) {
	if next != state.Step && domain.CanTransitionTo(state.Step, next) {
		state.Step = next
	}
	state.Screen = domain.ScreenReady
}

// clearFailure forgets the recorded failure and leaves the error screen.
func clearFailure(state *domain.FlowState) {
	state.LastError = nil
	state.LastAttempt = nil
	if state.Screen != domain.ScreenError {
		return
	}
	if state.Step == domain.StepConfirmation {
		state.Screen = domain.ScreenDone
	} else {
		state.Screen = domain.ScreenReady
	}
}

// replaying reports whether op is the attempt that failed last, meaning
// part of its remote effects may already be in place.
func replaying(state *domain.FlowState, op string) bool {
	return state.LastAttempt != nil && state.LastAttempt.Op == op
}
