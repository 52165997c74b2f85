package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

// StartSession creates a session at the location step and obtains its token.
func (s *CheckoutServiceImpl) StartSession(ctx context.Context, lang string) (*domain.FlowState, error) {
	state := domain.NewFlowState(uuid.NewString(), s.translator.Normalize(lang), s.now())
	if err := s.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.InfoContext(ctx, "checkout session started",
		logger.SessionID(state.SessionID),
		slog.String("language", state.Language))

	return s.ensureToken(ctx, state.SessionID)
}

func (s *CheckoutServiceImpl) ensureToken(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opStartSession, nil,
		func(context.Context, *backend.Credentials, *domain.FlowState) error {
			return nil
		})
}

func (s *CheckoutServiceImpl) GetSession(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	return s.store.Load(ctx, sessionID)
}

// CancelSession forgets the session. Cart lines are removed on a best effort
// basis unless they already belong to an order.
func (s *CheckoutServiceImpl) CancelSession(ctx context.Context, sessionID string) error {
	creds, credsErr := s.tokens.Credentials(ctx, sessionID)

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	if credsErr == nil && !state.HasOrder() {
		for _, item := range state.Cart {
			if err := s.backend.DeleteCartItem(ctx, creds, item.CartID); err != nil {
				slog.WarnContext(ctx, "failed to remove cart line on cancel",
					logger.SessionID(sessionID),
					slog.String("cart_id", item.CartID),
					logger.Error(err))
			}
		}
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	slog.InfoContext(ctx, "checkout session cancelled", logger.SessionID(sessionID), logger.Step(state.Step))
	return nil
}

// GoBack returns to the previous step. Not possible once an order exists.
func (s *CheckoutServiceImpl) GoBack(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	return s.withState(ctx, sessionID, "go_back", func(state *domain.FlowState) error {
		if state.HasOrder() {
			return reject(i18n.CodeOrderLocked, ErrOrderLocked)
		}
		prev := domain.PreviousStep(state)
		if prev == state.Step || !domain.CanTransitionTo(state.Step, prev) {
			return reject(i18n.CodeInvalidStep, ErrInvalidStep)
		}
		state.Step = prev
		state.Succeed()
		return nil
	})
}

func (s *CheckoutServiceImpl) Summary(ctx context.Context, sessionID string) (*domain.Summary, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return domain.BuildSummary(state), nil
}

// Retry replays the last failed operation with the input it was called with.
func (s *CheckoutServiceImpl) Retry(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	state, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	attempt := state.LastAttempt
	if attempt == nil {
		return state, s.rejected("retry", state, &rejection{code: i18n.CodeNothingToRetry, err: ErrNothingToRetry})
	}

	slog.InfoContext(ctx, "retrying checkout operation",
		logger.SessionID(sessionID),
		logger.Op(attempt.Op),
		logger.Step(state.Step))

	switch attempt.Op {
	case opStartSession:
		return s.ensureToken(ctx, sessionID)
	case opValidateLocation:
		var in domain.Address
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.ValidateLocation(ctx, sessionID, in)
	case opSelectPlan:
		var in planInput
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.SelectPlan(ctx, sessionID, in.PlanID)
	case opSelectContract:
		var in contractInput
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.SelectContract(ctx, sessionID, in.ContractID)
	case opAddEquipment:
		var in AddEquipmentRequest
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.AddEquipment(ctx, sessionID, in)
	case opRemoveEquipment:
		var in cartLineInput
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.RemoveEquipment(ctx, sessionID, in.CartID)
	case opConfirmCatalogue:
		return s.ConfirmCatalogue(ctx, sessionID)
	case opSubmitForm:
		var in domain.CustomerForm
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.SubmitForm(ctx, sessionID, in)
	case opSelectShipping:
		var in shippingInput
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.SelectShipping(ctx, sessionID, in.OptionID)
	case opSubmitPayment:
		return s.SubmitPayment(ctx, sessionID)
	case opPaymentOutcome:
		var in domain.PaymentOutcome
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.RecordPaymentOutcome(ctx, in)
	case opSyncCart:
		var in syncCartInput
		if err := decodeAttempt(attempt, &in); err != nil {
			return nil, err
		}
		return s.mutate(ctx, sessionID, opSyncCart, in, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
			return s.syncCart(ctx, creds, state, in.Next)
		})
	default:
		return state, s.rejected("retry", state, &rejection{code: i18n.CodeNothingToRetry, err: ErrNothingToRetry})
	}
}

func decodeAttempt(attempt *domain.Attempt, v any) error {
	if len(attempt.Input) == 0 {
		return fmt.Errorf("retry %s: %w: missing input", attempt.Op, ErrInvalidInput)
	}
	if err := json.Unmarshal(attempt.Input, v); err != nil {
		return fmt.Errorf("retry %s: decode input: %w", attempt.Op, err)
	}
	return nil
}
