package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

// SubmitPayment creates the order. Orders with nothing to pay are settled
// with a synthetic approved payment; the rest wait for the payment provider
// on the awaiting_payment screen.
func (s *CheckoutServiceImpl) SubmitPayment(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opSubmitPayment, nil, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepPayment); err != nil {
			return err
		}

		order, err := s.backend.CreateOrder(ctx, creds, orderRequest(state))
		if err != nil {
			return err
		}
		state.OrderID = order.OrderID
		state.OrderAmount = order.Amount
		state.Payment = nil

		record := &domain.OrderRecord{
			SessionID: state.SessionID,
			OrderID:   order.OrderID,
			Status:    domain.OrderStatusPaymentPending,
			Amount:    order.Amount,
			Currency:  s.currency,
			Cart:      state.Cart,
		}

		if order.Amount <= 0 {
			return s.settleWithoutPayment(ctx, creds, state, record)
		}

		handle, err := s.backend.CreatePaymentForm(ctx, creds, order.OrderID, order.Amount, s.paymentReturnURL(sessionID))
		if err != nil {
			return err
		}
		record.PaymentHandle = handle.Handle
		if err := s.journal.SaveOrder(ctx, record); err != nil {
			return fmt.Errorf("journal order: %w", err)
		}

		state.Payment = &domain.Payment{Handle: handle}
		state.Screen = domain.ScreenAwaitingPayment
		slog.InfoContext(ctx, "awaiting payment",
			logger.SessionID(sessionID),
			logger.OrderID(order.OrderID),
			slog.Float64("amount", order.Amount))
		return nil
	})
}

func (s *CheckoutServiceImpl) settleWithoutPayment(ctx context.Context, creds *backend.Credentials, state *domain.FlowState, record *domain.OrderRecord) error {
	txID := "zero-amount-" + record.OrderID
	err := s.backend.RecordPayment(ctx, creds, backend.PaymentResult{
		OrderID:       record.OrderID,
		Status:        domain.PaymentApproved,
		TransactionID: txID,
		Amount:        record.Amount,
		Synthetic:     true,
	})
	if err != nil {
		return err
	}
	if err := s.journal.SaveOrder(ctx, record); err != nil {
		return fmt.Errorf("journal order: %w", err)
	}
	if err := s.journal.CompleteOrder(ctx, record.OrderID, txID); err != nil {
		return fmt.Errorf("journal completion: %w", err)
	}

	now := s.now()
	state.Payment = &domain.Payment{
		Status:        domain.PaymentApproved,
		TransactionID: txID,
		Synthetic:     true,
		RecordedAt:    &now,
	}
	advance(state, domain.StepConfirmation)
	state.Screen = domain.ScreenDone
	slog.InfoContext(ctx, "order confirmed without payment",
		logger.SessionID(state.SessionID),
		logger.OrderID(record.OrderID))
	return nil
}

// RecordPaymentOutcome applies the provider's verdict for the pending order.
// Outcomes arriving after confirmation are ignored; outcomes for an order
// whose payment window expired send the customer back to SubmitPayment.
func (s *CheckoutServiceImpl) RecordPaymentOutcome(ctx context.Context, outcome domain.PaymentOutcome) (*domain.FlowState, error) {
	sessionID := outcome.SessionID
	if state, err := s.settledOutcome(ctx, outcome); state != nil || err != nil {
		return state, err
	}
	return s.mutate(ctx, sessionID, opPaymentOutcome, outcome, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if state.Step == domain.StepConfirmation {
			slog.InfoContext(ctx, "ignoring payment outcome after confirmation",
				logger.SessionID(sessionID),
				logger.OrderID(outcome.OrderID),
				slog.String("status", string(outcome.Status)))
			return errUnchanged
		}
		if !outcome.Status.Valid() {
			return reject(i18n.CodeInvalidInput, ErrInvalidInput, "status")
		}
		if duplicateOutcome(state, outcome) {
			slog.InfoContext(ctx, "ignoring duplicate payment outcome",
				logger.SessionID(sessionID),
				logger.OrderID(outcome.OrderID))
			return errUnchanged
		}
		if state.Step != domain.StepPayment || !state.HasOrder() || state.OrderID != outcome.OrderID {
			return reject(i18n.CodePaymentMismatch, ErrPaymentMismatch)
		}
		if state.Screen != domain.ScreenAwaitingPayment && !replaying(state, opPaymentOutcome) {
			return reject(i18n.CodePaymentMismatch, ErrPaymentMismatch)
		}

		record, err := s.journal.GetOrder(ctx, outcome.OrderID)
		if err != nil {
			return fmt.Errorf("journal lookup: %w", err)
		}
		if record.Status == domain.OrderStatusExpired {
			slog.WarnContext(ctx, "payment outcome for expired order",
				logger.SessionID(sessionID),
				logger.OrderID(outcome.OrderID),
				slog.String("status", string(outcome.Status)))
			state.OrderID = ""
			state.OrderAmount = 0
			state.Payment = nil
			// a new attempt reopens the order
			return &replayAs{
				op:   opSubmitPayment,
				code: i18n.CodePaymentExpired,
				err:  fmt.Errorf("order %s: %w", outcome.OrderID, ErrPaymentExpired),
			}
		}

		err = s.backend.RecordPayment(ctx, creds, backend.PaymentResult{
			OrderID:       outcome.OrderID,
			Status:        outcome.Status,
			TransactionID: outcome.TransactionID,
			Amount:        state.OrderAmount,
		})
		if err != nil {
			return err
		}

		now := s.now()
		payment := state.Payment
		if payment == nil {
			payment = &domain.Payment{}
		}
		payment.Status = outcome.Status
		payment.TransactionID = outcome.TransactionID
		payment.RecordedAt = &now
		state.Payment = payment

		if outcome.Status == domain.PaymentRejected {
			if err := s.journal.RejectOrder(ctx, outcome.OrderID, outcome.Reason); err != nil {
				return fmt.Errorf("journal rejection: %w", err)
			}
			// a new attempt creates the order again
			return &replayAs{
				op:   opSubmitPayment,
				code: i18n.CodePaymentRejected,
				err:  fmt.Errorf("%w: %s", ErrPaymentRejected, outcome.Reason),
			}
		}

		if err := s.journal.CompleteOrder(ctx, outcome.OrderID, outcome.TransactionID); err != nil {
			return fmt.Errorf("journal completion: %w", err)
		}
		advance(state, domain.StepConfirmation)
		state.Screen = domain.ScreenDone
		slog.InfoContext(ctx, "payment approved",
			logger.SessionID(sessionID),
			logger.OrderID(outcome.OrderID),
			slog.String("transaction_id", outcome.TransactionID))
		return nil
	})
}

// settledOutcome answers outcomes for confirmed sessions without asking for
// credentials, settling a failure left by an earlier delivery. It returns a
// nil state when the outcome needs the full flow.
func (s *CheckoutServiceImpl) settledOutcome(ctx context.Context, outcome domain.PaymentOutcome) (*domain.FlowState, error) {
	unlock := s.locker.Lock(outcome.SessionID)
	defer unlock()

	state, err := s.store.Load(ctx, outcome.SessionID)
	if err != nil {
		return nil, err
	}
	if state.Step != domain.StepConfirmation {
		return nil, nil
	}

	slog.InfoContext(ctx, "ignoring payment outcome after confirmation",
		logger.SessionID(outcome.SessionID),
		logger.OrderID(outcome.OrderID),
		slog.String("status", string(outcome.Status)))
	if state.LastError == nil && state.LastAttempt == nil {
		return state, nil
	}
	clearFailure(state)
	if err := s.save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func duplicateOutcome(state *domain.FlowState, outcome domain.PaymentOutcome) bool {
	p := state.Payment
	return p != nil && p.RecordedAt != nil &&
		state.OrderID == outcome.OrderID &&
		p.Status == outcome.Status &&
		p.TransactionID == outcome.TransactionID &&
		!replaying(state, opPaymentOutcome)
}

func orderRequest(state *domain.FlowState) backend.OrderRequest {
	req := backend.OrderRequest{
		Form:       *state.Form,
		LocationID: state.Location.Coverage.LocationID,
		PlanID:     state.Plan.ID,
	}
	if state.Contract != nil {
		req.ContractID = state.Contract.ID
	}
	if state.Shipping != nil && state.Shipping.Option != nil {
		req.ShippingOptionID = state.Shipping.Option.ID
	}
	return req
}

func (s *CheckoutServiceImpl) paymentReturnURL(sessionID string) string {
	if s.returnURL == "" {
		return ""
	}
	u, err := url.Parse(s.returnURL)
	if err != nil {
		return s.returnURL
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}
