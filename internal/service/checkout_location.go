package service

import (
	"context"
	"log/slog"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

// ValidateLocation checks coverage at the address. Without coverage the
// session stays on the location step with the no_coverage screen.
func (s *CheckoutServiceImpl) ValidateLocation(ctx context.Context, sessionID string, address domain.Address) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opValidateLocation, address, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepLocation); err != nil {
			return err
		}
		if !address.Complete() {
			return reject(i18n.CodeInvalidInput, ErrInvalidInput, domain.ErrIncompleteAddress.Error())
		}

		coverage, err := s.backend.ValidateCoverage(ctx, creds, address)
		if err != nil {
			return err
		}
		if !coverage.Available {
			state.Location = nil
			state.Screen = domain.ScreenNoCoverage
			slog.InfoContext(ctx, "address without coverage", logger.SessionID(sessionID), slog.String("city", address.City))
			return nil
		}

		state.Location = &domain.Location{Address: address, Coverage: *coverage}
		advance(state, domain.StepPlan)
		return nil
	})
}
