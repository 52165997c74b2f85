package service

import (
	"context"
	"log/slog"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

func (s *CheckoutServiceImpl) ListPlans(ctx context.Context, sessionID string) ([]domain.Plan, error) {
	return query(ctx, s, sessionID, "list_plans", domain.StepPlan,
		func(creds *backend.Credentials, state *domain.FlowState) ([]domain.Plan, error) {
			return s.backend.ListPlans(ctx, creds, state.Location.Coverage.LocationID)
		})
}

// SelectPlan puts the plan in the cart. A different plan already in the cart
// is deleted first; if that delete fails the new plan is not added.
func (s *CheckoutServiceImpl) SelectPlan(ctx context.Context, sessionID, planID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opSelectPlan, planInput{PlanID: planID}, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepPlan); err != nil {
			return err
		}
		if planID == "" {
			return reject(i18n.CodeUnknownPlan, ErrUnknownOption)
		}

		plans, err := s.backend.ListPlans(ctx, creds, state.Location.Coverage.LocationID)
		if err != nil {
			return err
		}
		plan, ok := findPlan(plans, planID)
		if !ok {
			return reject(i18n.CodeUnknownPlan, ErrUnknownOption)
		}

		if state.Plan == nil || state.Plan.ID != plan.ID {
			if state.PlanCartID != "" {
				if err := s.deleteLine(ctx, creds, state, state.PlanCartID); err != nil {
					return err
				}
				state.PlanCartID = ""
			}
			if state.Plan != nil {
				slog.InfoContext(ctx, "plan changed",
					logger.SessionID(sessionID),
					slog.String("from", state.Plan.ID),
					slog.String("to", plan.ID))
			}
			state.Plan = &plan
			state.Contract = nil
		}

		if err := s.ensurePlanLine(ctx, creds, state); err != nil {
			return err
		}
		return s.syncCart(ctx, creds, state, domain.StepContract)
	})
}

func (s *CheckoutServiceImpl) ListContracts(ctx context.Context, sessionID string) ([]domain.ContractTerm, error) {
	return query(ctx, s, sessionID, "list_contracts", domain.StepContract,
		func(creds *backend.Credentials, state *domain.FlowState) ([]domain.ContractTerm, error) {
			return s.backend.ListContracts(ctx, creds, state.Plan.ID)
		})
}

func (s *CheckoutServiceImpl) SelectContract(ctx context.Context, sessionID, contractID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opSelectContract, contractInput{ContractID: contractID}, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepContract); err != nil {
			return err
		}

		terms, err := s.backend.ListContracts(ctx, creds, state.Plan.ID)
		if err != nil {
			return err
		}
		for _, term := range terms {
			if term.ID == contractID {
				state.Contract = &term
				advance(state, domain.StepCatalogue)
				return nil
			}
		}
		return reject(i18n.CodeUnknownContract, ErrUnknownOption)
	})
}

func findPlan(plans []domain.Plan, id string) (domain.Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Plan{}, false
}
