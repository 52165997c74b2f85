package service

import (
	"context"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
)

// SubmitForm stores the customer data. The shipping step is skipped when
// nothing in the cart is delivered.
func (s *CheckoutServiceImpl) SubmitForm(ctx context.Context, sessionID string, form domain.CustomerForm) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opSubmitForm, form, func(_ context.Context, _ *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepForm); err != nil {
			return err
		}
		if err := form.Validate(); err != nil {
			return reject(i18n.CodeInvalidForm, err, err.Error())
		}

		state.Form = &form
		if !state.NeedsShipping() {
			state.Shipping = &domain.ShippingSelection{Skipped: true}
			advance(state, domain.StepPayment)
			return nil
		}
		if state.Shipping != nil && state.Shipping.Skipped {
			state.Shipping = nil
		}
		advance(state, domain.StepShipping)
		return nil
	})
}

func (s *CheckoutServiceImpl) ListShippingOptions(ctx context.Context, sessionID string) ([]domain.ShippingOption, error) {
	return query(ctx, s, sessionID, "list_shipping_options", domain.StepShipping,
		func(creds *backend.Credentials, state *domain.FlowState) ([]domain.ShippingOption, error) {
			return s.backend.ListShippingOptions(ctx, creds, state.Location.Coverage.LocationID)
		})
}

func (s *CheckoutServiceImpl) SelectShipping(ctx context.Context, sessionID, optionID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opSelectShipping, shippingInput{OptionID: optionID}, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepShipping); err != nil {
			return err
		}

		options, err := s.backend.ListShippingOptions(ctx, creds, state.Location.Coverage.LocationID)
		if err != nil {
			return err
		}
		for _, option := range options {
			if option.ID == optionID {
				state.Shipping = &domain.ShippingSelection{Option: &option}
				advance(state, domain.StepPayment)
				return nil
			}
		}
		return reject(i18n.CodeUnknownShipping, ErrUnknownOption)
	})
}
