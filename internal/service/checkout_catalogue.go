package service

import (
	"context"
	"log/slog"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

func (s *CheckoutServiceImpl) ListCatalogue(ctx context.Context, sessionID string) ([]domain.CatalogueProduct, error) {
	return query(ctx, s, sessionID, "list_catalogue", domain.StepCatalogue,
		func(creds *backend.Credentials, state *domain.FlowState) ([]domain.CatalogueProduct, error) {
			return s.backend.ListCatalogue(ctx, creds, state.Plan.ID)
		})
}

// AddEquipment adds a catalogue product. An equipment line becomes the parent
// of the plan line and replaces any equipment added before; accessories are
// added on their own.
func (s *CheckoutServiceImpl) AddEquipment(ctx context.Context, sessionID string, req AddEquipmentRequest) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opAddEquipment, req, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepCatalogue); err != nil {
			return err
		}
		if req.Quantity <= 0 {
			return reject(i18n.CodeInvalidInput, ErrInvalidInput, "quantity")
		}
		if req.Kind != "" && !req.Kind.Shippable() {
			return reject(i18n.CodeInvalidInput, ErrInvalidInput, "kind")
		}

		products, err := s.backend.ListCatalogue(ctx, creds, state.Plan.ID)
		if err != nil {
			return err
		}
		product, ok := findProduct(products, req.ProductID)
		if !ok {
			return reject(i18n.CodeUnknownProduct, ErrUnknownOption)
		}
		kind := req.Kind
		if kind == "" {
			kind = product.Kind
		}
		if kind != product.Kind || !kind.Shippable() {
			return reject(i18n.CodeInvalidInput, ErrInvalidInput, "kind")
		}
		if !product.AllowsInstallments(req.Installments) {
			return reject(i18n.CodeInvalidInstallments, ErrInvalidInput, req.Installments)
		}

		item := domain.CartItem{
			ProductID:    product.ID,
			Name:         product.Name,
			Quantity:     req.Quantity,
			UnitPrice:    product.Price,
			Installments: req.Installments,
			Kind:         kind,
		}

		if kind == domain.LineKindAccessory {
			if _, err := s.addLine(ctx, creds, state, item); err != nil {
				return err
			}
			return s.syncCart(ctx, creds, state, domain.StepCatalogue)
		}

		// only one equipment line parents the plan
		current, hasCurrent := domain.FindCartItem(state.Cart, state.EquipmentCartID)
		sameAsCurrent := hasCurrent && current.ProductID == item.ProductID &&
			current.Installments == item.Installments && current.Quantity == item.Quantity
		if !(sameAsCurrent && replaying(state, opAddEquipment)) {
			if state.EquipmentCartID != "" {
				if err := s.deleteLine(ctx, creds, state, state.EquipmentCartID); err != nil {
					return err
				}
				state.EquipmentCartID = ""
			}
			cartID, err := s.addLine(ctx, creds, state, item)
			if err != nil {
				return err
			}
			state.EquipmentCartID = cartID
			slog.InfoContext(ctx, "equipment linked to plan",
				logger.SessionID(sessionID),
				slog.String("product_id", item.ProductID),
				slog.String("cart_id", cartID))
		}

		if err := s.ensurePlanLine(ctx, creds, state); err != nil {
			return err
		}
		return s.syncCart(ctx, creds, state, domain.StepCatalogue)
	})
}

// RemoveEquipment deletes a non-plan cart line. When it was the plan's
// parent the plan line is added again without one.
func (s *CheckoutServiceImpl) RemoveEquipment(ctx context.Context, sessionID, cartID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opRemoveEquipment, cartLineInput{CartID: cartID}, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepCatalogue); err != nil {
			return err
		}

		item, found := domain.FindCartItem(state.Cart, cartID)
		if found && item.Kind == domain.LineKindPlan {
			return reject(i18n.CodeUnknownCartLine, ErrUnknownOption)
		}
		// a replayed removal may find its line already gone
		if !found && !replaying(state, opRemoveEquipment) {
			return reject(i18n.CodeUnknownCartLine, ErrUnknownOption)
		}

		if found {
			if err := s.deleteLine(ctx, creds, state, cartID); err != nil {
				return err
			}
		}
		if state.EquipmentCartID == cartID {
			state.EquipmentCartID = ""
		}

		if err := s.ensurePlanLine(ctx, creds, state); err != nil {
			return err
		}
		return s.syncCart(ctx, creds, state, domain.StepCatalogue)
	})
}

// ConfirmCatalogue closes the catalogue step. Plans that require equipment
// cannot continue without an equipment line.
func (s *CheckoutServiceImpl) ConfirmCatalogue(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	return s.mutate(ctx, sessionID, opConfirmCatalogue, nil, func(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
		if err := requireStep(state, domain.StepCatalogue); err != nil {
			return err
		}
		if state.Plan.RequiresEquipment && state.EquipmentCartID == "" {
			return reject(i18n.CodeEquipmentRequired, ErrEquipmentRequired)
		}
		return s.syncCart(ctx, creds, state, domain.StepForm)
	})
}

// ensurePlanLine makes sure the plan line exists and names the current
// equipment line as its parent, replacing it (delete then add) when not.
func (s *CheckoutServiceImpl) ensurePlanLine(ctx context.Context, creds *backend.Credentials, state *domain.FlowState) error {
	if state.Plan == nil {
		return nil
	}
	if state.PlanCartID != "" {
		line, ok := domain.FindCartItem(state.Cart, state.PlanCartID)
		if ok && line.ParentCartID == state.EquipmentCartID {
			return nil
		}
		if err := s.deleteLine(ctx, creds, state, state.PlanCartID); err != nil {
			return err
		}
		state.PlanCartID = ""
	}

	cartID, err := s.addLine(ctx, creds, state, domain.CartItem{
		ProductID:    state.Plan.ID,
		Name:         state.Plan.Name,
		Quantity:     1,
		UnitPrice:    state.Plan.MonthlyPrice,
		Kind:         domain.LineKindPlan,
		ParentCartID: state.EquipmentCartID,
	})
	if err != nil {
		return err
	}
	state.PlanCartID = cartID
	return nil
}

// addLine adds item remotely and to the local mirror.
func (s *CheckoutServiceImpl) addLine(ctx context.Context, creds *backend.Credentials, state *domain.FlowState, item domain.CartItem) (string, error) {
	cartID, err := s.backend.AddCartItem(ctx, creds, item)
	if err != nil {
		return "", err
	}
	item.CartID = cartID
	state.Cart = append(state.Cart, item)
	return cartID, nil
}

// deleteLine deletes a line remotely and from the local mirror.
func (s *CheckoutServiceImpl) deleteLine(ctx context.Context, creds *backend.Credentials, state *domain.FlowState, cartID string) error {
	if err := s.backend.DeleteCartItem(ctx, creds, cartID); err != nil {
		return err
	}
	kept := state.Cart[:0]
	for _, item := range state.Cart {
		if item.CartID != cartID {
			kept = append(kept, item)
		}
	}
	state.Cart = kept
	return nil
}

// syncCart re-reads the cart into the mirror and then moves to next. A
// failed read is retried on its own since the cart changes already landed.
func (s *CheckoutServiceImpl) syncCart(ctx context.Context, creds *backend.Credentials, state *domain.FlowState, next domain.Step) error {
	cart, err := s.backend.GetCart(ctx, creds)
	if err != nil {
		return &replayAs{op: opSyncCart, input: syncCartInput{Next: next}, err: err}
	}
	state.Cart = cart.Items
	if state.Cart == nil {
		state.Cart = []domain.CartItem{}
	}
	advance(state, next)
	return nil
}

func findProduct(products []domain.CatalogueProduct, id string) (domain.CatalogueProduct, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.CatalogueProduct{}, false
}
