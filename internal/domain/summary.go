package domain

// Summary is the order overview shown before and after payment.
type Summary struct {
	SessionID   string          `json:"session_id"`
	Step        string          `json:"step"`
	Location    *Location       `json:"location,omitempty"`
	Plan        *Plan           `json:"plan,omitempty"`
	Contract    *ContractTerm   `json:"contract,omitempty"`
	PlanLine    *CartItem       `json:"plan_line,omitempty"`
	Equipment   *CartItem       `json:"equipment,omitempty"`
	Accessories []CartItem      `json:"accessories"`
	Shipping    *ShippingOption `json:"shipping,omitempty"`
	Upfront     float64         `json:"upfront_total"`
	Monthly     float64         `json:"monthly_total"`
	OrderID     string          `json:"order_id,omitempty"`
	OrderAmount float64         `json:"order_amount,omitempty"`
	Payment     *Payment        `json:"payment,omitempty"`
}

// BuildSummary classifies the mirrored cart. The plan line is the one the
// session added for its plan, the equipment is whatever that line points to
// as parent, and everything else counts as an accessory.
func BuildSummary(state *FlowState) *Summary {
	s := &Summary{
		SessionID:   state.SessionID,
		Step:        state.Step.String(),
		Location:    state.Location,
		Plan:        state.Plan,
		Contract:    state.Contract,
		Accessories: []CartItem{},
		OrderID:     state.OrderID,
		OrderAmount: state.OrderAmount,
		Payment:     state.Payment,
	}
	if state.Shipping != nil && !state.Shipping.Skipped {
		s.Shipping = state.Shipping.Option
	}

	planLine, hasPlan := FindCartItem(state.Cart, state.PlanCartID)
	if !hasPlan {
		for _, item := range state.Cart {
			if item.Kind == LineKindPlan {
				planLine, hasPlan = item, true
				break
			}
		}
	}
	if hasPlan {
		s.PlanLine = &planLine
	}

	parentID := state.EquipmentCartID
	if hasPlan && planLine.ParentCartID != "" {
		parentID = planLine.ParentCartID
	}

	for _, item := range state.Cart {
		switch {
		case hasPlan && item.CartID == planLine.CartID:
			continue
		case parentID != "" && item.CartID == parentID:
			equipment := item
			s.Equipment = &equipment
		default:
			s.Accessories = append(s.Accessories, item)
		}
	}

	if s.PlanLine != nil {
		s.Monthly += s.PlanLine.Subtotal()
	}
	lines := append([]CartItem{}, s.Accessories...)
	if s.Equipment != nil {
		lines = append(lines, *s.Equipment)
	}
	for _, item := range lines {
		if item.Installments > 1 {
			s.Monthly += item.Monthly()
			continue
		}
		s.Upfront += item.Subtotal()
	}
	if s.Shipping != nil {
		s.Upfront += s.Shipping.Price
	}
	return s
}
