package domain

var allowedForward = map[Step][]Step{
	StepLocation:  {StepPlan},
	StepPlan:      {StepContract},
	StepContract:  {StepCatalogue},
	StepCatalogue: {StepForm},
	StepForm:      {StepShipping, StepPayment}, // payment directly when nothing ships
	StepShipping:  {StepPayment},
	StepPayment:   {StepConfirmation},
}

// CanTransitionTo reports whether the flow may move from one step to another.
// Forward moves follow the table above; backward moves are allowed to any
// earlier step except out of confirmation.
func CanTransitionTo(from, to Step) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to < from {
		return from != StepConfirmation
	}
	for _, next := range allowedForward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PreviousStep is the step GoBack lands on, skipping shipping when it was skipped.
func PreviousStep(state *FlowState) Step {
	switch {
	case state.Step <= StepLocation:
		return StepLocation
	case state.Step == StepPayment && state.Shipping != nil && state.Shipping.Skipped:
		return StepForm
	default:
		return state.Step - 1
	}
}
