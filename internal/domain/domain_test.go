package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Step
		to   Step
		want bool
	}{
		{"location to plan", StepLocation, StepPlan, true},
		{"skip plan", StepLocation, StepContract, false},
		{"form to shipping", StepForm, StepShipping, true},
		{"form straight to payment", StepForm, StepPayment, true},
		{"payment to confirmation", StepPayment, StepConfirmation, true},
		{"back from catalogue", StepCatalogue, StepPlan, true},
		{"back from confirmation", StepConfirmation, StepPayment, false},
		{"same step", StepPlan, StepPlan, false},
		{"invalid step", Step(0), StepPlan, false},
		{"out of range", StepPayment, Step(9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransitionTo(tt.from, tt.to))
		})
	}
}

func TestPreviousStep_SkipsSkippedShipping(t *testing.T) {
	state := &FlowState{Step: StepPayment, Shipping: &ShippingSelection{Skipped: true}}
	assert.Equal(t, StepForm, PreviousStep(state))

	state.Shipping = &ShippingSelection{Option: &ShippingOption{ID: "std"}}
	assert.Equal(t, StepShipping, PreviousStep(state))

	state.Step = StepLocation
	assert.Equal(t, StepLocation, PreviousStep(state))
}

func TestCanOrderTransitionTo(t *testing.T) {
	assert.True(t, CanOrderTransitionTo(OrderStatusPaymentPending, OrderStatusPaid))
	assert.True(t, CanOrderTransitionTo(OrderStatusRejected, OrderStatusPaymentPending))
	assert.False(t, CanOrderTransitionTo(OrderStatusPaid, OrderStatusRejected))
	assert.False(t, CanOrderTransitionTo(OrderStatusExpired, OrderStatusPaid))
	assert.True(t, CanOrderTransitionTo(OrderStatusExpired, OrderStatusPaymentPending))
	assert.True(t, OrderStatusPaid.IsTerminal())
	assert.False(t, OrderStatusRejected.IsTerminal())
	assert.False(t, OrderStatusExpired.IsTerminal())
}

func TestAuthValid(t *testing.T) {
	now := time.Now()
	var missing *Auth
	assert.False(t, missing.Valid(now, 0))
	assert.False(t, (&Auth{}).Valid(now, 0))
	assert.True(t, (&Auth{Token: "t"}).Valid(now, time.Minute))
	assert.True(t, (&Auth{Token: "t", ExpiresAt: now.Add(time.Hour)}).Valid(now, time.Minute))
	assert.False(t, (&Auth{Token: "t", ExpiresAt: now.Add(30 * time.Second)}).Valid(now, time.Minute))
}

func TestFlowStateRecord_KeepsToken(t *testing.T) {
	state := NewFlowState("s-1", "es", time.Now())
	state.Auth = &Auth{Token: "secret", CorrelationID: "corr"}

	data, err := state.MarshalRecord()
	require.NoError(t, err)

	restored, err := UnmarshalRecord(data)
	require.NoError(t, err)
	require.NotNil(t, restored.Auth)
	assert.Equal(t, "secret", restored.Auth.Token)
	assert.Equal(t, StepLocation, restored.Step)
	assert.Equal(t, "s-1", restored.SessionID)
}

func TestNeedsShipping(t *testing.T) {
	state := NewFlowState("s-1", "es", time.Now())
	state.Cart = []CartItem{{CartID: "c1", Kind: LineKindPlan}}
	assert.False(t, state.NeedsShipping())

	state.Cart = append(state.Cart, CartItem{CartID: "c2", Kind: LineKindAccessory})
	assert.True(t, state.NeedsShipping())
}

func TestFailAndSucceed(t *testing.T) {
	state := NewFlowState("s-1", "es", time.Now())
	state.Fail("backend_unavailable", "try again", &Attempt{Op: "select_plan"})
	assert.Equal(t, ScreenError, state.Screen)
	assert.Equal(t, "backend_unavailable", state.LastError.Code)
	assert.Equal(t, StepLocation, state.Step)

	state.Succeed()
	assert.Equal(t, ScreenReady, state.Screen)
	assert.Nil(t, state.LastError)
	assert.Nil(t, state.LastAttempt)
}

func TestCustomerFormValidate(t *testing.T) {
	address := Address{Street: "Av. Siempre Viva", Number: "742", City: "Springfield"}
	tests := []struct {
		name string
		form CustomerForm
		err  error
	}{
		{
			name: "valid personal",
			form: CustomerForm{
				CustomerType:        CustomerPersonal,
				Personal:            &PersonalData{FirstName: "Ana", LastName: "Diaz", DocumentID: "123", Email: "ana@example.com", Phone: "555"},
				InstallationAddress: address,
			},
		},
		{
			name: "business without business data",
			form: CustomerForm{CustomerType: CustomerBusiness, InstallationAddress: address},
			err:  ErrMissingBusinessData,
		},
		{
			name: "bad email",
			form: CustomerForm{
				CustomerType:        CustomerBusiness,
				Business:            &BusinessData{LegalName: "ACME", TaxID: "76", ContactName: "Bo", ContactEmail: "nope", ContactPhone: "555"},
				InstallationAddress: address,
			},
			err: ErrInvalidEmail,
		},
		{
			name: "incomplete address",
			form: CustomerForm{
				CustomerType: CustomerPersonal,
				Personal:     &PersonalData{FirstName: "Ana", LastName: "Diaz", DocumentID: "123", Email: "ana@example.com", Phone: "555"},
			},
			err: ErrIncompleteAddress,
		},
		{
			name: "unknown type",
			form: CustomerForm{CustomerType: "alien"},
			err:  ErrUnknownCustomerType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.form.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCatalogueProduct_AllowsInstallments(t *testing.T) {
	p := CatalogueProduct{Installments: []int{6, 12}}
	assert.True(t, p.AllowsInstallments(1))
	assert.True(t, p.AllowsInstallments(12))
	assert.False(t, p.AllowsInstallments(24))
}
