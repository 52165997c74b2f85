package domain

import (
	"encoding/json"
	"time"
)

type Step int

const (
	StepLocation Step = iota + 1
	StepPlan
	StepContract
	StepCatalogue
	StepForm
	StepShipping
	StepPayment
	StepConfirmation
)

var stepNames = map[Step]string{
	StepLocation:     "location",
	StepPlan:         "plan",
	StepContract:     "contract",
	StepCatalogue:    "catalogue",
	StepForm:         "form",
	StepShipping:     "shipping",
	StepPayment:      "payment",
	StepConfirmation: "confirmation",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Step) Valid() bool {
	return s >= StepLocation && s <= StepConfirmation
}

type Screen string

const (
	ScreenReady           Screen = "ready"
	ScreenNoCoverage      Screen = "no_coverage"
	ScreenAwaitingPayment Screen = "awaiting_payment"
	ScreenError           Screen = "error"
	ScreenDone            Screen = "done"
)

// Auth is the bearer token issued for one session and the correlation id
// forwarded with every backend call.
type Auth struct {
	Token         string    `json:"token" bson:"token"`
	CorrelationID string    `json:"correlation_id" bson:"correlation_id"`
	ExpiresAt     time.Time `json:"expires_at" bson:"expires_at"`
}

// Valid reports whether the token can still be used at now, keeping skew in reserve.
func (a *Auth) Valid(now time.Time, skew time.Duration) bool {
	if a == nil || a.Token == "" {
		return false
	}
	if a.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(skew).Before(a.ExpiresAt)
}

type FlowError struct {
	Code    string `json:"code" bson:"code"`
	Message string `json:"message" bson:"message"`
}

// Attempt is the operation that last failed, kept so Retry can replay it.
type Attempt struct {
	Op    string          `json:"op" bson:"op"`
	Input json.RawMessage `json:"input,omitempty" bson:"input,omitempty"`
}

type ShippingSelection struct {
	Option  *ShippingOption `json:"option,omitempty" bson:"option,omitempty"`
	Skipped bool            `json:"skipped" bson:"skipped"`
}

// FlowState is everything one checkout session knows. It is stored as a
// whole after every mutation.
type FlowState struct {
	SessionID       string             `json:"session_id" bson:"_id"`
	Step            Step               `json:"step" bson:"step"`
	Screen          Screen             `json:"screen" bson:"screen"`
	Language        string             `json:"language" bson:"language"`
	Auth            *Auth              `json:"-" bson:"auth,omitempty"`
	Location        *Location          `json:"location,omitempty" bson:"location,omitempty"`
	Plan            *Plan              `json:"plan,omitempty" bson:"plan,omitempty"`
	Contract        *ContractTerm      `json:"contract,omitempty" bson:"contract,omitempty"`
	Form            *CustomerForm      `json:"form,omitempty" bson:"form,omitempty"`
	Shipping        *ShippingSelection `json:"shipping,omitempty" bson:"shipping,omitempty"`
	Cart            []CartItem         `json:"cart" bson:"cart"`
	PlanCartID      string             `json:"plan_cart_id,omitempty" bson:"plan_cart_id,omitempty"`
	EquipmentCartID string             `json:"equipment_cart_id,omitempty" bson:"equipment_cart_id,omitempty"`
	OrderID         string             `json:"order_id,omitempty" bson:"order_id,omitempty"`
	OrderAmount     float64            `json:"order_amount" bson:"order_amount"`
	Payment         *Payment           `json:"payment,omitempty" bson:"payment,omitempty"`
	LastError       *FlowError         `json:"last_error,omitempty" bson:"last_error,omitempty"`
	LastAttempt     *Attempt           `json:"last_attempt,omitempty" bson:"last_attempt,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

// flowStateRecord carries the token through storage, which the public JSON
// view of FlowState leaves out.
type flowStateRecord struct {
	FlowState
	StoredAuth *Auth `json:"auth,omitempty"`
}

// MarshalRecord encodes the state for the session store, token included.
func (f *FlowState) MarshalRecord() ([]byte, error) {
	return json.Marshal(flowStateRecord{FlowState: *f, StoredAuth: f.Auth})
}

// UnmarshalRecord is the inverse of MarshalRecord.
func UnmarshalRecord(data []byte) (*FlowState, error) {
	var rec flowStateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	state := rec.FlowState
	state.Auth = rec.StoredAuth
	return &state, nil
}

func NewFlowState(sessionID, language string, now time.Time) *FlowState {
	return &FlowState{
		SessionID: sessionID,
		Step:      StepLocation,
		Screen:    ScreenReady,
		Language:  language,
		Cart:      []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Fail records a step failure; the step does not change.
func (f *FlowState) Fail(code, message string, attempt *Attempt) {
	f.Screen = ScreenError
	f.LastError = &FlowError{Code: code, Message: message}
	f.LastAttempt = attempt
}

// Succeed clears any previous failure and puts the step back in ready state.
func (f *FlowState) Succeed() {
	f.Screen = ScreenReady
	f.LastError = nil
	f.LastAttempt = nil
}

// HasOrder reports whether an order was created for this session; from then
// on the flow cannot go back.
func (f *FlowState) HasOrder() bool {
	return f.OrderID != ""
}

// NeedsShipping reports whether any mirrored cart line has to be delivered.
func (f *FlowState) NeedsShipping() bool {
	for _, item := range f.Cart {
		if item.Kind.Shippable() {
			return true
		}
	}
	return false
}
