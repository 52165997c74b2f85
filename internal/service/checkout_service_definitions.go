package service

import (
	"context"
	"time"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
)

// Backend is the remote commerce backend as the flow uses it.
type Backend interface {
	ValidateCoverage(ctx context.Context, creds *backend.Credentials, address domain.Address) (*domain.Coverage, error)
	ListPlans(ctx context.Context, creds *backend.Credentials, locationID string) ([]domain.Plan, error)
	ListContracts(ctx context.Context, creds *backend.Credentials, planID string) ([]domain.ContractTerm, error)
	ListCatalogue(ctx context.Context, creds *backend.Credentials, planID string) ([]domain.CatalogueProduct, error)
	ListShippingOptions(ctx context.Context, creds *backend.Credentials, locationID string) ([]domain.ShippingOption, error)
	AddCartItem(ctx context.Context, creds *backend.Credentials, item domain.CartItem) (string, error)
	DeleteCartItem(ctx context.Context, creds *backend.Credentials, cartID string) error
	GetCart(ctx context.Context, creds *backend.Credentials) (*backend.Cart, error)
	CreateOrder(ctx context.Context, creds *backend.Credentials, order backend.OrderRequest) (*backend.CreatedOrder, error)
	CreatePaymentForm(ctx context.Context, creds *backend.Credentials, orderID string, amount float64, returnURL string) (*domain.PaymentHandle, error)
	RecordPayment(ctx context.Context, creds *backend.Credentials, result backend.PaymentResult) error
}

// Tokens hands out the credentials of a session, issuing a token when needed.
type Tokens interface {
	Credentials(ctx context.Context, sessionID string) (*backend.Credentials, error)
}

// Journal records orders and their payment state.
type Journal interface {
	GetOrder(ctx context.Context, orderID string) (*domain.OrderRecord, error)
	SaveOrder(ctx context.Context, order *domain.OrderRecord) error
	CompleteOrder(ctx context.Context, orderID, transactionID string) error
	RejectOrder(ctx context.Context, orderID, reason string) error
}

type CheckoutService interface {
	StartSession(ctx context.Context, lang string) (*domain.FlowState, error)
	GetSession(ctx context.Context, sessionID string) (*domain.FlowState, error)
	CancelSession(ctx context.Context, sessionID string) error

	ValidateLocation(ctx context.Context, sessionID string, address domain.Address) (*domain.FlowState, error)
	ListPlans(ctx context.Context, sessionID string) ([]domain.Plan, error)
	SelectPlan(ctx context.Context, sessionID, planID string) (*domain.FlowState, error)
	ListContracts(ctx context.Context, sessionID string) ([]domain.ContractTerm, error)
	SelectContract(ctx context.Context, sessionID, contractID string) (*domain.FlowState, error)
	ListCatalogue(ctx context.Context, sessionID string) ([]domain.CatalogueProduct, error)
	AddEquipment(ctx context.Context, sessionID string, req AddEquipmentRequest) (*domain.FlowState, error)
	RemoveEquipment(ctx context.Context, sessionID, cartID string) (*domain.FlowState, error)
	ConfirmCatalogue(ctx context.Context, sessionID string) (*domain.FlowState, error)
	SubmitForm(ctx context.Context, sessionID string, form domain.CustomerForm) (*domain.FlowState, error)
	ListShippingOptions(ctx context.Context, sessionID string) ([]domain.ShippingOption, error)
	SelectShipping(ctx context.Context, sessionID, optionID string) (*domain.FlowState, error)
	SubmitPayment(ctx context.Context, sessionID string) (*domain.FlowState, error)
	RecordPaymentOutcome(ctx context.Context, outcome domain.PaymentOutcome) (*domain.FlowState, error)

	Retry(ctx context.Context, sessionID string) (*domain.FlowState, error)
	GoBack(ctx context.Context, sessionID string) (*domain.FlowState, error)
	Summary(ctx context.Context, sessionID string) (*domain.Summary, error)
}

// AddEquipmentRequest adds a catalogue product to the cart. Kind defaults
// to the product's own kind.
type AddEquipmentRequest struct {
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	Installments int             `json:"installments"`
	Kind         domain.LineKind `json:"kind,omitempty"`
}

type Config struct {
	PaymentReturnURL string
	Currency         string
}

type CheckoutServiceImpl struct {
	backend    Backend
	tokens     Tokens
	store      session.Store
	locker     *session.Locker
	journal    Journal
	translator *i18n.Translator
	returnURL  string
	currency   string
	now        func() time.Time
}

func NewCheckoutService(
	commerce Backend,
	tokens Tokens,
	store session.Store,
	locker *session.Locker,
	journal Journal,
	translator *i18n.Translator,
	cfg Config) *CheckoutServiceImpl {

	currency := cfg.Currency
	if currency == "" {
		currency = "CLP"
	}
	return &CheckoutServiceImpl{
		backend:    commerce,
		tokens:     tokens,
		store:      store,
		locker:     locker,
		journal:    journal,
		translator: translator,
		returnURL:  cfg.PaymentReturnURL,
		currency:   currency,
		now:        time.Now,
	}
}

// operation names, also stored as the replayable attempt
const (
	opStartSession     = "start_session"
	opValidateLocation = "validate_location"
	opSelectPlan       = "select_plan"
	opSelectContract   = "select_contract"
	opAddEquipment     = "add_equipment"
	opRemoveEquipment  = "remove_equipment"
	opConfirmCatalogue = "confirm_catalogue"
	opSubmitForm       = "submit_form"
	opSelectShipping   = "select_shipping"
	opSubmitPayment    = "submit_payment"
	opPaymentOutcome   = "record_payment_outcome"
	opSyncCart         = "sync_cart"
)

type planInput struct {
	PlanID string `json:"plan_id"`
}

type contractInput struct {
	ContractID string `json:"contract_id"`
}

type cartLineInput struct {
	CartID string `json:"cart_id"`
}

type shippingInput struct {
	OptionID string `json:"option_id"`
}

type syncCartInput struct {
	Next domain.Step `json:"next"`
}
