package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

// OrderRequest is everything the backend needs to place the order.
type OrderRequest struct {
	Form             domain.CustomerForm
	LocationID       string
	PlanID           string
	ContractID       string
	ShippingOptionID string
}

type orderRequestDTO struct {
	CustomerType        string       `json:"customerType"`
	Personal            *personalDTO `json:"personal,omitempty"`
	Business            *businessDTO `json:"business,omitempty"`
	InstallationAddress addressDTO   `json:"installationAddress"`
	LocationID          string       `json:"locationId"`
	PlanID              string       `json:"planId"`
	ContractID          string       `json:"contractId,omitempty"`
	ShippingOptionID    string       `json:"shippingOptionId,omitempty"`
}

type personalDTO struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	DocumentID string `json:"documentId"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type businessDTO struct {
	LegalName    string `json:"legalName"`
	TaxID        string `json:"taxId"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
	ContactPhone string `json:"contactPhone"`
}

type CreatedOrder struct {
	OrderID string
	Amount  float64
}

func (c *Client) CreateOrder(ctx context.Context, creds *Credentials, order OrderRequest) (*CreatedOrder, error) {
	req := orderRequestDTO{
		CustomerType:        string(order.Form.CustomerType),
		InstallationAddress: toAddressDTO(order.Form.InstallationAddress),
		LocationID:          order.LocationID,
		PlanID:              order.PlanID,
		ContractID:          order.ContractID,
		ShippingOptionID:    order.ShippingOptionID,
	}
	if p := order.Form.Personal; p != nil {
		req.Personal = &personalDTO{
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			DocumentID: p.DocumentID,
			Email:      p.Email,
			Phone:      p.Phone,
		}
	}
	if b := order.Form.Business; b != nil {
		req.Business = &businessDTO{
			LegalName:    b.LegalName,
			TaxID:        b.TaxID,
			ContactName:  b.ContactName,
			ContactEmail: b.ContactEmail,
			ContactPhone: b.ContactPhone,
		}
	}

	var resp struct {
		OrderID string  `json:"orderId"`
		Amount  float64 `json:"amount"`
	}
	if err := c.call(ctx, "create_order", http.MethodPost, "/orders", creds, req, &resp); err != nil {
		return nil, err
	}
	if resp.OrderID == "" {
		return nil, fmt.Errorf("create_order: %w: missing orderId", ErrTransport)
	}
	return &CreatedOrder{OrderID: resp.OrderID, Amount: resp.Amount}, nil
}

func (c *Client) CreatePaymentForm(ctx context.Context, creds *Credentials, orderID string, amount float64, returnURL string) (*domain.PaymentHandle, error) {
	req := struct {
		OrderID   string  `json:"orderId"`
		Amount    float64 `json:"amount"`
		ReturnURL string  `json:"returnUrl"`
	}{orderID, amount, returnURL}

	var resp struct {
		FormURL string `json:"formUrl"`
		Handle  string `json:"handle"`
	}
	if err := c.call(ctx, "create_payment_form", http.MethodPost, "/payments/form", creds, req, &resp); err != nil {
		return nil, err
	}
	if resp.Handle == "" {
		return nil, fmt.Errorf("create_payment_form: %w: missing handle", ErrTransport)
	}
	return &domain.PaymentHandle{FormURL: resp.FormURL, Handle: resp.Handle}, nil
}

// PaymentResult is what RecordPayment reports back to the backend.
type PaymentResult struct {
	OrderID       string
	Status        domain.PaymentStatus
	TransactionID string
	Amount        float64
	Synthetic     bool
}

func (c *Client) RecordPayment(ctx context.Context, creds *Credentials, result PaymentResult) error {
	req := struct {
		OrderID       string  `json:"orderId"`
		Status        string  `json:"status"`
		TransactionID string  `json:"transactionId"`
		Amount        float64 `json:"amount"`
		Synthetic     bool    `json:"synthetic"`
	}{result.OrderID, string(result.Status), result.TransactionID, result.Amount, result.Synthetic}

	return c.call(ctx, "record_payment", http.MethodPost, "/payments/result", creds, req, nil)
}
