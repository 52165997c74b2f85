package domain

import (
	"errors"
	"net/mail"
	"strings"
)

type CustomerType string

const (
	CustomerPersonal CustomerType = "personal"
	CustomerBusiness CustomerType = "business"
)

type PersonalData struct {
	FirstName  string `json:"first_name" bson:"first_name"`
	LastName   string `json:"last_name" bson:"last_name"`
	DocumentID string `json:"document_id" bson:"document_id"`
	Email      string `json:"email" bson:"email"`
	Phone      string `json:"phone" bson:"phone"`
}

type BusinessData struct {
	LegalName    string `json:"legal_name" bson:"legal_name"`
	TaxID        string `json:"tax_id" bson:"tax_id"`
	ContactName  string `json:"contact_name" bson:"contact_name"`
	ContactEmail string `json:"contact_email" bson:"contact_email"`
	ContactPhone string `json:"contact_phone" bson:"contact_phone"`
}

type CustomerForm struct {
	CustomerType        CustomerType  `json:"customer_type" bson:"customer_type"`
	Personal            *PersonalData `json:"personal,omitempty" bson:"personal,omitempty"`
	Business            *BusinessData `json:"business,omitempty" bson:"business,omitempty"`
	InstallationAddress Address       `json:"installation_address" bson:"installation_address"`
}

var (
	ErrUnknownCustomerType  = errors.New("unknown customer type")
	ErrMissingPersonalData  = errors.New("personal data is required")
	ErrMissingBusinessData  = errors.New("business data is required")
	ErrIncompleteAddress    = errors.New("installation address is incomplete")
	ErrInvalidEmail         = errors.New("email is invalid")
	ErrMissingRequiredField = errors.New("required field is missing")
)

// Validate checks the fields the selected customer type requires.
func (f *CustomerForm) Validate() error {
	switch f.CustomerType {
	case CustomerPersonal:
		p := f.Personal
		if p == nil {
			return ErrMissingPersonalData
		}
		if blank(p.FirstName, p.LastName, p.DocumentID, p.Phone) {
			return ErrMissingRequiredField
		}
		if !validEmail(p.Email) {
			return ErrInvalidEmail
		}
	case CustomerBusiness:
		b := f.Business
		if b == nil {
			return ErrMissingBusinessData
		}
		if blank(b.LegalName, b.TaxID, b.ContactName, b.ContactPhone) {
			return ErrMissingRequiredField
		}
		if !validEmail(b.ContactEmail) {
			return ErrInvalidEmail
		}
	default:
		return ErrUnknownCustomerType
	}

	if !f.InstallationAddress.Complete() {
		return ErrIncompleteAddress
	}
	return nil
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
