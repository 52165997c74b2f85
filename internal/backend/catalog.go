package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

type addressDTO struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Unit       string `json:"unit,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

func toAddressDTO(a domain.Address) addressDTO {
	return addressDTO{
		Street:     a.Street,
		Number:     a.Number,
		Unit:       a.Unit,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
	}
}

type coverageResponse struct {
	Coverage struct {
		Available    bool   `json:"available"`
		Technology   string `json:"technology"`
		MaxSpeedMbps int    `json:"maxSpeedMbps"`
		LocationID   string `json:"locationId"`
	} `json:"coverage"`
}

func (c *Client) ValidateCoverage(ctx context.Context, creds *Credentials, address domain.Address) (*domain.Coverage, error) {
	var resp coverageResponse
	if err := c.call(ctx, "validate_coverage", http.MethodPost, "/coverage", creds, toAddressDTO(address), &resp); err != nil {
		return nil, err
	}
	return &domain.Coverage{
		Available:    resp.Coverage.Available,
		Technology:   resp.Coverage.Technology,
		MaxSpeedMbps: resp.Coverage.MaxSpeedMbps,
		LocationID:   resp.Coverage.LocationID,
	}, nil
}

type planDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	SpeedMbps         int     `json:"speedMbps"`
	MonthlyPrice      float64 `json:"monthlyPrice"`
	RequiresEquipment bool    `json:"requiresEquipment"`
}

func (c *Client) ListPlans(ctx context.Context, creds *Credentials, locationID string) ([]domain.Plan, error) {
	var resp struct {
		Plans []planDTO `json:"plans"`
	}
	path := "/plans?locationId=" + url.QueryEscape(locationID)
	if err := c.call(ctx, "list_plans", http.MethodGet, path, creds, nil, &resp); err != nil {
		return nil, err
	}
	plans := make([]domain.Plan, len(resp.Plans))
	for i, p := range resp.Plans {
		plans[i] = domain.Plan{
			ID:                p.ID,
			Name:              p.Name,
			SpeedMbps:         p.SpeedMbps,
			MonthlyPrice:      p.MonthlyPrice,
			RequiresEquipment: p.RequiresEquipment,
		}
	}
	return plans, nil
}

func (c *Client) ListContracts(ctx context.Context, creds *Credentials, planID string) ([]domain.ContractTerm, error) {
	var resp struct {
		Contracts []struct {
			ID            string  `json:"id"`
			Months        int     `json:"months"`
			PermanenceFee float64 `json:"permanenceFee"`
			Description   string  `json:"description"`
		} `json:"contracts"`
	}
	path := "/plans/" + url.PathEscape(planID) + "/contracts"
	if err := c.call(ctx, "list_contracts", http.MethodGet, path, creds, nil, &resp); err != nil {
		return nil, err
	}
	terms := make([]domain.ContractTerm, len(resp.Contracts))
	for i, t := range resp.Contracts {
		terms[i] = domain.ContractTerm{
			ID:            t.ID,
			Months:        t.Months,
			PermanenceFee: t.PermanenceFee,
			Description:   t.Description,
		}
	}
	return terms, nil
}

func (c *Client) ListCatalogue(ctx context.Context, creds *Credentials, planID string) ([]domain.CatalogueProduct, error) {
	var resp struct {
		Products []struct {
			ID           string  `json:"id"`
			Name         string  `json:"name"`
			Kind         string  `json:"kind"`
			Price        float64 `json:"price"`
			Installments []int   `json:"installments"`
			Stock        int     `json:"stock"`
		} `json:"products"`
	}
	path := "/catalogue?planId=" + url.QueryEscape(planID)
	if err := c.call(ctx, "list_catalogue", http.MethodGet, path, creds, nil, &resp); err != nil {
		return nil, err
	}
	products := make([]domain.CatalogueProduct, len(resp.Products))
	for i, p := range resp.Products {
		products[i] = domain.CatalogueProduct{
			ID:           p.ID,
			Name:         p.Name,
			Kind:         domain.LineKind(p.Kind),
			Price:        p.Price,
			Installments: p.Installments,
			Stock:        p.Stock,
		}
	}
	return products, nil
}

func (c *Client) ListShippingOptions(ctx context.Context, creds *Credentials, locationID string) ([]domain.ShippingOption, error) {
	var resp struct {
		Options []struct {
			ID            string  `json:"id"`
			Name          string  `json:"name"`
			Price         float64 `json:"price"`
			EstimatedDays int     `json:"estimatedDays"`
		} `json:"options"`
	}
	path := "/shipping/options?locationId=" + url.QueryEscape(locationID)
	if err := c.call(ctx, "list_shipping_options", http.MethodGet, path, creds, nil, &resp); err != nil {
		return nil, err
	}
	options := make([]domain.ShippingOption, len(resp.Options))
	for i, o := range resp.Options {
		options[i] = domain.ShippingOption{
			ID:            o.ID,
			Name:          o.Name,
			Price:         o.Price,
			EstimatedDays: o.EstimatedDays,
		}
	}
	return options, nil
}
