package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

type cartItemDTO struct {
	CartID       string  `json:"cartId,omitempty"`
	ProductID    string  `json:"productId"`
	Name         string  `json:"name,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unitPrice"`
	Installments int     `json:"installments"`
	Kind         string  `json:"kind"`
	ParentCartID string  `json:"parentCartId,omitempty"`
}

// AddCartItem adds a line and returns its cart-line id.
func (c *Client) AddCartItem(ctx context.Context, creds *Credentials, item domain.CartItem) (string, error) {
	req := cartItemDTO{
		ProductID:    item.ProductID,
		Name:         item.Name,
		Quantity:     item.Quantity,
		UnitPrice:    item.UnitPrice,
		Installments: item.Installments,
		Kind:         string(item.Kind),
		ParentCartID: item.ParentCartID,
	}
	var resp struct {
		CartID string `json:"cartId"`
	}
	if err := c.call(ctx, "add_cart_item", http.MethodPost, "/cart/items", creds, req, &resp); err != nil {
		return "", err
	}
	if resp.CartID == "" {
		return "", fmt.Errorf("add_cart_item: %w: missing cartId", ErrTransport)
	}
	return resp.CartID, nil
}

func (c *Client) DeleteCartItem(ctx context.Context, creds *Credentials, cartID string) error {
	path := "/cart/items/" + url.PathEscape(cartID)
	return c.call(ctx, "delete_cart_item", http.MethodDelete, path, creds, nil, nil)
}

type Cart struct {
	Items []domain.CartItem
	Total float64
}

func (c *Client) GetCart(ctx context.Context, creds *Credentials) (*Cart, error) {
	var resp struct {
		Items []cartItemDTO `json:"items"`
		Total float64       `json:"total"`
	}
	if err := c.call(ctx, "get_cart", http.MethodGet, "/cart", creds, nil, &resp); err != nil {
		return nil, err
	}
	cart := &Cart{Items: make([]domain.CartItem, len(resp.Items)), Total: resp.Total}
	for i, it := range resp.Items {
		cart.Items[i] = domain.CartItem{
			CartID:       it.CartID,
			ProductID:    it.ProductID,
			Name:         it.Name,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			Installments: it.Installments,
			Kind:         domain.LineKind(it.Kind),
			ParentCartID: it.ParentCartID,
		}
	}
	return cart, nil
}
