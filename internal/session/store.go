package session

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

// Store keeps one FlowState per session id. Every Save refreshes the
// session's time to live.
type Store interface {
	Load(ctx context.Context, sessionID string) (*domain.FlowState, error)
	Save(ctx context.Context, state *domain.FlowState) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrSessionNotFound = errors.New("checkout session not found")
