package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

// Issuer is the backend call that hands out bearer tokens.
type Issuer interface {
	IssueToken(ctx context.Context) (*backend.IssuedToken, error)
}

// Provider makes sure a session holds a usable bearer token before any other
// backend call. Concurrent callers for a session that has no token yet share
// one in-flight IssueToken call.
type Provider struct {
	issuer Issuer
	store  session.Store
	locker *session.Locker
	skew   time.Duration
	sfg    singleflight.Group
	now    func() time.Time
}

func NewProvider(issuer Issuer, store session.Store, locker *session.Locker, skew time.Duration) *Provider {
	return &Provider{
		issuer: issuer,
		store:  store,
		locker: locker,
		skew:   skew,
		now:    time.Now,
	}
}

// Credentials returns the session's token, issuing and persisting one first
// when the session has none or it is about to expire. Must not be called
// while holding the session lock.
func (p *Provider) Credentials(ctx context.Context, sessionID string) (*backend.Credentials, error) {
	state, err := p.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Auth.Valid(p.now(), p.skew) {
		return toCredentials(state.Auth), nil
	}

	// the fetch outlives whichever caller started it; each caller only
	// stops waiting on its own context
	ch := p.sfg.DoChan(sessionID, func() (interface{}, error) {
		return p.issue(context.WithoutCancel(ctx), sessionID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			slog.DebugContext(ctx, "token fetch shared", logger.SessionID(sessionID))
		}
		return toCredentials(res.Val.(*domain.Auth)), nil
	}
}

func (p *Provider) issue(ctx context.Context, sessionID string) (*domain.Auth, error) {
	unlock := p.locker.Lock(sessionID)
	defer unlock()

	// another request may have stored a token while we waited for the lock
	state, err := p.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Auth.Valid(p.now(), p.skew) {
		return state.Auth, nil
	}

	issued, err := p.issuer.IssueToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	state.Auth = &domain.Auth{
		Token:         issued.Token,
		CorrelationID: issued.CorrelationID,
		ExpiresAt:     issued.ExpiresAt,
	}
	state.UpdatedAt = p.now()
	if err := p.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}

	slog.InfoContext(ctx, "session token issued",
		logger.SessionID(sessionID),
		slog.String("correlation_id", issued.CorrelationID))
	return state.Auth, nil
}

// Invalidate drops the token held in state when err says the backend no
// longer accepts it. It reports whether the token was dropped; the caller
// persists the state.
func Invalidate(state *domain.FlowState, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) || state.Auth == nil {
		return false
	}
	state.Auth = nil
	return true
}

func toCredentials(auth *domain.Auth) *backend.Credentials {
	return &backend.Credentials{
		Token:         auth.Token,
		CorrelationID: auth.CorrelationID,
	}
}
