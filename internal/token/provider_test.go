package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
)

type memoryStore struct {
	mu     sync.Mutex
	states map[string]*domain.FlowState
	saves  int
}

func newMemoryStore(states ...*domain.FlowState) *memoryStore {
	m := &memoryStore{states: make(map[string]*domain.FlowState)}
	for _, s := range states {
		m.states[s.SessionID] = s
	}
	return m
}

func (m *memoryStore) Load(_ context.Context, id string) (*domain.FlowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStore) Save(_ context.Context, s *domain.FlowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.states[s.SessionID] = &cp
	m.saves++
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

type slowIssuer struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (s *slowIssuer) IssueToken(ctx context.Context) (*backend.IssuedToken, error) {
	n := s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &backend.IssuedToken{
		Token:         "tok",
		CorrelationID: "corr",
		ExpiresAt:     time.Now().Add(time.Duration(n) * time.Hour),
	}, nil
}

func TestCredentials_ConcurrentCallersShareOneFetch(t *testing.T) {
	store := newMemoryStore(domain.NewFlowState("s-1", "es", time.Now()))
	issuer := &slowIssuer{release: make(chan struct{})}
	p := NewProvider(issuer, store, session.NewLocker(), time.Minute)

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*backend.Credentials, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Credentials(context.Background(), "s-1")
		}(i)
	}

	// let every caller reach the in-flight fetch before it completes
	time.Sleep(50 * time.Millisecond)
	close(issuer.release)
	wg.Wait()

	assert.Equal(t, int32(1), issuer.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok", results[i].Token)
		assert.Equal(t, "corr", results[i].CorrelationID)
	}

	stored, err := store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "tok", stored.Auth.Token)
}

func TestCredentials_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	store := newMemoryStore(domain.NewFlowState("s-1", "es", time.Now()))
	issuer := &slowIssuer{release: make(chan struct{})}
	p := NewProvider(issuer, store, session.NewLocker(), time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Credentials(firstCtx, "s-1")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return issuer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		creds *backend.Credentials
		err   error
	}
	second := make(chan result, 1)
	go func() {
		creds, err := p.Credentials(context.Background(), "s-1")
		second <- result{creds, err}
	}()

	// the caller that started the fetch goes away
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(issuer.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "tok", res.creds.Token)
	assert.Equal(t, int32(1), issuer.calls.Load())

	stored, err := store.Load(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, stored.Auth)
	assert.Equal(t, "tok", stored.Auth.Token)
}

func TestCredentials_ReusesValidToken(t *testing.T) {
	state := domain.NewFlowState("s-1", "es", time.Now())
	state.Auth = &domain.Auth{Token: "cached", ExpiresAt: time.Now().Add(time.Hour)}
	issuer := &slowIssuer{}
	p := NewProvider(issuer, newMemoryStore(state), session.NewLocker(), time.Minute)

	creds, err := p.Credentials(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "cached", creds.Token)
	assert.Zero(t, issuer.calls.Load())
}

func TestCredentials_RefreshesExpiringToken(t *testing.T) {
	state := domain.NewFlowState("s-1", "es", time.Now())
	state.Auth = &domain.Auth{Token: "old", ExpiresAt: time.Now().Add(10 * time.Second)}
	issuer := &slowIssuer{}
	p := NewProvider(issuer, newMemoryStore(state), session.NewLocker(), time.Minute)

	creds, err := p.Credentials(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)
	assert.Equal(t, int32(1), issuer.calls.Load())
}

func TestCredentials_IssueFailure(t *testing.T) {
	store := newMemoryStore(domain.NewFlowState("s-1", "es", time.Now()))
	issuer := &slowIssuer{err: backend.ErrTransport}
	p := NewProvider(issuer, store, session.NewLocker(), time.Minute)

	_, err := p.Credentials(context.Background(), "s-1")
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Zero(t, store.saves)

	// a later call fetches again
	issuer.err = nil
	creds, err := p.Credentials(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)
	assert.Equal(t, int32(2), issuer.calls.Load())
}

func TestCredentials_UnknownSession(t *testing.T) {
	p := NewProvider(&slowIssuer{}, newMemoryStore(), session.NewLocker(), time.Minute)

	_, err := p.Credentials(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestInvalidate(t *testing.T) {
	state := &domain.FlowState{Auth: &domain.Auth{Token: "t"}}
	assert.False(t, Invalidate(state, errors.New("other")))
	assert.NotNil(t, state.Auth)

	assert.True(t, Invalidate(state, backend.ErrUnauthorized))
	assert.Nil(t, state.Auth)
	assert.False(t, Invalidate(state, backend.ErrUnauthorized))
}
