package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

// setupTestRedis creates a miniredis server and returns a RedisStore on top of it
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, 30*time.Minute), mr
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	state := domain.NewFlowState("s-1", "es", time.Now())
	state.Step = domain.StepCatalogue
	state.Auth = &domain.Auth{Token: "tok", CorrelationID: "corr"}
	state.Cart = []domain.CartItem{
		{CartID: "eq", ProductID: "router", Quantity: 1, Kind: domain.LineKindEquipment},
		{CartID: "pl", ProductID: "p1", Quantity: 1, Kind: domain.LineKindPlan, ParentCartID: "eq"},
	}
	state.EquipmentCartID = "eq"

	require.NoError(t, store.Save(ctx, state))
	assert.True(t, mr.Exists(sessionKey("s-1")))

	loaded, err := store.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepCatalogue, loaded.Step)
	require.NotNil(t, loaded.Auth)
	assert.Equal(t, "tok", loaded.Auth.Token)
	require.Len(t, loaded.Cart, 2)
	assert.Equal(t, "eq", loaded.Cart[1].ParentCartID)
}

func TestRedisStore_LoadMissing(t *testing.T) {
	store, _ := setupTestRedis(t)

	state, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Nil(t, state)
}

func TestRedisStore_InvalidJSON(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(sessionKey("broken"), `{"session_id":`))

	_, err := store.Load(context.Background(), "broken")
	assert.ErrorContains(t, err, "unmarshal session failed")
}

func TestRedisStore_SaveRefreshesTTL(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	state := domain.NewFlowState("s-ttl", "es", time.Now())

	require.NoError(t, store.Save(ctx, state))
	mr.FastForward(20 * time.Minute)
	assert.Equal(t, 10*time.Minute, mr.TTL(sessionKey("s-ttl")))

	require.NoError(t, store.Save(ctx, state))
	assert.Equal(t, 30*time.Minute, mr.TTL(sessionKey("s-ttl")))

	mr.FastForward(31 * time.Minute)
	_, err := store.Load(ctx, "s-ttl")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, domain.NewFlowState("s-del", "es", time.Now())))

	require.NoError(t, store.Delete(ctx, "s-del"))
	assert.False(t, mr.Exists(sessionKey("s-del")))

	// deleting twice is fine
	assert.NoError(t, store.Delete(ctx, "s-del"))
}

func TestSessionKey_Format(t *testing.T) {
	assert.Equal(t, "checkout:session:abc", sessionKey("abc"))
}
