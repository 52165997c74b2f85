package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

func setupTestMongo(t *testing.T, ttl time.Duration) *MongoStore {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "checkout_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(ctx) })

	store := NewMongoStore(db, "sessions", ttl)
	require.NoError(t, store.EnsureIndexes(ctx))
	return store
}

func TestMongoStore_SaveLoadDelete(t *testing.T) {
	store := setupTestMongo(t, time.Hour)
	ctx := context.Background()

	state := domain.NewFlowState("m-1", "en", time.Now().UTC().Truncate(time.Millisecond))
	state.Plan = &domain.Plan{ID: "p1", Name: "Fibra 600", MonthlyPrice: 25}
	state.Auth = &domain.Auth{Token: "tok"}
	state.LastAttempt = &domain.Attempt{Op: "select_plan", Input: []byte(`{"plan_id":"p1"}`)}
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", loaded.SessionID)
	assert.Equal(t, "Fibra 600", loaded.Plan.Name)
	assert.Equal(t, "tok", loaded.Auth.Token)
	assert.JSONEq(t, `{"plan_id":"p1"}`, string(loaded.LastAttempt.Input))

	// upsert replaces the document
	state.Step = domain.StepContract
	require.NoError(t, store.Save(ctx, state))
	loaded, err = store.Load(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepContract, loaded.Step)

	require.NoError(t, store.Delete(ctx, "m-1"))
	_, err = store.Load(ctx, "m-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMongoStore_ExpiredIsNotFound(t *testing.T) {
	store := setupTestMongo(t, -time.Second)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.NewFlowState("m-old", "es", time.Now())))

	_, err := store.Load(ctx, "m-old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
