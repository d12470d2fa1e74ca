//go:build integration

package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "conveyance/pkg/domain"
	"conveyance/pkg/testutil/containers"
)

func TestPostgresTriggerStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	store, err := NewPostgresTriggerStore(pg.DSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))

	fireAt := time.Date(2026, 9, 28, 14, 0, 0, 0, time.UTC)
	trigger := Trigger{
		ID:          uuid.New(),
		TitleID:     id.NewLinearID(),
		AgreementID: id.NewLinearID(),
		FireAt:      fireAt,
	}
	require.NoError(t, store.Add(ctx, trigger))

	t.Run("not due before fire time", func(t *testing.T) {
		due, err := store.Due(ctx, fireAt.Add(-time.Minute))
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("due at fire time", func(t *testing.T) {
		due, err := store.Due(ctx, fireAt)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, trigger.ID, due[0].ID)
		assert.Equal(t, trigger.AgreementID, due[0].AgreementID)
		assert.True(t, due[0].FireAt.Equal(fireAt))
	})

	t.Run("failure counts attempts and keeps the trigger", func(t *testing.T) {
		require.NoError(t, store.MarkFailed(ctx, trigger.ID))

		due, err := store.Due(ctx, fireAt)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 1, due[0].Attempts)
	})

	t.Run("fired triggers never come back", func(t *testing.T) {
		require.NoError(t, store.MarkFired(ctx, trigger.ID))

		due, err := store.Due(ctx, fireAt.AddDate(0, 0, 7))
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("survives reopen", func(t *testing.T) {
		other := Trigger{ID: uuid.New(), TitleID: id.NewLinearID(), AgreementID: id.NewLinearID(), FireAt: fireAt}
		require.NoError(t, store.Add(ctx, other))

		reopened, err := NewPostgresTriggerStore(pg.DSN)
		require.NoError(t, err)
		t.Cleanup(func() { _ = reopened.Close() })

		due, err := reopened.Due(ctx, fireAt)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, other.ID, due[0].ID)
	})
}
