//go:build integration

package titledata_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "conveyance/internal/platform/redis"
	"conveyance/internal/record"
	"conveyance/internal/titledata"
	"conveyance/pkg/platform/sentinel"
	"conveyance/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()

	client := &platformredis.Client{Client: rc.Client}
	source := titledata.NewMemorySource()
	cache := titledata.NewRedisCache(source, client, time.Minute, nil)

	want := titledata.Data{
		TitleNumber: "ZQV888860",
		Owner:       record.CustomerDetails{Identity: 31, Name: "Eve Estate"},
		Guarantee:   record.GuaranteeFull,
	}
	source.Put(want)

	t.Run("populates on first read", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		got, err := cache.Get(ctx, "ZQV888860")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		// The source can go away; the cache still answers.
		source.SetUnavailable(true)
		got, err = cache.Get(ctx, "ZQV888860")
		require.NoError(t, err)
		assert.Equal(t, want, got)
		source.SetUnavailable(false)
	})

	t.Run("not found is never cached", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		_, err := cache.Get(ctx, "XQ1")
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		late := titledata.Data{TitleNumber: "XQ1", Guarantee: record.GuaranteeLimited}
		source.Put(late)
		got, err := cache.Get(ctx, "XQ1")
		require.NoError(t, err)
		assert.Equal(t, late, got)
	})

	t.Run("invalidate forces a fresh read", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))

		_, err := cache.Get(ctx, "ZQV888860")
		require.NoError(t, err)

		require.NoError(t, cache.Invalidate(ctx, "ZQV888860"))
		source.SetUnavailable(true)
		defer source.SetUnavailable(false)

		_, err = cache.Get(ctx, "ZQV888860")
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("undecodable entries are dropped", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		require.NoError(t, rc.Client.Set(ctx, "titledata:ZQV888860", "not-json{", time.Minute).Err())

		got, err := cache.Get(ctx, "ZQV888860")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
