package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dom "mdtodo/internal/domain"
)

func newTestCache(t *testing.T) (*TodoCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTodoCache(rdb, time.Minute), mr
}

func TestTodoCache_ListMissThenHit(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	got, err := c.GetList(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	list := []dom.Todo{{ID: "a", Title: "Buy milk", Section: dom.SectionToday, Order: 1, Tags: []string{"home"}}}
	require.NoError(t, c.SetList(ctx, list))

	got, err = c.GetList(ctx)
	require.NoError(t, err)
	assert.Equal(t, list, got)

	mr.FastForward(2 * time.Minute)
	got, err = c.GetList(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTodoCache_EmptyListIsAHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetList(ctx, nil))
	got, err := c.GetList(ctx)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTodoCache_SearchKeysAreExact(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetSearch(ctx, "tags=Work", []dom.Todo{{ID: "upper"}}))
	got, err := c.GetSearch(ctx, "tags=work")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.GetSearch(ctx, "tags=Work")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "upper", got[0].ID)
}

func TestTodoCache_InvalidateAll(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetList(ctx, []dom.Todo{{ID: "a"}}))
	require.NoError(t, c.SetSearch(ctx, "one", []dom.Todo{{ID: "a"}}))
	require.NoError(t, c.SetSearch(ctx, "two", []dom.Todo{{ID: "a"}}))
	require.NoError(t, c.SetOverdue(ctx, "2025-01-01", []dom.Todo{{ID: "a"}}))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.InvalidateAll(ctx))

	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}
