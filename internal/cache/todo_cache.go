package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	dom "mdtodo/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	keyList    = "todo:list"
	keyOverdue = "todo:overdue:"
	keySearch  = "todo:search:"
)

// TodoCache caches the todo list, filtered results and overdue lists in Redis.
type TodoCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTodoCache returns a new TodoCache.
func NewTodoCache(rdb *redis.Client, ttl time.Duration) *TodoCache {
	return &TodoCache{rdb: rdb, ttl: ttl}
}

// GetList returns cached list or nil if miss.
func (c *TodoCache) GetList(ctx context.Context) ([]dom.Todo, error) {
	return c.get(ctx, keyList)
}

// SetList stores the list in cache.
func (c *TodoCache) SetList(ctx context.Context, list []dom.Todo) error {
	return c.set(ctx, keyList, list)
}

// GetSearch returns the cached result for a filter key, or nil if miss.
// Keys are used as given; callers fold whatever parts are case-insensitive.
func (c *TodoCache) GetSearch(ctx context.Context, key string) ([]dom.Todo, error) {
	return c.get(ctx, keySearch+key)
}

// SetSearch stores a filtered result in cache.
func (c *TodoCache) SetSearch(ctx context.Context, key string, list []dom.Todo) error {
	return c.set(ctx, keySearch+key, list)
}

// GetOverdue returns the cached overdue list for the given day or nil if miss.
func (c *TodoCache) GetOverdue(ctx context.Context, today string) ([]dom.Todo, error) {
	return c.get(ctx, keyOverdue+today)
}

// SetOverdue stores the overdue list for the given day.
func (c *TodoCache) SetOverdue(ctx context.Context, today string, list []dom.Todo) error {
	return c.set(ctx, keyOverdue+today, list)
}

// InvalidateAll removes the list and every search and overdue key (cache invalidation on write).
func (c *TodoCache) InvalidateAll(ctx context.Context) error {
	if err := c.rdb.Del(ctx, keyList).Err(); err != nil {
		return err
	}
	for _, pattern := range []string{keySearch + "*", keyOverdue + "*"} {
		iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (c *TodoCache) get(ctx context.Context, key string) ([]dom.Todo, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []dom.Todo
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *TodoCache) set(ctx context.Context, key string, list []dom.Todo) error {
	if list == nil {
		list = []dom.Todo{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
