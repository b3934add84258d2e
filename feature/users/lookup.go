package users

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// lookupCache keeps an indexed copy of the users table for HTTP readers.
// It is rebuilt lazily after every invalidation.
type lookupCache struct {
	load func(ctx context.Context) ([]User, error)

	mu    sync.RWMutex
	users []User
	byKey map[string]int
	built bool
	sf    singleflight.Group
}

func newLookupCache(load func(ctx context.Context) ([]User, error)) *lookupCache {
	return &lookupCache{load: load}
}

func (c *lookupCache) ensure(ctx context.Context) error {
	c.mu.RLock()
	built := c.built
	c.mu.RUnlock()
	if built {
		return nil
	}

	_, err, _ := c.sf.Do("users", func() (any, error) {
		c.mu.RLock()
		built := c.built
		c.mu.RUnlock()
		if built {
			return nil, nil
		}

		users, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		byKey := make(map[string]int, len(users)*2)
		for i, u := range users {
			byKey[u.ID] = i
			if u.Email != nil && *u.Email != "" {
				byKey[strings.ToLower(*u.Email)] = i
			}
		}

		c.mu.Lock()
		c.users, c.byKey, c.built = users, byKey, true
		c.mu.Unlock()
		return nil, nil
	})
	return err
}

func (c *lookupCache) all(ctx context.Context) ([]User, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]User, len(c.users))
	copy(out, c.users)
	return out, nil
}

func (c *lookupCache) get(ctx context.Context, key string) (*User, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byKey[key]
	if !ok {
		i, ok = c.byKey[strings.ToLower(key)]
	}
	if !ok {
		return nil, nil
	}
	u := c.users[i]
	return &u, nil
}

func (c *lookupCache) invalidate() {
	c.mu.Lock()
	c.users, c.byKey, c.built = nil, nil, false
	c.mu.Unlock()
}
