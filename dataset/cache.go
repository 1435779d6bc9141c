package dataset

import (
	"context"
	"fmt"
	"sync"

	"github.com/pbanos/grove/blob"
	"github.com/pbanos/grove/column"
	"golang.org/x/sync/singleflight"
)

// PutStore puts a snapshot of the given frozen column store on the
// blob store under the given key
func PutStore(ctx context.Context, bs blob.Store, key string, s *column.Store) error {
	data, err := s.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("putting dataset %q: %w", key, err)
	}
	if err := bs.Put(ctx, key, data); err != nil {
		return fmt.Errorf("putting dataset %q: %w", key, err)
	}
	return nil
}

// GetStore gets the column store whose snapshot was put on the blob
// store under the given key
func GetStore(ctx context.Context, bs blob.Store, key string) (*column.Store, error) {
	data, err := bs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("getting dataset %q: %w", key, err)
	}
	s, err := column.UnmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("getting dataset %q: %w", key, err)
	}
	return s, nil
}

/*
Cache keeps the column stores loaded from a blob store, so that the
tasks a worker runs on the same dataset share one frozen copy of it.
Concurrent loads of the same key are performed once.
*/
type Cache struct {
	bs     blob.Store
	lock   sync.RWMutex
	stores map[string]*column.Store
	group  singleflight.Group
}

// NewCache returns a cache of the column stores on the given blob store
func NewCache(bs blob.Store) *Cache {
	return &Cache{bs: bs, stores: make(map[string]*column.Store)}
}

// Get returns the column store under the given key
func (c *Cache) Get(ctx context.Context, key string) (*column.Store, error) {
	c.lock.RLock()
	s, ok := c.stores[key]
	c.lock.RUnlock()
	if ok {
		return s, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		s, err := GetStore(ctx, c.bs, key)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.stores[key] = s
		c.lock.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*column.Store), nil
}

// Forget drops the column store under the given key from the cache
func (c *Cache) Forget(key string) {
	c.lock.Lock()
	delete(c.stores, key)
	c.lock.Unlock()
}
