/*
Package blob defines the key-value store forests are kept in: column
store snapshots, encoded trees, tree lists, vote tables and confusion
matrices are all blobs of bytes put under a key.

It also provides an in-memory implementation of the Store interface
and a wrapper compressing the blobs of another Store.
*/
package blob

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when getting a key that holds no blob
var ErrNotFound = errors.New("blob not found")

/*
Store is an interface to manage a store where blobs can be put,
retrieved and deleted by key.

All it methods take a context that may allow cancelling the operation
(thus forcing the return of an error) if the implementation allows it.
*/
type Store interface {
	// Get takes a key and returns the blob stored under it, or an
	// error wrapping ErrNotFound if there is none, or another error
	// if the store cannot be queried.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put takes a key and a blob and stores the blob under the key,
	// replacing any previous one. It returns an error if the blob
	// cannot be stored.
	Put(ctx context.Context, key string, data []byte) error
	// Delete takes a key and removes the blob under it. Deleting a
	// key without a blob is not an error.
	Delete(ctx context.Context, key string) error
	// Close closes the store, implementations should
	// free any resources in use. It returns an error
	// if the Close cannot be completed.
	Close(ctx context.Context) error
}

type memoryStore struct {
	blobs map[string][]byte
	lock  *sync.RWMutex
}

// NewMemoryStore returns an implementation
// of Store with the process memory space
// as underlying backend
func NewMemoryStore() Store {
	return &memoryStore{
		blobs: make(map[string][]byte),
		lock:  &sync.RWMutex{},
	}
}

func (ms *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := ms.withRLock(ctx, func(ctx context.Context) error {
		b, ok := ms.blobs[key]
		if !ok {
			return ErrNotFound
		}
		data = append([]byte(nil), b...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (ms *memoryStore) Put(ctx context.Context, key string, data []byte) error {
	b := append([]byte(nil), data...)
	return ms.withLock(ctx, func(ctx context.Context) error {
		ms.blobs[key] = b
		return nil
	})
}

func (ms *memoryStore) Delete(ctx context.Context, key string) error {
	return ms.withLock(ctx, func(ctx context.Context) error {
		delete(ms.blobs, key)
		return nil
	})
}

func (ms *memoryStore) Close(ctx context.Context) error {
	return nil
}

func (ms *memoryStore) withLock(ctx context.Context, f func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gotLock := make(chan struct{})
	go func() {
		ms.lock.Lock()
		select {
		case <-ctx.Done():
			ms.lock.Unlock()
		case gotLock <- struct{}{}:
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-gotLock:
		defer ms.lock.Unlock()
	}
	return f(ctx)
}

func (ms *memoryStore) withRLock(ctx context.Context, f func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gotLock := make(chan struct{})
	go func() {
		ms.lock.RLock()
		select {
		case <-ctx.Done():
			ms.lock.RUnlock()
		case gotLock <- struct{}{}:
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-gotLock:
		defer ms.lock.RUnlock()
	}
	return f(ctx)
}
