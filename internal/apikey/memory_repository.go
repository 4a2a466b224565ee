package apikey

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu   sync.RWMutex
	keys map[string]Key
	now  func() time.Time
}

// NewMemoryRepository constructs an in-memory repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{keys: make(map[string]Key), now: time.Now}
}

func (r *memoryRepository) Insert(_ context.Context, key Key, maxActive int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	active := 0
	for _, existing := range r.keys {
		if existing.OwnerID == key.OwnerID && existing.Active(now) {
			active++
		}
	}
	if active >= maxActive {
		return ErrTooManyActiveKeys
	}
	r.keys[key.ID] = key
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[id]
	if !ok {
		return Key{}, ErrKeyNotFound
	}
	return key, nil
}

func (r *memoryRepository) GetBySecretHash(_ context.Context, hash string) (Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.keys {
		if key.SecretHash == hash {
			return key, nil
		}
	}
	return Key{}, ErrKeyNotFound
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Key
	for _, key := range r.keys {
		if key.OwnerID == ownerID {
			result = append(result, key)
		}
	}
	return result, nil
}

func (r *memoryRepository) Revoke(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[id]
	if !ok {
		return ErrKeyNotFound
	}
	key.Revoked = true
	r.keys[id] = key
	return nil
}

func (r *memoryRepository) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[id]
	if !ok {
		return ErrKeyNotFound
	}
	t := at.UTC()
	key.LastUsedAt = &t
	r.keys[id] = key
	return nil
}
