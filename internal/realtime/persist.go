package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Identity is the part of a store that survives reconnects.
type Identity struct {
	OrgID     string `json:"org_id"`
	Role      string `json:"role"`
	UserEmail string `json:"user_email"`
}

// Persister saves identity fields under a per-user key. Table rows are never persisted.
type Persister interface {
	Load(ctx context.Context, key string) (Identity, bool, error)
	Save(ctx context.Context, key string, id Identity) error
	Delete(ctx context.Context, key string) error
}

type MemoryPersister struct {
	mu   sync.Mutex
	data map[string]Identity
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string]Identity)}
}

func (p *MemoryPersister) Load(_ context.Context, key string) (Identity, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.data[key]
	return id, ok, nil
}

func (p *MemoryPersister) Save(_ context.Context, key string, id Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = id
	return nil
}

func (p *MemoryPersister) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

const identityKeyPrefix = "mirror:identity:"

type RedisPersister struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPersister stores identities as JSON strings. A zero ttl keeps them forever.
func NewRedisPersister(rdb *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{rdb: rdb, ttl: ttl}
}

func (p *RedisPersister) Load(ctx context.Context, key string) (Identity, bool, error) {
	var id Identity
	data, err := p.rdb.Get(ctx, identityKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return id, false, nil
	}
	if err != nil {
		return id, false, fmt.Errorf("loading identity: %w", err)
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return id, false, fmt.Errorf("decoding identity: %w", err)
	}
	return id, true, nil
}

func (p *RedisPersister) Save(ctx context.Context, key string, id Identity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("encoding identity: %w", err)
	}
	if err := p.rdb.Set(ctx, identityKeyPrefix+key, data, p.ttl).Err(); err != nil {
		return fmt.Errorf("saving identity: %w", err)
	}
	return nil
}

func (p *RedisPersister) Delete(ctx context.Context, key string) error {
	if err := p.rdb.Del(ctx, identityKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}
