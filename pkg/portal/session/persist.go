package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Persisted is the credential pair kept between restarts.
type Persisted struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past, or within skew of, its expiry.
func (p Persisted) Expired(now time.Time, skew time.Duration) bool {
	return p.AccessToken == "" || !now.Add(skew).Before(p.ExpiresAt)
}

// Persister stores the session across restarts.
type Persister interface {
	Load(ctx context.Context) (Persisted, bool, error)
	Save(ctx context.Context, session Persisted) error
	Clear(ctx context.Context) error
}

// MemoryPersister keeps the session in process memory only.
type MemoryPersister struct {
	mu      sync.Mutex
	session *Persisted
}

func (m *MemoryPersister) Load(context.Context) (Persisted, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Persisted{}, false, nil
	}
	return *m.session, true, nil
}

func (m *MemoryPersister) Save(_ context.Context, session Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &session
	return nil
}

func (m *MemoryPersister) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// RedisPersister keeps the session under one Redis key, expiring with the refresh window.
type RedisPersister struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisPersister stores the session at key; ttl of zero keeps it until cleared.
func NewRedisPersister(client *redis.Client, key string, ttl time.Duration) *RedisPersister {
	if key == "" {
		key = "portal:session"
	}
	return &RedisPersister{client: client, key: key, ttl: ttl}
}

func (r *RedisPersister) Load(ctx context.Context) (Persisted, bool, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Persisted{}, false, nil
	}
	if err != nil {
		return Persisted{}, false, err
	}

	var session Persisted
	if err := json.Unmarshal(raw, &session); err != nil {
		// unreadable entries are treated as absent and dropped
		_ = r.client.Del(ctx, r.key).Err()
		return Persisted{}, false, nil
	}
	return session, true, nil
}

func (r *RedisPersister) Save(ctx context.Context, session Persisted) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, payload, r.ttl).Err()
}

func (r *RedisPersister) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
