// Package identity stores the custom claims attached to each identity uid.
// The role claim mirrors the user's role so that tokens minted for the uid
// carry it.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/elanza/clinic/internal/platform/apperr"
)

// ClaimsStore reads and writes the role claim of an identity. Methods return
// an error wrapping apperr.ErrIdentityNotFound when uid is unknown.
type ClaimsStore interface {
	// Ensure registers uid if it is not known yet.
	Ensure(ctx context.Context, uid string) error
	// RoleClaim returns the current role claim and whether it is set.
	RoleClaim(ctx context.Context, uid string) (string, bool, error)
	// SetRoleClaim sets the role claim; nil clears it.
	SetRoleClaim(ctx context.Context, uid string, role *string) error
}

const roleField = "role"

// RedisClaims keeps one hash per identity under "<prefix><uid>".
type RedisClaims struct {
	client *redis.Client
	prefix string
}

func NewRedisClaims(client *redis.Client) *RedisClaims {
	return &RedisClaims{client: client, prefix: "identity:"}
}

func (s *RedisClaims) key(uid string) string { return s.prefix + uid }

func (s *RedisClaims) Ensure(ctx context.Context, uid string) error {
	if err := s.client.HSetNX(ctx, s.key(uid), "uid", uid).Err(); err != nil {
		return fmt.Errorf("ensure identity %s: %w", uid, err)
	}
	return nil
}

func (s *RedisClaims) RoleClaim(ctx context.Context, uid string) (string, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(uid)).Result()
	if err != nil {
		return "", false, fmt.Errorf("read claims %s: %w", uid, err)
	}
	if len(vals) == 0 {
		return "", false, fmt.Errorf("read claims %s: %w", uid, apperr.ErrIdentityNotFound)
	}
	role, ok := vals[roleField]
	return role, ok, nil
}

func (s *RedisClaims) SetRoleClaim(ctx context.Context, uid string, role *string) error {
	exists, err := s.client.Exists(ctx, s.key(uid)).Result()
	if err != nil {
		return fmt.Errorf("check identity %s: %w", uid, err)
	}
	if exists == 0 {
		return fmt.Errorf("set claims %s: %w", uid, apperr.ErrIdentityNotFound)
	}
	if role == nil {
		err = s.client.HDel(ctx, s.key(uid), roleField).Err()
	} else {
		err = s.client.HSet(ctx, s.key(uid), roleField, *role).Err()
	}
	if err != nil {
		return fmt.Errorf("set claims %s: %w", uid, err)
	}
	return nil
}

// MemoryClaims is an in-process ClaimsStore for development and tests.
type MemoryClaims struct {
	mu     sync.RWMutex
	claims map[string]map[string]string
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{claims: make(map[string]map[string]string)}
}

func (m *MemoryClaims) Ensure(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[uid]; !ok {
		m.claims[uid] = map[string]string{}
	}
	return nil
}

func (m *MemoryClaims) RoleClaim(_ context.Context, uid string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.claims[uid]
	if !ok {
		return "", false, fmt.Errorf("read claims %s: %w", uid, apperr.ErrIdentityNotFound)
	}
	role, set := c[roleField]
	return role, set, nil
}

func (m *MemoryClaims) SetRoleClaim(_ context.Context, uid string, role *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.claims[uid]
	if !ok {
		return fmt.Errorf("set claims %s: %w", uid, apperr.ErrIdentityNotFound)
	}
	if role == nil {
		delete(c, roleField)
		return nil
	}
	c[roleField] = *role
	return nil
}
