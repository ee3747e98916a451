// Package directory resolves display names and avatars of users.
package directory

import (
	"context"
	"errors"
	"sync"

	"expertvakil/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned for unknown user ids
var ErrUserNotFound = errors.New("user not found")

// Directory looks up user profile data
type Directory interface {
	UserName(ctx context.Context, userID string) (string, error)
	// ProfilePic returns an empty string when the user has no avatar
	ProfilePic(ctx context.Context, userID string) (string, error)
}

// FallbackName is shown when a user's name cannot be resolved
func FallbackName(userID string) string {
	if len(userID) > 6 {
		userID = userID[:6]
	}
	return "User " + userID
}

// Postgres reads the users table
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a directory backed by the users table
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) user(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, avatar, created_at FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Name, &u.Avatar, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

func (p *Postgres) UserName(ctx context.Context, userID string) (string, error) {
	u, err := p.user(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func (p *Postgres) ProfilePic(ctx context.Context, userID string) (string, error) {
	u, err := p.user(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Avatar == nil {
		return "", nil
	}
	return *u.Avatar, nil
}

// Memory is a fixed directory for development and tests
type Memory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

// NewMemory creates a directory holding users
func NewMemory(users ...models.User) *Memory {
	m := &Memory{users: make(map[string]models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

// Put adds or replaces a user
func (m *Memory) Put(u models.User) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

func (m *Memory) UserName(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return u.Name, nil
}

func (m *Memory) ProfilePic(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	if u.Avatar == nil {
		return "", nil
	}
	return *u.Avatar, nil
}
