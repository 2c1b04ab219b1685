package auth

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
)

type memStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[uuid.UUID]User)}
}

func (m *memStore) Create(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conflict := &ConflictError{}
	for _, existing := range m.users {
		if existing.Username == user.Username {
			conflict.Username = true
		}
		if existing.Email == user.Email {
			conflict.Email = true
		}
	}
	if conflict.Username || conflict.Email {
		return conflict
	}
	m.users[user.ID] = user
	return nil
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memStore) FindByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memStore) UpdateCode(_ context.Context, id uuid.UUID, code string) error {
	return m.update(id, func(u *User) { u.Code = sql.NullString{String: code, Valid: true} })
}

func (m *memStore) UpdateAccessToken(_ context.Context, id uuid.UUID, token string) error {
	return m.update(id, func(u *User) { u.AccessToken = sql.NullString{String: token, Valid: true} })
}

func (m *memStore) AccessToken(_ context.Context, id uuid.UUID) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return "", false, ErrUserNotFound
	}
	return user.AccessToken.String, user.AccessToken.Valid, nil
}

func (m *memStore) update(id uuid.UUID, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&user)
	m.users[id] = user
	return nil
}

type staticLinker struct{}

func (staticLinker) AuthorizationURL(state string) string {
	return "https://auth.example.com/?response_type=code&client_id=client-123&state=" + state
}

func (m *memStore) setActive(id uuid.UUID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.users[id]
	user.Active = active
	m.users[id] = user
}
