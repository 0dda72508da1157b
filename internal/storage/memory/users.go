package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blackout/internal/core"
	"blackout/internal/storage"
)

type userStore struct {
	mu      sync.RWMutex
	byID    map[core.OwnerID]core.User
	byEmail map[string]core.OwnerID
	nextID  core.OwnerID
}

func newUserStore() *userStore {
	return &userStore{
		byID:    make(map[core.OwnerID]core.User),
		byEmail: make(map[string]core.OwnerID),
	}
}

func (u *userStore) CreateUser(ctx context.Context, user core.User) (core.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	user.Email = core.NormalizeEmail(user.Email)
	if _, taken := u.byEmail[user.Email]; taken {
		return core.User{}, fmt.Errorf("%s: %w", user.Email, storage.ErrEmailTaken)
	}
	u.nextID++
	user.ID = u.nextID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	u.byID[user.ID] = user
	u.byEmail[user.Email] = user.ID
	return user, nil
}

func (u *userStore) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	id, ok := u.byEmail[core.NormalizeEmail(email)]
	if !ok {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return u.byID[id], nil
}

func (u *userStore) GetUserByID(ctx context.Context, id core.OwnerID) (core.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[id]
	if !ok {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return user, nil
}
