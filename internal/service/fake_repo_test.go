package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/atlasstudio/internal/apperror"
	"github.com/sakif/atlasstudio/internal/model"
)

// fakeUserRepo is an in-memory repository.UserRepository. It enforces the same
// uniqueness rules as the SQLite schema and counts writes so tests can assert
// that validation failures never touch storage.
type fakeUserRepo struct {
	mu     sync.Mutex
	byKey  map[string]*model.User // provider + ":" + providerID
	nextID int64
	writes int

	// set to a non-nil error to simulate a database failure
	findErr error
	saveErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byKey: make(map[string]*model.User), nextID: 1}
}

func key(provider, providerID string) string { return provider + ":" + providerID }

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}

	var matches []*model.User
	for _, u := range f.byKey {
		if u.Email == email {
			matches = append(matches, u)
		}
	}
	if len(matches) == 0 {
		return nil, apperror.NotFound("user", email)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].IsLocal() != matches[j].IsLocal() {
			return matches[i].IsLocal()
		}
		return matches[i].ID < matches[j].ID
	})
	copied := *matches[0]
	return &copied, nil
}

func (f *fakeUserRepo) FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}

	u, ok := f.byKey[key(provider, providerID)]
	if !ok {
		return nil, apperror.NotFound("user", key(provider, providerID))
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) Save(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.writes++

	if user.ID == 0 {
		if _, exists := f.byKey[key(user.Provider, user.ProviderID)]; exists {
			return apperror.Conflict("user already exists")
		}
		f.insertLocked(user)
		return nil
	}

	for k, u := range f.byKey {
		if u.ID == user.ID {
			delete(f.byKey, k)
			copied := *user
			f.byKey[key(user.Provider, user.ProviderID)] = &copied
			return nil
		}
	}
	return apperror.NotFound("user", "id")
}

func (f *fakeUserRepo) UpsertByProvider(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.writes++

	if existing, ok := f.byKey[key(user.Provider, user.ProviderID)]; ok {
		existing.Name = user.Name
		existing.AvatarURL = user.AvatarURL
		existing.UpdatedAt = time.Now()
		*user = *existing
		return nil
	}
	f.insertLocked(user)
	return nil
}

func (f *fakeUserRepo) FindOrCreateByProvider(ctx context.Context, user *model.User) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return false, f.saveErr
	}

	if existing, ok := f.byKey[key(user.Provider, user.ProviderID)]; ok {
		*user = *existing
		return false, nil
	}
	f.writes++
	f.insertLocked(user)
	return true, nil
}

func (f *fakeUserRepo) insertLocked(user *model.User) {
	now := time.Now()
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = now
	user.UpdatedAt = now
	copied := *user
	f.byKey[key(user.Provider, user.ProviderID)] = &copied
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byKey)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
