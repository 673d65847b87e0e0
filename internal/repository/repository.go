// Package repository declares the storage contracts the service layer depends on.
// Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/atlasstudio/internal/model"
)

// UserRepository is the User Store.
//
// Lookups return an error wrapping apperror.ErrNotFound when nothing matches.
// Writes that hit a uniqueness constraint return an error wrapping
// apperror.ErrConflict; the constraint, not a prior lookup, is authoritative.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByProviderAndProviderID(ctx context.Context, provider, providerID string) (*model.User, error)

	// Save inserts the user when user.ID is zero and updates it otherwise.
	// On insert, ID and timestamps are written back into user.
	Save(ctx context.Context, user *model.User) error

	// UpsertByProvider atomically inserts the user, or, if a row with the same
	// (Provider, ProviderID) exists, overwrites only its Name and AvatarURL.
	// The stored row is written back into user.
	UpsertByProvider(ctx context.Context, user *model.User) error

	// FindOrCreateByProvider atomically inserts the user unless a row with the
	// same (Provider, ProviderID) exists, and loads the stored row into user.
	// created reports whether this call performed the insert.
	FindOrCreateByProvider(ctx context.Context, user *model.User) (created bool, err error)
}
