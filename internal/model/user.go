// Package model defines the data structures used throughout the application.
package model

import "time"

// Providers a User record can belong to. Any other value is the name of an
// OAuth2 identity provider, e.g. ProviderGoogle.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// User is the only persistent entity: one row per (Provider, ProviderID).
//
// For local accounts ProviderID equals Email and PasswordHash holds the bcrypt
// hash. For OAuth2 accounts ProviderID is the provider's stable subject ("sub")
// and PasswordHash is empty. Empty strings stand in for absent profile fields.
//
// PasswordHash is tagged json:"-" so it can never leak into an API response.
type User struct {
	ID           int64     `json:"id"`
	Provider     string    `json:"provider"`
	ProviderID   string    `json:"providerId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatarUrl"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsLocal reports whether the account was created through local registration.
func (u *User) IsLocal() bool {
	return u.Provider == ProviderLocal
}
