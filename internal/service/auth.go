// Package service holds the business logic between the HTTP handlers and the
// User Store:
//
//	AuthHandler (HTTP) → AuthService / OAuth2Bridge → UserRepository (DB)
//
// Services accept plain values and an explicit auth.Identity, return model
// types and apperror errors, and know nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/atlasstudio/internal/apperror"
	"github.com/sakif/atlasstudio/internal/auth"
	"github.com/sakif/atlasstudio/internal/model"
	"github.com/sakif/atlasstudio/internal/repository"
)

// AuthService implements local registration, local login and "who am I".
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// Register creates a local account.
//
// Email and password are required; the email is trimmed, the password is
// used as given. The pre-check reports an email already used by any account
// as a conflict. The storage constraint catches the concurrent case the
// pre-check cannot see.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = strings.TrimSpace(email)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperror.ValidationFailed("password", "Email and password are required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, apperror.Conflict("Email already in use")
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Provider:     model.ProviderLocal,
		ProviderID:   email,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}
	if err := s.users.Save(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Conflict("Email already in use")
		}
		return nil, fmt.Errorf("service/auth: saving user: %w", err)
	}

	s.logger.Info("local user registered",
		slog.Int64("userID", user.ID),
	)

	return user, nil
}

// Login checks a local email/password pair.
//
// Every failure a client can cause (unknown email, OAuth2-only account, wrong
// password) returns the same Unauthorized error so the response does not reveal
// which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "Email and password are required")
	}

	invalid := apperror.Unauthorized("Invalid credentials")

	user, err := s.users.FindByProviderAndProviderID(ctx, model.ProviderLocal, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: finding user: %w", err)
	}

	if !user.IsLocal() || user.PasswordHash == "" {
		return nil, invalid
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			s.logger.Info("local login rejected", slog.Int64("userID", user.ID))
			return nil, invalid
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", user.ID, err)
	}

	s.logger.Info("local user logged in", slog.Int64("userID", user.ID))

	return user, nil
}

// WhoAmI returns the user record behind an authenticated identity.
//
// A local identity must map to an existing local record; it never resolves to
// an OAuth2 row that shares the email. An OAuth2 identity whose record is
// missing gets one created from its claims; only that creating branch writes.
func (s *AuthService) WhoAmI(ctx context.Context, identity auth.Identity) (*model.User, error) {
	switch id := identity.(type) {
	case auth.LocalIdentity:
		user, err := s.users.FindByProviderAndProviderID(ctx, model.ProviderLocal, id.Email)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("service/auth: finding local user: %w", err)
		}
		return user, nil

	case auth.OAuth2Identity:
		user, err := s.users.FindByProviderAndProviderID(ctx, id.Provider, id.Subject)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: finding user %s:%s: %w", id.Provider, id.Subject, err)
		}

		user = &model.User{
			Provider:   id.Provider,
			ProviderID: id.Subject,
			Email:      id.Claims.Email,
			Name:       id.Claims.Name,
			AvatarURL:  id.Claims.Picture,
		}
		created, err := s.users.FindOrCreateByProvider(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("service/auth: creating user %s:%s: %w", id.Provider, id.Subject, err)
		}
		if created {
			s.logger.Info("user created from session identity",
				slog.Int64("userID", user.ID),
				slog.String("provider", user.Provider),
			)
		}
		return user, nil

	case nil:
		return nil, apperror.Unauthorized("Authentication required")

	default:
		return nil, apperror.Unauthorized("Unsupported identity")
	}
}
