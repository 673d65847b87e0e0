package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/atlasstudio/internal/apperror"
	"github.com/sakif/atlasstudio/internal/auth"
	"github.com/sakif/atlasstudio/internal/model"
	"github.com/sakif/atlasstudio/internal/repository"
)

// OAuth2Bridge links an OAuth2 login to a local user record. The callback
// handler calls it right after the code exchange, before a session exists.
type OAuth2Bridge struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewOAuth2Bridge(users repository.UserRepository, logger *slog.Logger) *OAuth2Bridge {
	return &OAuth2Bridge{users: users, logger: logger}
}

// LoadUser finds or creates the user for (provider, claims.Subject), refreshes
// its name and avatar from the claims and returns the record together with the
// identity to put in the session.
//
// A first login creates the row with the claim's email and no password. Later
// logins keep the row's id and email and overwrite only name and avatar, so
// profile changes at the provider show up on the next login. The repository
// does all of this in one atomic upsert.
func (b *OAuth2Bridge) LoadUser(ctx context.Context, provider string, claims auth.Claims) (*model.User, auth.OAuth2Identity, error) {
	if strings.TrimSpace(provider) == "" {
		return nil, auth.OAuth2Identity{}, apperror.ValidationFailed("provider", "identity provider is required")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, auth.OAuth2Identity{}, apperror.ValidationFailed("sub", "identity provider returned no subject")
	}

	user := &model.User{
		Provider:   provider,
		ProviderID: claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		AvatarURL:  claims.Picture,
	}
	if err := b.users.UpsertByProvider(ctx, user); err != nil {
		return nil, auth.OAuth2Identity{}, fmt.Errorf("service/bridge: upserting %s:%s: %w", provider, claims.Subject, err)
	}

	b.logger.Info("user authenticated via OAuth2",
		slog.Int64("userID", user.ID),
		slog.String("provider", provider),
	)

	return user, auth.OAuth2Identity{
		Provider: provider,
		Subject:  claims.Subject,
		Claims:   claims,
	}, nil
}
