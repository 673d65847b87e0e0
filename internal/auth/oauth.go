package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/atlasstudio/internal/model"
)

// googleUserInfoURL is Google's OpenID Connect userinfo endpoint. Its response
// uses the standard claim names (sub, email, name, picture).
const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider drives the Authorization Code flow against Google:
//
//  1. AuthURL sends the browser to Google's consent screen with a state value.
//  2. Google redirects back to the callback URL with a short-lived code.
//  3. Exchange trades the code for an access token (server to server, using the
//     client secret) and fetches the user's claims with it.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider. callbackURL must match one of
// the authorized redirect URIs configured for the client in Google Cloud.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
	}
}

// Name returns the provider's registration name, which becomes the Provider
// column of users created through it.
func (p *GoogleProvider) Name() string {
	return model.ProviderGoogle
}

// AuthURL returns the consent screen URL. state is echoed back on the
// callback and must be checked there.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow: code → access token → userinfo claims.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Claims, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}

	if claims.Subject == "" {
		return nil, errors.New("auth: Google userinfo has no subject")
	}

	return &claims, nil
}
