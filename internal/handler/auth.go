package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/atlasstudio/internal/auth"
	"github.com/sakif/atlasstudio/internal/service"
)

const stateCookieName = "oauth_state"

// IdentityProvider is an OAuth2 provider the login flow can redirect to.
// *auth.GoogleProvider implements it.
type IdentityProvider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Claims, error)
}

// AuthConfig holds the cookie and redirect settings of the browser flows.
type AuthConfig struct {
	CookieSecure    bool
	LoginSuccessURL string // where the browser lands after an OAuth2 login
	LoginPageURL    string // where logout and failed OAuth2 logins land
}

// AuthHandler serves registration, login, logout, the OAuth2 redirect flow
// and /api/me.
//
// DEPENDENCY CHAIN:
//   - auth      *service.AuthService  → Register / Login / WhoAmI
//   - bridge    *service.OAuth2Bridge → links an OAuth2 login to a user record
//   - tokens    *auth.TokenService    → signs the session cookie
//   - providers IdentityProvider      → one per configured OAuth2 provider
type AuthHandler struct {
	auth      *service.AuthService
	bridge    *service.OAuth2Bridge
	tokens    *auth.TokenService
	providers map[string]IdentityProvider
	config    AuthConfig
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler. Providers are keyed by Name(); a
// provider that is not passed here answers 503 on its routes.
func NewAuthHandler(
	authService *service.AuthService,
	bridge *service.OAuth2Bridge,
	tokens *auth.TokenService,
	config AuthConfig,
	logger *slog.Logger,
	providers ...IdentityProvider,
) *AuthHandler {
	byName := make(map[string]IdentityProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		auth:      authService,
		bridge:    bridge,
		tokens:    tokens,
		providers: byName,
		config:    config,
		logger:    logger,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister creates a local account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"email": "a@x.com", "password": "...", "name": "Ann"}
// RESPONSE: 201 with the new user. Registration does not log the user in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid register JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.logFailure("register failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin checks a local email/password pair and starts a session.
//
// HTTP: POST /api/auth/login
//
// Two body formats are accepted:
//   - application/x-www-form-urlencoded with "username" and "password",
//     which is what a plain HTML login form posts
//   - application/json {"email": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			writeBadRequest(w, "Invalid form body")
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid login JSON", slog.String("error", err.Error()))
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logFailure("login failed", err)
		writeError(w, err)
		return
	}

	if !h.startSession(w, auth.LocalIdentity{Email: user.Email}) {
		writeError(w, errSessionFailed)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleMe returns the record of the user behind the session.
//
// HTTP: GET /api/me
// Auth: Required (RequireAuth puts the Identity in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	user, err := h.auth.WhoAmI(r.Context(), identity)
	if err != nil {
		h.logFailure("whoami failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLogout deletes the session cookie and sends the browser to the login
// page. The token stays valid until it expires, but the browser no longer has
// it.
//
// HTTP: GET|POST /logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.config.CookieSecure)
	http.Redirect(w, r, h.config.LoginPageURL, http.StatusSeeOther)
}

// HandleOAuthAuthorize redirects the browser to the provider's consent page.
//
// HTTP: GET /oauth2/authorization/{provider}
//
// Mounted behind OptionalAuth: a browser that already has a valid session
// goes straight to the success page instead of through the provider again.
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	if _, signedIn := auth.IdentityFromContext(r.Context()); signedIn {
		http.Redirect(w, r, h.config.LoginSuccessURL, http.StatusSeeOther)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes the OAuth2 login.
//
// HTTP: GET /login/oauth2/code/{provider}?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Redirect to the login page if the provider reported an error
//  3. Exchange the code for the user's claims
//  4. Create or refresh the user record (OAuth2Bridge)
//  5. Issue the session cookie and redirect to the frontend
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()

	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("oauth callback: missing state cookie", slog.String("provider", provider.Name()))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if query.Get("state") != stateCookie.Value {
		h.logger.Warn("oauth callback: state mismatch", slog.String("provider", provider.Name()))
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// --- Step 2: Provider-reported error (e.g. access_denied) ---
	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: provider returned error",
			slog.String("provider", provider.Name()),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, h.loginPageWithError(errParam), http.StatusSeeOther)
		return
	}

	code := query.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	// --- Step 3: Exchange code for claims ---
	claims, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback: exchange failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Link to a user record ---
	_, identity, err := h.bridge.LoadUser(r.Context(), provider.Name(), *claims)
	if err != nil {
		h.logger.Error("oauth callback: loading user failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 5: Session cookie + redirect ---
	if !h.startSession(w, identity) {
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.config.LoginSuccessURL, http.StatusSeeOther)
}

func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (IdentityProvider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		h.logger.Warn("oauth provider not configured", slog.String("provider", name))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "provider_unavailable",
			Message: "Login with " + name + " is not configured",
		})
		return nil, false
	}
	return p, true
}

func (h *AuthHandler) startSession(w http.ResponseWriter, identity auth.Identity) bool {
	token, err := h.tokens.Issue(identity)
	if err != nil {
		h.logger.Error("issuing session token failed", slog.String("error", err.Error()))
		return false
	}
	auth.SetSessionCookie(w, token, h.tokens.TTL(), h.config.CookieSecure)
	return true
}

func (h *AuthHandler) loginPageWithError(errParam string) string {
	u, err := url.Parse(h.config.LoginPageURL)
	if err != nil {
		return h.config.LoginPageURL
	}
	q := u.Query()
	q.Set("error", errParam)
	u.RawQuery = q.Encode()
	return u.String()
}

// logFailure logs client errors at Info and everything else at Error.
func (h *AuthHandler) logFailure(msg string, err error) {
	if isClientError(err) {
		h.logger.Info(msg, slog.String("error", err.Error()))
		return
	}
	h.logger.Error(msg, slog.String("error", err.Error()))
}

var _ IdentityProvider = (*auth.GoogleProvider)(nil)
