// Package config loads server configuration from environment variables, with
// an optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// MinSessionSecretLen is the shortest SESSION_SECRET accepted.
const MinSessionSecretLen = 16

// Config is the complete server configuration.
type Config struct {
	Port   int    `env:"PORT"    envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/atlasstudio.db"`

	SessionSecret string        `env:"SESSION_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL"   envDefault:"24h"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"false"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	FrontendURL      string `env:"FRONTEND_URL"       envDefault:"http://localhost:3000"`
	LoginSuccessPath string `env:"LOGIN_SUCCESS_PATH" envDefault:"/WebCreator"`
	LoginPagePath    string `env:"LOGIN_PAGE_PATH"    envDefault:"/Login"`

	// Defaults to FrontendURL when empty.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the given .env files (default ".env") if they exist, then parses
// the environment. Variables already set in the environment win over values
// from the files.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
	if len(c.CORSAllowedOrigins) == 0 {
		c.CORSAllowedOrigins = []string{c.FrontendURL}
	}
	if c.GoogleCallbackURL == "" {
		c.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/login/oauth2/code/google", c.Port)
	}
}

// Validate reports the first setting the server cannot run with.
func (c Config) Validate() error {
	if len(c.SessionSecret) < MinSessionSecretLen {
		return fmt.Errorf("config: SESSION_SECRET must be at least %d characters", MinSessionSecretLen)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		return errors.New("config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	return nil
}

// GoogleEnabled reports whether Google login is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// LoginSuccessURL is where the browser lands after an OAuth2 login.
func (c Config) LoginSuccessURL() string {
	return c.FrontendURL + c.LoginSuccessPath
}

// LoginPageURL is the frontend login page, used after logout and failed
// OAuth2 logins.
func (c Config) LoginPageURL() string {
	return c.FrontendURL + c.LoginPagePath
}
