// Package config loads the immutable process configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration for the service. It is built once by Load
// and must not be mutated afterwards.
type Config struct {
	App      AppConfig      `koanf:"app" yaml:"app"`
	Server   ServerConfig   `koanf:"server" yaml:"server"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Google   GoogleConfig   `koanf:"google" yaml:"google"`
	State    StateConfig    `koanf:"state" yaml:"state"`
	Agent    AgentConfig    `koanf:"agent" yaml:"agent"`
	Logging  LoggingConfig  `koanf:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
}

// AppConfig identifies the deployment.
type AppConfig struct {
	Env  string `koanf:"env" yaml:"env"`   // dev, prod
	Name string `koanf:"name" yaml:"name"` // used in logs and /health
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host         string   `koanf:"host" yaml:"host"`
	Port         int      `koanf:"port" yaml:"port"`
	AllowedHosts []string `koanf:"allowed_hosts" yaml:"allowed_hosts"`
	CORSOrigins  []string `koanf:"cors_allow_origins" yaml:"cors_allow_origins"`
	FrontendDir  string   `koanf:"frontend_dir" yaml:"frontend_dir"`
}

// DatabaseConfig holds the persistence connection string.
type DatabaseConfig struct {
	URL string `koanf:"url" yaml:"url"` // sqlite:///./app.db or postgres://...
}

// GoogleConfig holds OAuth client and endpoint settings.
type GoogleConfig struct {
	ClientID     string        `koanf:"client_id" yaml:"client_id"`
	ClientSecret string        `koanf:"client_secret" yaml:"client_secret"`
	RedirectURI  string        `koanf:"redirect_uri" yaml:"redirect_uri"`
	Scopes       []string      `koanf:"scopes" yaml:"scopes"`
	AuthURL      string        `koanf:"auth_url" yaml:"auth_url"`
	TokenURL     string        `koanf:"token_url" yaml:"token_url"`
	GmailAPIBase string        `koanf:"gmail_api_base" yaml:"gmail_api_base"` // empty uses the library default
	HTTPTimeout  time.Duration `koanf:"http_timeout" yaml:"http_timeout"`
}

// StateConfig holds the OAuth state signing settings.
type StateConfig struct {
	Secret string        `koanf:"secret" yaml:"secret"`
	MaxAge time.Duration `koanf:"max_age" yaml:"max_age"`
}

// AgentConfig holds the LLM agent settings.
type AgentConfig struct {
	GeminiAPIKey  string `koanf:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel   string `koanf:"gemini_model" yaml:"gemini_model"`
	GeminiBaseURL string `koanf:"gemini_base_url" yaml:"gemini_base_url"`
	MaxTurns      int    `koanf:"max_turns" yaml:"max_turns"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" yaml:"format"` // json, text
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

// DefaultStateSecret is the placeholder secret shipped with the defaults.
const DefaultStateSecret = "change-me"

// DefaultConfig returns a configuration with the stock defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:  "dev",
			Name: "gmail_agents",
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			AllowedHosts: []string{"localhost", "127.0.0.1"},
			CORSOrigins:  []string{"http://localhost:8000", "http://127.0.0.1:8000"},
			FrontendDir:  "./frontend",
		},
		Database: DatabaseConfig{
			URL: "sqlite:///./app.db",
		},
		Google: GoogleConfig{
			RedirectURI: "http://localhost:8000/api/callback",
			Scopes:      []string{"https://www.googleapis.com/auth/gmail.readonly"},
			AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:    "https://oauth2.googleapis.com/token",
			HTTPTimeout: 20 * time.Second,
		},
		State: StateConfig{
			Secret: DefaultStateSecret,
			MaxAge: 600 * time.Second,
		},
		Agent: AgentConfig{
			GeminiModel: "gemini-2.5-flash",
			MaxTurns:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// process environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var getenv = os.Getenv

func applyEnv(cfg *Config, get func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(get(key)); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := strings.TrimSpace(get(key)); v != "" {
			*dst = SplitList(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(get(key))
		if v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(get(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("APP_ENV", &cfg.App.Env)
	str("APP_NAME", &cfg.App.Name)
	str("HOST", &cfg.Server.Host)
	list("ALLOWED_HOSTS", &cfg.Server.AllowedHosts)
	list("CORS_ALLOW_ORIGINS", &cfg.Server.CORSOrigins)
	str("FRONTEND_DIR", &cfg.Server.FrontendDir)
	str("DATABASE_URL", &cfg.Database.URL)
	str("GOOGLE_CLIENT_ID", &cfg.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &cfg.Google.ClientSecret)
	str("GOOGLE_REDIRECT_URI", &cfg.Google.RedirectURI)
	list("GOOGLE_SCOPES", &cfg.Google.Scopes)
	str("GOOGLE_AUTH_URL", &cfg.Google.AuthURL)
	str("GOOGLE_TOKEN_URL", &cfg.Google.TokenURL)
	str("GMAIL_API_BASE", &cfg.Google.GmailAPIBase)
	str("OAUTH_STATE_SECRET", &cfg.State.Secret)
	str("GEMINI_API_KEY", &cfg.Agent.GeminiAPIKey)
	str("GEMINI_MODEL", &cfg.Agent.GeminiModel)
	str("GEMINI_BASE_URL", &cfg.Agent.GeminiBaseURL)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	if err := num("PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := num("AGENT_MAX_TURNS", &cfg.Agent.MaxTurns); err != nil {
		return err
	}
	if err := dur("HTTP_TIMEOUT", &cfg.Google.HTTPTimeout); err != nil {
		return err
	}
	if err := dur("OAUTH_STATE_MAX_AGE", &cfg.State.MaxAge); err != nil {
		return err
	}
	if v := strings.TrimSpace(get("METRICS_ENABLED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("METRICS_ENABLED: %w", err)
		}
		cfg.Metrics.Enabled = b
	}
	return nil
}

// parseDuration accepts Go durations ("20s") and bare seconds ("20").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// SplitList splits a comma or whitespace separated list, dropping empty items.
func SplitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks if the configuration is usable. Missing OAuth client
// credentials are not an error here: they only disable the authorization flow.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.URL) == "" {
		errs = append(errs, errors.New("database url is required"))
	}
	if c.State.Secret == "" {
		errs = append(errs, errors.New("oauth state secret is required"))
	}
	if c.State.MaxAge <= 0 {
		errs = append(errs, errors.New("oauth state max age must be positive"))
	}
	if c.Google.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.Agent.MaxTurns < 1 {
		errs = append(errs, errors.New("agent max turns must be at least 1"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// OAuthConfigured reports whether the Google client credentials are present.
func (c *Config) OAuthConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// AgentConfigured reports whether the LLM agent can be used.
func (c *Config) AgentConfigured() bool {
	return c.Agent.GeminiAPIKey != ""
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// UsingDefaultStateSecret reports whether the placeholder state secret is in use.
func (c *Config) UsingDefaultStateSecret() bool {
	return c.State.Secret == DefaultStateSecret
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c *Config) Redacted() Config {
	cp := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	cp.Google.ClientSecret = mask(cp.Google.ClientSecret)
	cp.State.Secret = mask(cp.State.Secret)
	cp.Agent.GeminiAPIKey = mask(cp.Agent.GeminiAPIKey)
	cp.Database.URL = redactURL(cp.Database.URL)
	return cp
}

// redactURL hides the password portion of a connection string.
func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	creds := raw[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return raw[:scheme+3] + creds[:i] + ":********" + raw[at:]
	}
	return raw
}
