package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/folio/internal/cache"
	"github.com/starford/folio/internal/logging"
	"github.com/starford/folio/internal/parser"
	"github.com/starford/folio/internal/remote"
	"github.com/starford/folio/internal/workspace"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Remote providers.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Cache     CacheConfig       `yaml:"cache"`
	Remote    RemoteConfig      `yaml:"remote"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = logging.FormatAuto
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(logging.Formats...)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkspaceConfig describes the local directory to manage. An empty Root
// reopens the workspace saved in the cache by the previous run.
//
// Multiplicity maps a front matter key to "single", "multi" or "auto" and
// forces that shape when posts are written back.
type WorkspaceConfig struct {
	Root             string            `yaml:"root"`
	IncludeEmptyDirs bool              `yaml:"include_empty_dirs"`
	ReadConcurrency  int               `yaml:"read_concurrency"`
	Multiplicity     map[string]string `yaml:"multiplicity"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ReadConcurrency, validation.Min(0)),
	); err != nil {
		return err
	}
	_, err := c.Multiplicities()
	return err
}

// Multiplicities parses the configured overrides.
func (c *WorkspaceConfig) Multiplicities() (map[string]parser.Multiplicity, error) {
	out := make(map[string]parser.Multiplicity, len(c.Multiplicity))
	for key, s := range c.Multiplicity {
		m, err := parser.ParseMultiplicity(s)
		if err != nil {
			return nil, fmt.Errorf("workspace: multiplicity of %q: %w", key, err)
		}
		out[key] = m
	}
	return out, nil
}

// CacheConfig holds the local SQLite cache configuration.
type CacheConfig struct {
	Path        string        `yaml:"path"`
	AppStateTTL time.Duration `yaml:"app_state_ttl"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.AppStateTTL, validation.Min(time.Duration(0))),
	)
}

// RemoteConfig points the remote adapter at a hosted repository.
type RemoteConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Provider          string  `yaml:"provider"`
	BaseURL           string  `yaml:"base_url"`
	Owner             string  `yaml:"owner"`
	Repo              string  `yaml:"repo"`
	Branch            string  `yaml:"branch"`
	Token             string  `yaml:"token"`
	BatchSize         int     `yaml:"batch_size"`
	MaxPages          int     `yaml:"max_pages"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Validate validates the remote configuration. Nothing is checked while the
// adapter is disabled.
func (c *RemoteConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderGitHub, ProviderGitLab)),
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.BatchSize, validation.Min(0)),
		validation.Field(&c.MaxPages, validation.Min(0)),
		validation.Field(&c.RequestsPerSecond, validation.Min(0.0)),
	)
}

// Target returns the repository branch to mirror.
func (c *RemoteConfig) Target() remote.Target {
	return remote.Target{Provider: c.Provider, Owner: c.Owner, Repo: c.Repo, Branch: c.Branch}
}

// ClientOptions returns the HTTP options shared by providers.
func (c *RemoteConfig) ClientOptions() remote.ClientOptions {
	return remote.ClientOptions{
		BaseURL:           c.BaseURL,
		Token:             c.Token,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: logging.FormatAuto,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Root:            "./content",
			ReadConcurrency: workspace.DefaultReadConcurrency,
		},
		Cache: CacheConfig{
			Path:        "./folio.db",
			AppStateTTL: cache.DefaultAppStateTTL,
		},
		Remote: RemoteConfig{
			Provider:  ProviderGitHub,
			Branch:    "main",
			BatchSize: remote.DefaultBatchSize,
			MaxPages:  remote.DefaultMaxPages,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
