package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/document"
	"github.com/starford/raido/internal/projectstore"
	"github.com/starford/raido/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Reload    ReloadConfig      `yaml:"reload"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Reload.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
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

// WorkspaceConfig describes the directory holding project definitions.
//
// Projects lists the workspace-relative files to open at startup. When it is
// empty every project file under Root is opened, and files created later are
// opened when the watcher first sees them.
type WorkspaceConfig struct {
	Root     string        `yaml:"root"`
	Projects []string      `yaml:"projects"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Projects, validation.Each(validation.Required, validation.By(isProjectFile))),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// Discover reports whether projects are found by scanning the workspace.
func (c *WorkspaceConfig) Discover() bool {
	return len(c.Projects) == 0
}

func isProjectFile(v any) error {
	p, _ := v.(string)
	if !document.IsProjectFile(p) {
		return fmt.Errorf("%q is not a recognised project file", p)
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

// ReloadConfig tunes the project store lock and reload fallback.
type ReloadConfig struct {
	// MaxReaders is the number of concurrent readers the store admits.
	MaxReaders int64 `yaml:"max_readers"`
	// LockTimeout bounds how long a watcher-triggered reload waits for the
	// write lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`
	// ReopenOnFailure discards and re-reads a document whose in-place
	// replacement failed part way.
	ReopenOnFailure bool `yaml:"reopen_on_failure"`
}

// Validate validates the reload configuration.
func (c *ReloadConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxReaders, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.LockTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workspace: WorkspaceConfig{
			Root:     "./workspace",
			Watch:    true,
			Debounce: watcher.DefaultDebounce,
		},
		SQLite: SQLiteConfig{
			Path: "./raido.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Reload: ReloadConfig{
			MaxReaders:      projectstore.DefaultMaxReaders,
			LockTimeout:     30 * time.Second,
			ReopenOnFailure: true,
		},
	}
}
