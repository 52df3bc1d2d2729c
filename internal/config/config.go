// Package config loads the configuration shared by the server and the CLI.
//
// Values come from, lowest precedence first:
//  1. built-in defaults
//  2. an optional YAML file
//  3. environment variables prefixed AUTHOR_ (AUTHOR_SERVER_PORT,
//     AUTHOR_AUTH_JWT_SECRET, AUTHOR_CLIENT_BASE_URL, ...)
//  4. command-line flags bound by the caller
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sakif/example-author/internal/executor/docker"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTHOR"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Client   ClientConfig   `mapstructure:"client"`
}

type ServerConfig struct {
	Port    int           `mapstructure:"port"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
	// ExecuteRate is the sustained number of execute requests per second
	// across the server; zero disables the limit.
	ExecuteRate  float64 `mapstructure:"execute_rate"`
	ExecuteBurst int     `mapstructure:"execute_burst"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	GitHubClientID     string        `mapstructure:"github_client_id"`
	GitHubClientSecret string        `mapstructure:"github_client_secret"`
	GitHubCallbackURL  string        `mapstructure:"github_callback_url"`
}

// GitHubEnabled reports whether GitHub login is configured.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

type ExecutorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Image          string        `mapstructure:"image"`
	MemoryLimit    int64         `mapstructure:"memory_limit"`
	CPULimit       float64       `mapstructure:"cpu_limit"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PoolSize       int           `mapstructure:"pool_size"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
}

// Docker converts the section into the sandbox's own config.
func (e ExecutorConfig) Docker() docker.Config {
	return docker.Config{
		Image:          e.Image,
		MemoryLimit:    e.MemoryLimit,
		CPULimit:       e.CPULimit,
		Timeout:        e.Timeout,
		PoolSize:       e.PoolSize,
		MaxOutputBytes: e.MaxOutputBytes,
	}
}

// ClientConfig configures the author CLI.
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Email          string        `mapstructure:"email"`
	Password       string        `mapstructure:"password"`
	Token          string        `mapstructure:"token"`
	SaveDelay      time.Duration `mapstructure:"save_delay"`
	ReleaseOnClose bool          `mapstructure:"release_on_close"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// setDefaults registers every key. AutomaticEnv only overrides keys viper
// already knows about, so keys without a useful default still get "".
func setDefaults(v *viper.Viper) {
	sandbox := docker.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.lock_ttl", 30*time.Minute)
	v.SetDefault("server.execute_rate", 2.0)
	v.SetDefault("server.execute_burst", 5)

	v.SetDefault("database.path", "data/examples.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.github_client_id", "")
	v.SetDefault("auth.github_client_secret", "")
	v.SetDefault("auth.github_callback_url", "")

	v.SetDefault("executor.enabled", true)
	v.SetDefault("executor.image", sandbox.Image)
	v.SetDefault("executor.memory_limit", sandbox.MemoryLimit)
	v.SetDefault("executor.cpu_limit", sandbox.CPULimit)
	v.SetDefault("executor.timeout", sandbox.Timeout)
	v.SetDefault("executor.pool_size", sandbox.PoolSize)
	v.SetDefault("executor.max_output_bytes", sandbox.MaxOutputBytes)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.email", "")
	v.SetDefault("client.password", "")
	v.SetDefault("client.token", "")
	v.SetDefault("client.save_delay", time.Second)
	v.SetDefault("client.release_on_close", false)
	v.SetDefault("client.request_timeout", 30*time.Second)
}

// NewViper returns a viper instance with defaults and environment overrides
// applied and, when configFile is not empty, the file read in. Callers bind
// their flags to it before calling FromViper.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Load is NewViper followed by FromViper, for callers with no flags to bind.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Validate checks values that would otherwise fail far from where they were
// configured. The JWT secret is checked by the server, which is the only
// component that needs it.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port))
	}
	if c.Server.LockTTL <= 0 {
		errs = append(errs, errors.New("server.lock_ttl must be positive"))
	}
	if c.Server.ExecuteRate < 0 {
		errs = append(errs, errors.New("server.execute_rate must not be negative"))
	}
	if c.Server.ExecuteRate > 0 && c.Server.ExecuteBurst < 1 {
		errs = append(errs, errors.New("server.execute_burst must be at least 1"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Executor.Enabled {
		if c.Executor.Image == "" {
			errs = append(errs, errors.New("executor.image is required"))
		}
		if c.Executor.Timeout <= 0 {
			errs = append(errs, errors.New("executor.timeout must be positive"))
		}
		if c.Executor.PoolSize < 1 {
			errs = append(errs, errors.New("executor.pool_size must be at least 1"))
		}
	}
	if c.Client.SaveDelay <= 0 {
		errs = append(errs, errors.New("client.save_delay must be positive"))
	}
	if !strings.HasPrefix(c.Client.BaseURL, "http://") && !strings.HasPrefix(c.Client.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("client.base_url %q must be an http(s) URL", c.Client.BaseURL))
	}

	return errors.Join(errs...)
}
