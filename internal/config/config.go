// Package config loads runtime settings from an optional YAML file and
// ESTIMATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "ESTIMATE"
	redacted  = "[redacted]"

	// DevJWTSecret is only accepted when Dev is set.
	DevJWTSecret = "estimate-dev-secret"
)

type Settings struct {
	Dev      bool           `mapstructure:"dev" yaml:"dev"`
	Server   ServerSettings `mapstructure:"server" yaml:"server"`
	Database DBSettings     `mapstructure:"database" yaml:"database"`
	Auth     AuthSettings   `mapstructure:"auth" yaml:"auth"`
	Tokens   TokenSettings  `mapstructure:"tokens" yaml:"tokens"`
	Limits   LimitSettings  `mapstructure:"limits" yaml:"limits"`
	Review   ReviewSettings `mapstructure:"review" yaml:"review"`
	Admin    AdminSettings  `mapstructure:"admin" yaml:"admin"`
	HTTP     HTTPSettings   `mapstructure:"http" yaml:"http"`
	Log      LogSettings    `mapstructure:"log" yaml:"log"`
	Cache    CacheSettings  `mapstructure:"cache" yaml:"cache"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type DBSettings struct {
	Path          string `mapstructure:"path" yaml:"path"`
	MigrationsDir string `mapstructure:"migrations_dir" yaml:"migrations_dir"`
}

type AuthSettings struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type TokenSettings struct {
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
	MaxPending int           `mapstructure:"max_pending" yaml:"max_pending"`
}

type LimitSettings struct {
	ReviewerPerDay int `mapstructure:"reviewer_per_day" yaml:"reviewer_per_day"`
	RevieweePerDay int `mapstructure:"reviewee_per_day" yaml:"reviewee_per_day"`
}

type ReviewSettings struct {
	MinSeconds      int    `mapstructure:"min_seconds" yaml:"min_seconds"`
	TurnstileSecret string `mapstructure:"turnstile_secret" yaml:"turnstile_secret"`
}

type AdminSettings struct {
	KeyHash string `mapstructure:"key_hash" yaml:"key_hash"`
}

type HTTPSettings struct {
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	CORS           bool    `mapstructure:"cors" yaml:"cors"`
}

type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type CacheSettings struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// SetDefaults registers every key so environment overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dev", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.path", "data/estimate.db")
	v.SetDefault("database.migrations_dir", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("tokens.secret", "")
	v.SetDefault("tokens.ttl", time.Hour)
	v.SetDefault("tokens.max_pending", 5)
	v.SetDefault("limits.reviewer_per_day", 10)
	v.SetDefault("limits.reviewee_per_day", 20)
	v.SetDefault("review.min_seconds", 20)
	v.SetDefault("review.turnstile_secret", "")
	v.SetDefault("admin.key_hash", "")
	v.SetDefault("http.rate_limit_rps", 5.0)
	v.SetDefault("http.rate_limit_burst", 10)
	v.SetDefault("http.cors", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("cache.ttl", 5*time.Minute)
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile, or searches the default locations when it is empty.
// A missing file in the default locations is not an error.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("estimate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/estimate")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".estimate"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if s.Dev && s.Auth.JWTSecret == "" {
		s.Auth.JWTSecret = DevJWTSecret
	}
	if s.Dev && s.Tokens.Secret == "" {
		s.Tokens.Secret = DevJWTSecret + "-tokens"
	}
	return &s, nil
}

// Validate rejects settings the server cannot run with.
func (s *Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if strings.TrimSpace(s.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if s.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	} else if s.Auth.JWTSecret == DevJWTSecret && !s.Dev {
		errs = append(errs, errors.New("auth.jwt_secret uses the development value outside dev mode"))
	}
	if s.Tokens.Secret == "" {
		errs = append(errs, errors.New("tokens.secret is required"))
	}
	if s.Tokens.TTL <= 0 {
		errs = append(errs, errors.New("tokens.ttl must be positive"))
	}
	if s.Tokens.MaxPending <= 0 {
		errs = append(errs, errors.New("tokens.max_pending must be positive"))
	}
	if s.Limits.ReviewerPerDay <= 0 || s.Limits.RevieweePerDay <= 0 {
		errs = append(errs, errors.New("limits must be positive"))
	}
	if s.Review.MinSeconds < 0 {
		errs = append(errs, errors.New("review.min_seconds must not be negative"))
	}
	if s.HTTP.RateLimitRPS < 0 || s.HTTP.RateLimitBurst < 0 {
		errs = append(errs, errors.New("http rate limits must not be negative"))
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", s.Log.Format))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked.
func (s Settings) Redacted() Settings {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return redacted
	}
	s.Auth.JWTSecret = mask(s.Auth.JWTSecret)
	s.Tokens.Secret = mask(s.Tokens.Secret)
	s.Admin.KeyHash = mask(s.Admin.KeyHash)
	s.Review.TurnstileSecret = mask(s.Review.TurnstileSecret)
	return s
}

// YAML renders the redacted settings.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s.Redacted())
}
