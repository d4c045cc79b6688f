// Package config loads the server configuration.
//
// Sources, lowest priority first:
//
//	defaults (setDefaults) → config.yaml (optional) → environment variables
//
// cmd/server loads a .env file into the environment before calling Load,
// so .env values behave exactly like exported variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// devJWTSecret is the default secret. It is refused in production.
const devJWTSecret = "campus-link-development-secret"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config holds everything cmd/server needs to build the application.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        int    `mapstructure:"PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	PublicURL   string `mapstructure:"PUBLIC_URL"`

	// Document store
	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	DBPath        string `mapstructure:"DB_PATH"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	// Auth
	JWTSecret          string `mapstructure:"JWT_SECRET"`
	GoogleClientID     string `mapstructure:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `mapstructure:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `mapstructure:"GOOGLE_CALLBACK_URL"`
	SecureCookies      bool   `mapstructure:"SECURE_COOKIES"`

	// Sessions and projects
	ProfileReadTimeout time.Duration `mapstructure:"PROFILE_READ_TIMEOUT"`
	OwnerOnlyDelete    bool          `mapstructure:"OWNER_ONLY_DELETE"`
}

// Load reads config.yaml from dir (or "." and "./config" when dir is
// empty), overlays the environment and validates the result.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if cfg.PublicURL == "" {
		cfg.PublicURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = cfg.PublicURL + "/auth/google/callback"
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PUBLIC_URL", "")

	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "data/campus-link.db")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "campus_link")

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_CALLBACK_URL", "")
	v.SetDefault("SECURE_COOKIES", false)

	v.SetDefault("PROFILE_READ_TIMEOUT", "10s")
	v.SetDefault("OWNER_ONLY_DELETE", false)
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", cfg.Port)
	}
	if _, err := cfg.SlogLevel(); err != nil {
		return err
	}
	if len(cfg.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if cfg.IsProduction() && cfg.JWTSecret == devJWTSecret {
		return errors.New("JWT_SECRET must be set in production")
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite store")
		}
	case DriverMongo:
		if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
			return errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMongo, cfg.StoreDriver)
	}

	if cfg.ProfileReadTimeout <= 0 {
		return errors.New("PROFILE_READ_TIMEOUT must be positive")
	}
	if (cfg.GoogleClientID == "") != (cfg.GoogleClientSecret == "") {
		return errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	return nil
}

// SlogLevel parses LOG_LEVEL.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return level, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GoogleEnabled reports whether federated sign-in is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
