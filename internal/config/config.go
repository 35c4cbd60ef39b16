// Package config provides configuration management for tenantdesk.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (DATABASE_URL, SERVER_PORT, SETTINGS_SESSION_TTL, ...)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	River    RiverConfig    `mapstructure:"river"`
	Security SecurityConfig `mapstructure:"security"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Settings SettingsConfig `mapstructure:"settings"`
	Assets   AssetsConfig   `mapstructure:"assets"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	// UnsafeAllowAllOrigins honors "*" in AllowedOrigins and turns credentials off.
	UnsafeAllowAllOrigins bool `mapstructure:"unsafe_allow_all_origins"`
	// ValidateRequests enables OpenAPI request validation.
	ValidateRequests bool `mapstructure:"validate_requests"`
}

// DatabaseConfig contains PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// MigrateURL returns the DSN in the pgx5:// scheme expected by golang-migrate.
func (c DatabaseConfig) MigrateURL() string {
	dsn := c.DSN()
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// StorageConfig selects the backing store.
// "memory" keeps everything in process and is meant for local development.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// SeedFile is applied at startup with the memory driver.
	SeedFile string `mapstructure:"seed_file"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	// AssetRetention is how long superseded avatar blobs are kept before purge.
	AssetRetention time.Duration `mapstructure:"asset_retention"`
	PurgeInterval  time.Duration `mapstructure:"purge_interval"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTExpiresIn  time.Duration `mapstructure:"jwt_expires_in"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	CommitPoolSize  int `mapstructure:"commit_pool_size"`
}

// SettingsConfig governs settings edit sessions and account forms.
type SettingsConfig struct {
	// SessionTTL closes idle edit sessions.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// SupportedLanguages is the allow list for the userLang field.
	SupportedLanguages []string `mapstructure:"supported_languages"`
}

// AssetsConfig governs profile picture uploads.
type AssetsConfig struct {
	MaxUploadBytes      int64    `mapstructure:"max_upload_bytes"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Nested keys map to upper-case env names: settings.session_ttl → SETTINGS_SESSION_TTL.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/tenantdesk")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage.Driver)
	}
	if c.Settings.SessionTTL <= 0 {
		return fmt.Errorf("settings.session_ttl must be positive")
	}
	if len(c.Settings.SupportedLanguages) == 0 {
		return fmt.Errorf("settings.supported_languages must not be empty")
	}
	if c.Assets.MaxUploadBytes <= 0 {
		return fmt.Errorf("assets.max_upload_bytes must be positive")
	}
	return nil
}

// ensureSecrets generates a signing key when none is configured.
// Tokens issued with a generated key do not survive a restart.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey != "" {
		return nil
	}
	key, err := generateSecureRandomHex(32)
	if err != nil {
		return fmt.Errorf("auto-generate jwt signing key: %w", err)
	}
	c.Security.JWTSigningKey = key
	logBootstrapWarn(
		"auto-generated jwt_signing_key; set SECURITY_JWT_SIGNING_KEY for tokens that survive restarts",
		zap.Int("length", len(key)),
	)
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allow_credentials", true)
	v.SetDefault("server.unsafe_allow_all_origins", false)
	v.SetDefault("server.validate_requests", true)

	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "tenantdesk")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "tenantdesk")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Storage
	v.SetDefault("storage.driver", StoragePostgres)
	v.SetDefault("storage.seed_file", "")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 5)
	v.SetDefault("river.asset_retention", "168h")
	v.SetDefault("river.purge_interval", "6h")

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_issuer", "tenantdesk")
	v.SetDefault("security.jwt_expires_in", "12h")
	v.SetDefault("security.bcrypt_cost", 12)

	// Worker pools
	v.SetDefault("worker.general_pool_size", 32)
	v.SetDefault("worker.commit_pool_size", 64)

	// Settings sessions
	v.SetDefault("settings.session_ttl", "30m")
	v.SetDefault("settings.supported_languages", []string{"en", "de", "es", "fr", "ja", "pt", "zh"})

	// Assets
	v.SetDefault("assets.max_upload_bytes", 5*1024*1024)
	v.SetDefault("assets.allowed_content_types", []string{"image/png", "image/jpeg", "image/gif", "image/webp"})
}
