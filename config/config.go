// Package config loads classroll settings from the environment (and an optional
// .env file) and validates them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage backends.
const (
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Notification backends.
const (
	NotifyLog   = "log"
	NotifyHTTP  = "http"
	NotifyQueue = "queue"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Notify     NotifyConfig
	Attendance AttendanceConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `validate:"required"`
	Environment Environment `validate:"oneof=development staging production"`
	Version     string

	// Timezone decides which calendar day attendance is recorded for.
	Timezone string `validate:"required"`
	Location *time.Location

	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level      string `validate:"oneof=debug info warn error"`
	Format     string `validate:"oneof=json console auto"`
	File       string
	MaxSizeMB  int `validate:"gte=0"`
	MaxBackups int `validate:"gte=0"`
	MaxAgeDays int `validate:"gte=0"`
}

// HTTPConfig configures the webhook server.
type HTTPConfig struct {
	Host         string
	Port         int           `validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	IdleTimeout  time.Duration `validate:"gt=0"`

	// JWTSecret verifies bridge tokens; empty disables auth (development only).
	JWTSecret string
	JWTIssuer string
}

// StorageConfig selects the snapshot gateway.
type StorageConfig struct {
	Backend     string `validate:"oneof=file postgres"`
	FilePath    string `validate:"required_if=Backend file"`
	DatabaseURL string `validate:"required_if=Backend postgres"`

	MaxConns        int32 `validate:"gte=1"`
	MinConns        int32 `validate:"gte=0"`
	MaxConnLifetime time.Duration
	SaveTimeout     time.Duration `validate:"gt=0"`
}

// RedisConfig configures the session store and notification queue.
type RedisConfig struct {
	Enabled  bool
	Addr     string `validate:"required_if=Enabled true"`
	Password string
	DB       int `validate:"gte=0,lte=15"`
	PoolSize int `validate:"gte=1"`

	SessionTTL time.Duration `validate:"gt=0"`
	QueueKey   string        `validate:"required"`
}

// NotifyConfig configures outbound delivery to students.
type NotifyConfig struct {
	Backend     string        `validate:"oneof=log http queue"`
	GatewayURL  string        `validate:"omitempty,url"`
	Token       string
	MaxAttempts int           `validate:"gte=1"`
	// Timeout caps one notification including retries. Marking replies
	// wait for it.
	Timeout     time.Duration `validate:"gt=0"`
	Concurrency int           `validate:"gte=1"`
	RatePerSec  float64       `validate:"gte=0"`
	Burst       int           `validate:"gte=1"`
}

// AttendanceConfig holds domain settings.
type AttendanceConfig struct {
	IDSuffix  string  `validate:"required"`
	Threshold float64 `validate:"gt=0,lte=100"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load reads envFile (".env" when empty; a missing file is fine) and the
// process environment, applies defaults and validates the result.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := fromViper(v)

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.App.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App = AppConfig{
		Name:            v.GetString("APP_NAME"),
		Environment:     Environment(v.GetString("APP_ENV")),
		Version:         v.GetString("APP_VERSION"),
		Timezone:        v.GetString("APP_TIMEZONE"),
		ShutdownTimeout: v.GetDuration("APP_SHUTDOWN_TIMEOUT"),
	}

	cfg.Log = LogConfig{
		Level:      strings.ToLower(v.GetString("LOG_LEVEL")),
		Format:     strings.ToLower(v.GetString("LOG_FORMAT")),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	cfg.HTTP = HTTPConfig{
		Host:         v.GetString("HTTP_HOST"),
		Port:         v.GetInt("HTTP_PORT"),
		ReadTimeout:  v.GetDuration("HTTP_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("HTTP_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("HTTP_IDLE_TIMEOUT"),
		JWTSecret:    v.GetString("JWT_SECRET"),
		JWTIssuer:    v.GetString("JWT_ISSUER"),
	}

	cfg.Storage = StorageConfig{
		Backend:         strings.ToLower(v.GetString("STORAGE_BACKEND")),
		FilePath:        v.GetString("STORAGE_FILE"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		MaxConns:        v.GetInt32("DB_MAX_CONNS"),
		MinConns:        v.GetInt32("DB_MIN_CONNS"),
		MaxConnLifetime: v.GetDuration("DB_MAX_CONN_LIFETIME"),
		SaveTimeout:     v.GetDuration("STORAGE_SAVE_TIMEOUT"),
	}

	cfg.Redis = RedisConfig{
		Enabled:    v.GetBool("REDIS_ENABLED"),
		Addr:       v.GetString("REDIS_ADDR"),
		Password:   v.GetString("REDIS_PASSWORD"),
		DB:         v.GetInt("REDIS_DB"),
		PoolSize:   v.GetInt("REDIS_POOL_SIZE"),
		SessionTTL: v.GetDuration("REDIS_SESSION_TTL"),
		QueueKey:   v.GetString("REDIS_QUEUE_KEY"),
	}

	cfg.Notify = NotifyConfig{
		Backend:     strings.ToLower(v.GetString("NOTIFY_BACKEND")),
		GatewayURL:  v.GetString("NOTIFY_GATEWAY_URL"),
		Token:       v.GetString("NOTIFY_GATEWAY_TOKEN"),
		MaxAttempts: v.GetInt("NOTIFY_MAX_ATTEMPTS"),
		Timeout:     v.GetDuration("NOTIFY_TIMEOUT"),
		Concurrency: v.GetInt("NOTIFY_CONCURRENCY"),
		RatePerSec:  v.GetFloat64("NOTIFY_RATE"),
		Burst:       v.GetInt("NOTIFY_BURST"),
	}

	cfg.Attendance = AttendanceConfig{
		IDSuffix:  v.GetString("STUDENT_ID_SUFFIX"),
		Threshold: v.GetFloat64("LOW_ATTENDANCE_THRESHOLD"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "classroll")
	v.SetDefault("APP_ENV", string(EnvDevelopment))
	v.SetDefault("APP_VERSION", "dev")
	v.SetDefault("APP_TIMEZONE", "UTC")
	v.SetDefault("APP_SHUTDOWN_TIMEOUT", "15s")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "auto")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 16)
	v.SetDefault("LOG_MAX_BACKUPS", 32)
	v.SetDefault("LOG_MAX_AGE_DAYS", 365)

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "30s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "classroll-bridge")

	v.SetDefault("STORAGE_BACKEND", StorageFile)
	v.SetDefault("STORAGE_FILE", "attendance.json")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "1h")
	v.SetDefault("STORAGE_SAVE_TIMEOUT", "10s")

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_SESSION_TTL", "24h")
	v.SetDefault("REDIS_QUEUE_KEY", "classroll:notifications")

	v.SetDefault("NOTIFY_BACKEND", NotifyLog)
	v.SetDefault("NOTIFY_GATEWAY_URL", "")
	v.SetDefault("NOTIFY_GATEWAY_TOKEN", "")
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_CONCURRENCY", 8)
	v.SetDefault("NOTIFY_RATE", 5)
	v.SetDefault("NOTIFY_BURST", 10)

	v.SetDefault("STUDENT_ID_SUFFIX", "@c.us")
	v.SetDefault("LOW_ATTENDANCE_THRESHOLD", 75.0)
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = validator.New()

// Validate checks field rules and the cross-section constraints.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	if c.Notify.Backend == NotifyHTTP && c.Notify.GatewayURL == "" {
		errs = append(errs, "NOTIFY_GATEWAY_URL is required for the http notify backend")
	}
	if c.Notify.Backend == NotifyQueue && !c.Redis.Enabled {
		errs = append(errs, "REDIS_ENABLED is required for the queue notify backend")
	}
	if c.App.Environment == EnvProduction && c.HTTP.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required in production")
	}
	if c.Storage.MinConns > c.Storage.MaxConns {
		errs = append(errs, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
