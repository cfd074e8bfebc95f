package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Annany2002/sqlitecult/internal/logger"
)

var (
	customLog = logger.NewLogger()
)

const placeholderSecret = "!!replace_this_with_a_real_secret_key!!"

// Config holds application configuration values. It is built once at startup
// and passed to constructors explicitly.
type Config struct {
	ServerPort          string        `yaml:"server_port" env:"SERVER_PORT" env-default:":8080"`
	JWTSecret           string        `yaml:"-" env:"JWT_SECRET"`
	JWTExpiration       time.Duration `yaml:"jwt_expiration" env:"JWT_EXPIRATION" env-default:"24h"`
	APITokenSecret      string        `yaml:"-" env:"API_TOKEN_SECRET"`
	APITokenLifetime    time.Duration `yaml:"api_token_lifetime" env:"API_TOKEN_LIFETIME" env-default:"8760h"`
	MetadataDbDir       string        `yaml:"metadata_db_dir" env:"DATABASE_DIRECTORY" env-default:"data"`
	MetadataDbFile      string        `yaml:"metadata_db_file" env:"DATABASE_DIRECTORY_FILE" env-default:"metadata.db"`
	SQLiteDatabasesDir  string        `yaml:"sqlite_databases_dir" env:"SQLITE_DATABASES_FOLDER" env-default:"data/databases"`
	BusyTimeout         time.Duration `yaml:"busy_timeout" env:"SQLITE_BUSY_TIMEOUT" env-default:"30s"`
	RateLimitPerMinute  int           `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"120"`
	RateLimitBurst      int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"30"`
	RegistrationEnabled bool          `yaml:"registration_enabled" env:"ENABLE_REGISTRATION" env-default:"true"`
	CORSOrigins         []string      `yaml:"cors_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// LoadConfig loads configuration from environment variables, optionally
// layered over a YAML file named by CONFIG_FILE. A .env file is honoured
// outside production.
func LoadConfig() (*Config, error) {
	customLog.Println("Loading configuration from environment variables...")

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Warning: Error loading .env file: %v", err)
		}
	}

	cfg := &Config{}
	var err error
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	customLog.Printf("Configuration loaded successfully. Port: %s, JWT Exp: %v, Databases dir: %s",
		cfg.ServerPort, cfg.JWTExpiration, cfg.SQLiteDatabasesDir)
	return cfg, nil
}

// Validate checks required values and fills derived ones.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable must be set")
	}
	if c.JWTSecret == placeholderSecret {
		customLog.Warnln("WARNING: JWT_SECRET is set to the default placeholder!")
	}
	if c.APITokenSecret == "" {
		c.APITokenSecret = c.JWTSecret
	}
	if c.JWTExpiration <= 0 {
		customLog.Warnf("Invalid JWT_EXPIRATION '%v'. Using default 24h.", c.JWTExpiration)
		c.JWTExpiration = 24 * time.Hour
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 30 * time.Second
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	return nil
}
