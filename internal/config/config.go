package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/example/userauth/internal/password"
	"github.com/example/userauth/internal/token"
)

const DefaultSecret = "default-secret-key"

const (
	AdapterPostgres = "postgres"
	AdapterSQLite   = "sqlite"
	AdapterMemory   = "memory"
)

type Config struct {
	Env       string `yaml:"env" env:"ENV" env-default:"local"`
	Port      string `yaml:"port" env:"PORT" env-default:"8000"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	DBAdapter string `yaml:"db_adapter" env:"DB_ADAPTER" env-default:"sqlite"`

	SQLiteFile    string `yaml:"sqlite_file" env:"SQLITE_FILE" env-default:"./data/auth.db"`
	MigrationsDir string `yaml:"migrations_dir" env:"MIGRATIONS_DIR"`

	Postgres `yaml:"postgres"`
	Tokens   `yaml:"tokens"`
	Hashing  `yaml:"password"`

	RateLimitPerMinute int      `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"20"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
}

// Postgres connection settings. DSN wins over the individual fields.
type Postgres struct {
	DSN      string `yaml:"dsn" env:"DATABASE_URL,POSTGRES_DSN"`
	Host     string `yaml:"host" env:"POSTGRES_HOST,DB_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"POSTGRES_PORT,DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER,DB_USER" env-default:"auth"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD,DB_PASSWORD"`
	DB       string `yaml:"db" env:"POSTGRES_DB,DB_NAME" env-default:"auth"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE,DB_SSLMODE" env-default:"disable"`
}

type Tokens struct {
	SecretKey                string `yaml:"secret_key" env:"SECRET_KEY" env-default:"default-secret-key"`
	Algorithm                string `yaml:"algorithm" env:"ALGORITHM" env-default:"HS256"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes" env:"ACCESS_TOKEN_EXPIRE_MINUTES" env-default:"30"`
	RefreshTokenExpireDays   int    `yaml:"refresh_token_expire_days" env:"REFRESH_TOKEN_EXPIRE_DAYS" env-default:"30"`
}

type Hashing struct {
	Scheme     string `yaml:"scheme" env:"PASSWORD_SCHEME" env-default:"bcrypt"`
	BcryptCost int    `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// AccessTokenTTL is the configured lifetime of issued access tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTokenTTL is zero when refresh sessions are disabled.
func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.Postgres.DSN != "" {
		return c.Postgres.DSN, nil
	}

	if c.Postgres.Host == "" {
		return "", errors.New("POSTGRES_HOST or DATABASE_URL must be set")
	}
	if c.Postgres.User == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.Postgres.DB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.Postgres.Port
	if port == "" {
		port = "5432"
	}
	sslMode := c.Postgres.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Postgres.Host, port, c.Postgres.User, c.Postgres.DB, sslMode)
	if c.Postgres.Password != "" {
		dsn += " password=" + c.Postgres.Password
	}
	return dsn, nil
}

// New reads the configuration from the environment, or from CONFIG_FILE when
// it is set (environment variables still override the file).
func New() (*Config, error) {
	var c Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cleanenv.ReadConfig(path, &c); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	c.DBAdapter = strings.ToLower(c.DBAdapter)
	switch c.DBAdapter {
	case AdapterPostgres:
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.Postgres.DSN = dsn
	case AdapterSQLite:
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case AdapterMemory:
	default:
		return fmt.Errorf("unknown DB_ADAPTER %q (postgres, sqlite, memory)", c.DBAdapter)
	}

	if c.SecretKey == "" {
		return errors.New("SECRET_KEY must not be empty")
	}
	if c.IsProduction() && c.SecretKey == DefaultSecret {
		return errors.New("SECRET_KEY must be set in production")
	}
	if _, err := token.SigningMethod(c.Algorithm); err != nil {
		return fmt.Errorf("invalid ALGORITHM: %w", err)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive, got %d", c.AccessTokenExpireMinutes)
	}
	if c.RefreshTokenExpireDays < 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRE_DAYS must not be negative, got %d", c.RefreshTokenExpireDays)
	}
	if _, err := password.ParseScheme(c.Hashing.Scheme); err != nil {
		return fmt.Errorf("invalid PASSWORD_SCHEME: %w", err)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimitPerMinute)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	return nil
}
