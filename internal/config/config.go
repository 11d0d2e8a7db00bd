package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultJwtSecret        = "change-me"
	defaultJwtRefreshSecret = "change-me-too"
)

type Config struct {
	Port          string `yaml:"port" env:"PORT" env-default:"8080"`
	Env           string `yaml:"env" env:"ENV" env-default:"development"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	DBAdapter     string `yaml:"db_adapter" env:"DB_ADAPTER" env-default:"postgres"`
	SQLiteFile    string `yaml:"sqlite_file" env:"SQLITE_FILE" env-default:"./data/todoapp.db"`
	MigrationsDir string `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"./migrations"`

	JwtSecret           string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me"`
	JwtRefreshSecret    string        `yaml:"jwt_refresh_secret" env:"JWT_REFRESH_SECRET" env-default:"change-me-too"`
	JwtExpiresIn        time.Duration `yaml:"jwt_expires_in" env:"JWT_EXPIRES_IN" env-default:"1h"`
	JwtRefreshExpiresIn time.Duration `yaml:"jwt_refresh_expires_in" env:"JWT_REFRESH_EXPIRES_IN" env-default:"168h"`
	RevocationBackend   string        `yaml:"revocation_backend" env:"REVOCATION_BACKEND" env-default:"none"`
	RateLimitPerMinute  int           `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`
	CORSAllowedOrigins  []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`

	Redis Redis `yaml:"redis"`

	// PostgreSQL connection settings
	PostgresDSN      string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	PostgresHost     string `yaml:"postgres_host" env:"POSTGRES_HOST" env-default:"localhost"`
	PostgresPort     string `yaml:"postgres_port" env:"POSTGRES_PORT" env-default:"5432"`
	PostgresUser     string `yaml:"postgres_user" env:"POSTGRES_USER" env-default:"todo"`
	PostgresPassword string `yaml:"postgres_password" env:"POSTGRES_PASSWORD" env-default:"todopass"`
	PostgresDB       string `yaml:"postgres_db" env:"POSTGRES_DB" env-default:"todoapp"`
	PostgresSSLMode  string `yaml:"postgres_sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components or returns the provided DSN
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

// New reads configuration from the environment. When CONFIG_PATH points to a
// YAML file it is read first and environment variables override it.
func New() (*Config, error) {
	var c Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &c); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	switch c.DBAdapter {
	case "postgres":
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	case "sqlite":
		if c.SQLiteFile == "" {
			return errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}

	switch c.RevocationBackend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("unsupported REVOCATION_BACKEND: %s (supported: none, memory, redis)", c.RevocationBackend)
	}

	if c.JwtSecret == "" || c.JwtRefreshSecret == "" {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.JwtSecret == c.JwtRefreshSecret {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.IsProduction() && (c.JwtSecret == defaultJwtSecret || c.JwtRefreshSecret == defaultJwtRefreshSecret) {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must be set in production")
	}
	if c.JwtExpiresIn <= 0 || c.JwtRefreshExpiresIn <= 0 {
		return errors.New("JWT_EXPIRES_IN and JWT_REFRESH_EXPIRES_IN must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %d", c.RateLimitPerMinute)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid PORT: %s", c.Port)
	}
	return nil
}
