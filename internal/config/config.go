package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	AppEnv   string
	AppPort  string
	LogLevel string

	DBDriver   string
	SQLitePath string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int

	LockBackend      string
	LockTimeout      time.Duration
	OperationTimeout time.Duration

	ReconcileInterval    time.Duration
	ReconcileConcurrency int
	DefaultAfterMissed   int

	EventsChannel  string
	MigrationsPath string
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getduration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if n, err := time.ParseDuration(v); err == nil {
			return n
		}
	}
	return d
}

// Load reads the environment. A .env file in the working directory is merged
// in first when present; real env vars win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:   getenv("APP_ENV", "development"),
		AppPort:  getenv("APP_PORT", "8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DBDriver:   getenv("DB_DRIVER", DriverMySQL),
		SQLitePath: getenv("SQLITE_PATH", "loans.db"),

		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "agrifin"),
		MySQLUser: getenv("MYSQL_USER", "agrifin"),
		MySQLPass: getenv("MYSQL_PASS", "agrifin"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		RedisDB:      getint("REDIS_DB", 0),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		LockBackend:      getenv("LOCK_BACKEND", LockLocal),
		LockTimeout:      getduration("LOCK_TIMEOUT", 30*time.Second),
		OperationTimeout: getduration("OPERATION_TIMEOUT", 10*time.Second),

		ReconcileInterval:    getduration("RECONCILE_INTERVAL", 15*time.Minute),
		ReconcileConcurrency: getint("RECONCILE_CONCURRENCY", 4),
		DefaultAfterMissed:   getint("DEFAULT_AFTER_MISSED", 3),

		EventsChannel:  getenv("EVENTS_CHANNEL", "loan-events"),
		MigrationsPath: getenv("MIGRATIONS_PATH", "file://migrations"),
	}
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL:
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.LockBackend != LockLocal && c.LockBackend != LockRedis {
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}
	if c.LockBackend == LockRedis && c.RedisAddr == "" {
		return errors.New("LOCK_BACKEND=redis needs REDIS_ADDR")
	}
	if c.LockTimeout <= 0 || c.OperationTimeout <= 0 {
		return errors.New("LOCK_TIMEOUT and OPERATION_TIMEOUT must be positive")
	}
	// the lease has to outlive any operation holding it
	if c.LockTimeout <= c.OperationTimeout {
		return fmt.Errorf("LOCK_TIMEOUT %s must exceed OPERATION_TIMEOUT %s", c.LockTimeout, c.OperationTimeout)
	}
	if c.ReconcileInterval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be positive")
	}
	if c.ReconcileConcurrency <= 0 {
		return errors.New("RECONCILE_CONCURRENCY must be positive")
	}
	if c.DefaultAfterMissed <= 0 {
		return errors.New("DEFAULT_AFTER_MISSED must be positive")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// MigrateDSN is the golang-migrate flavour of the MySQL DSN.
func (c *Config) MigrateDSN() string { return "mysql://" + c.MySQLDSN() }

// DSN picks the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == DriverSQLite {
		return c.SQLitePath
	}
	return c.MySQLDSN()
}
