package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App       App       `yaml:"app"`
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Auth      Auth      `yaml:"auth"`
	Pricing   Pricing   `yaml:"pricing"`
	Presence  Presence  `yaml:"presence"`
	Events    Events    `yaml:"events"`
	Ledger    Ledger    `yaml:"ledger"`
	Firebase  Firebase  `yaml:"firebase"`
	Statement Statement `yaml:"statement"`
}

type App struct {
	Env string `yaml:"env" env:"APP_ENV"`
}

type Server struct {
	Address        string   `yaml:"address" env:"SERVER_ADDRESS"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
}

type Database struct {
	Driver  string `yaml:"driver" env:"DB_DRIVER"`
	URL     string `yaml:"url" env:"DATABASE_URL"`
	MaxOpen int    `yaml:"max_open" env:"DB_MAX_OPEN"`
	MaxIdle int    `yaml:"max_idle" env:"DB_MAX_IDLE"`
	Migrate bool   `yaml:"migrate" env:"DB_MIGRATE"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// Pricing holds the rider fee constants in whole currency units.
type Pricing struct {
	BaseFee   int64 `yaml:"base_fee" env:"RIDER_BASE_FEE"`
	PerKMRate int64 `yaml:"per_km_rate" env:"RIDER_PER_KM_RATE"`
	MinCharge int64 `yaml:"min_charge" env:"RIDER_MIN_CHARGE"`
}

type Presence struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout" env:"RIDER_INACTIVITY_TIMEOUT"`
	LocationInterval  time.Duration `yaml:"location_interval" env:"RIDER_LOCATION_INTERVAL"`
	City              string        `yaml:"city" env:"RIDER_CITY"`
}

type Events struct {
	Buffer  int    `yaml:"buffer" env:"RIDER_EVENT_BUFFER"`
	Channel string `yaml:"channel" env:"RIDER_EVENT_CHANNEL"`
}

type Ledger struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"RIDER_RECONCILE_INTERVAL"`
	RetryAttempts     int           `yaml:"retry_attempts" env:"RIDER_RETRY_ATTEMPTS"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay" env:"RIDER_RETRY_BASE_DELAY"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay" env:"RIDER_RETRY_MAX_DELAY"`
}

type Firebase struct {
	CredentialsFile string `yaml:"credentials_file" env:"FIREBASE_CREDENTIALS_FILE"`
}

// Statement configures the S3-compatible bucket rider statements go to.
type Statement struct {
	Bucket    string `yaml:"bucket" env:"STATEMENT_BUCKET"`
	Endpoint  string `yaml:"endpoint" env:"STATEMENT_ENDPOINT"`
	Region    string `yaml:"region" env:"STATEMENT_REGION"`
	AccessKey string `yaml:"access_key" env:"STATEMENT_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"STATEMENT_SECRET_KEY"`
	PublicURL string `yaml:"public_url" env:"STATEMENT_PUBLIC_URL"`
	Folder    string `yaml:"folder" env:"STATEMENT_FOLDER"`
}

// Default returns the configuration used for keys the file and the
// environment leave unset.
func Default() Config {
	return Config{
		App:      App{Env: "prod"},
		Server:   Server{Address: ":4001"},
		Database: Database{Driver: DriverMySQL, MaxOpen: 25, MaxIdle: 25},
		Pricing:  Pricing{BaseFee: 300, PerKMRate: 60, MinCharge: 500},
		Presence: Presence{
			InactivityTimeout: 5 * time.Minute,
			LocationInterval:  15 * time.Second,
			City:              "astana",
		},
		Events:    Events{Buffer: 64, Channel: "rider:events"},
		Ledger: Ledger{
			ReconcileInterval: time.Minute,
			RetryAttempts:     4,
			RetryBaseDelay:    time.Second,
			RetryMaxDelay:     5 * time.Second,
		},
		Statement: Statement{Region: "us-east-1", Folder: "statements"},
	}
}

// Load reads the YAML file at path (optional), then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database url is required for driver %s", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Pricing.BaseFee < 0 || c.Pricing.PerKMRate < 0 || c.Pricing.MinCharge < 0 {
		return fmt.Errorf("pricing values must not be negative")
	}
	if c.Presence.InactivityTimeout <= 0 {
		return fmt.Errorf("presence inactivity_timeout must be positive")
	}
	if c.Presence.LocationInterval <= 0 {
		return fmt.Errorf("presence location_interval must be positive")
	}
	if c.Events.Buffer <= 0 {
		return fmt.Errorf("events buffer must be positive")
	}
	if c.Ledger.ReconcileInterval <= 0 {
		return fmt.Errorf("ledger reconcile_interval must be positive")
	}
	if c.Ledger.RetryAttempts < 1 {
		return fmt.Errorf("ledger retry_attempts must be at least 1")
	}
	if c.Ledger.RetryBaseDelay < 0 || c.Ledger.RetryMaxDelay < 0 {
		return fmt.Errorf("ledger retry delays must not be negative")
	}
	return nil
}

// IsDev reports whether the service runs in development mode.
func (c Config) IsDev() bool {
	return c.App.Env == "dev"
}
