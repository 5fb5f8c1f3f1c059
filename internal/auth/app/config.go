package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime knob for the auth service. Values come from the
// environment, optionally seeded from a .env file in development.
type Config struct {
	// Issuer is stamped into the iss claim and into TOTP provisioning URIs.
	Issuer string `env:"AUTH_ISSUER" envDefault:"anchor-auth"`

	// NumKeys is how many ephemeral signing keys to generate at startup.
	NumKeys int `env:"AUTH_NUM_KEYS" envDefault:"3"`

	DatabaseFile string `env:"AUTH_DATABASE_FILE" envDefault:"auth.db"`

	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"5m"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" envDefault:"168h"`
	ElevationWindow time.Duration `env:"AUTH_ELEVATION_WINDOW" envDefault:"5m"`

	// BootstrapUsername and BootstrapPassword seed the first account when
	// the user table is empty. Both must be set together.
	BootstrapUsername string `env:"AUTH_BOOTSTRAP_USERNAME"`
	BootstrapPassword string `env:"AUTH_BOOTSTRAP_PASSWORD"`

	// SecureCookies marks the refresh cookie Secure. Disable only for
	// local plain-HTTP development.
	SecureCookies bool `env:"AUTH_SECURE_COOKIES" envDefault:"true"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if (cfg.BootstrapUsername == "") != (cfg.BootstrapPassword == "") {
		return Config{}, fmt.Errorf("AUTH_BOOTSTRAP_USERNAME and AUTH_BOOTSTRAP_PASSWORD must be set together")
	}

	return cfg, nil
}
