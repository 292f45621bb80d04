package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/contestgate/internal/logger"
)

const (
	defaultListenAddr        = "localhost:8000"
	defaultLoggingLevel      = logger.LevelInfo
	defaultEnvironment       = logger.EnvProduction
	defaultAccessTokenTTL    = 15 * time.Minute
	defaultRefreshTokenTTL   = 30 * 24 * time.Hour
	defaultAuthCodeTTL       = 24 * time.Hour
	defaultRoleCodeTTL       = 7 * 24 * time.Hour
	defaultBcryptCost        = 10
	defaultCodeSweepInterval = time.Hour
	defaultCodeMaxAttempts   = 5
	defaultRoleMaxAttempts   = 10
	defaultCodeAttemptWindow = 15 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string `env:"LOG_LEVEL"`

	// Address on which the service will be run
	ListenAddr string `env:"RUN_ADDRESS"`

	// Database to connect to
	DatabaseDSN string `env:"DATABASE_URI"`

	// Keys to sign access and refresh tokens
	// Two different values: a leaked access key must not allow to forge refresh tokens
	AccessSecretKey  string `env:"ACCESS_SECRET_KEY"`
	RefreshSecretKey string `env:"REFRESH_SECRET_KEY"`

	// Environment (dev, prod)
	Environment string `env:"ENVIRONMENT"`

	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"`

	// How long verification codes are accepted after creation
	AuthCodeTTL time.Duration `env:"AUTH_CODE_TTL"`
	RoleCodeTTL time.Duration `env:"ROLE_CODE_TTL"`

	// Bcrypt work factor
	BcryptCost int `env:"BCRYPT_COST"`

	// How often expired codes are deleted
	CodeSweepInterval time.Duration `env:"CODE_SWEEP_INTERVAL"`

	// Missed code attempts allowed per email and per role inside the window
	CodeMaxAttempts   int           `env:"CODE_MAX_ATTEMPTS"`
	RoleMaxAttempts   int           `env:"ROLE_CODE_MAX_ATTEMPTS"`
	CodeAttemptWindow time.Duration `env:"CODE_ATTEMPT_WINDOW"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		Environment:       defaultEnvironment,
		AccessTokenTTL:    defaultAccessTokenTTL,
		RefreshTokenTTL:   defaultRefreshTokenTTL,
		AuthCodeTTL:       defaultAuthCodeTTL,
		RoleCodeTTL:       defaultRoleCodeTTL,
		BcryptCost:        defaultBcryptCost,
		CodeSweepInterval: defaultCodeSweepInterval,
		CodeMaxAttempts:   defaultCodeMaxAttempts,
		RoleMaxAttempts:   defaultRoleMaxAttempts,
		CodeAttemptWindow: defaultCodeAttemptWindow,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(envMap)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// LoadEnv overrides options with not empty variables
func (c *Config) LoadEnv(vars map[string]string) error {
	set := make(map[string]string, len(vars))
	for key, value := range vars {
		if value != "" {
			set[key] = value
		}
	}

	return env.ParseWithOptions(c, env.Options{Environment: set})
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("contestgate", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.AccessSecretKey, "access-secret-key", c.AccessSecretKey, "Secret key to sign access tokens")
	fs.StringVar(&c.RefreshSecretKey, "refresh-secret-key", c.RefreshSecretKey, "Secret key to sign refresh tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.AccessTokenTTL, "access-token-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-token-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.DurationVar(&c.AuthCodeTTL, "auth-code-ttl", c.AuthCodeTTL, "Auth code validity window")
	fs.DurationVar(&c.RoleCodeTTL, "role-code-ttl", c.RoleCodeTTL, "Role invite code validity window")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", c.BcryptCost, "Bcrypt work factor")
	fs.DurationVar(&c.CodeSweepInterval, "code-sweep-interval", c.CodeSweepInterval, "How often expired codes are deleted")
	fs.IntVar(&c.CodeMaxAttempts, "code-max-attempts", c.CodeMaxAttempts, "Missed auth code attempts allowed per email inside the window")
	fs.IntVar(&c.RoleMaxAttempts, "role-code-max-attempts", c.RoleMaxAttempts, "Missed role code attempts allowed per role inside the window")
	fs.DurationVar(&c.CodeAttemptWindow, "code-attempt-window", c.CodeAttemptWindow, "Window for counting code attempts")

	return fs.Parse(args)
}

// Convert 'KEY=value' pairs (as os.Environ returns) to map
func environMap(environ []string) map[string]string {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		if key, value, ok := strings.Cut(kv, "="); ok {
			vars[key] = value
		}
	}
	return vars
}
