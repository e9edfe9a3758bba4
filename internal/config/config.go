// Package config loads catalogctl configuration.
//
// Values come from Default, then the YAML file, then CATALOG_* environment
// variables. Validate must pass before the configuration is used.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable consulted by Load when no path is given.
const EnvConfigPath = "CATALOG_CONFIG"

// Config is the full configuration of the entitlement engine and its CLI.
type Config struct {
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Session   SessionConfig   `yaml:"session"`
	Password  PasswordConfig  `yaml:"password"`
	Login     LoginConfig     `yaml:"login"`
	Cache     CacheConfig     `yaml:"cache"`
	Token     TokenConfig     `yaml:"token"`
	Log       LogConfig       `yaml:"log"`
}

// BootstrapConfig describes the privileged identity seeded at startup.
// Username and Password have no defaults.
type BootstrapConfig struct {
	UserID      string `yaml:"user_id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// SessionConfig configures access tokens.
type SessionConfig struct {
	// TTL is the lifetime of an issued token. Default: 1h
	TTL time.Duration `yaml:"ttl"`
}

// PasswordConfig configures the credential vault.
type PasswordConfig struct {
	// Algorithm is "argon2id" or "bcrypt". Default: argon2id
	Algorithm string `yaml:"algorithm"`

	// Argon2 parameters, in KiB, passes and lanes.
	Memory      uint32 `yaml:"memory"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`

	// BcryptCost is used only when Algorithm is bcrypt.
	BcryptCost int `yaml:"bcrypt_cost"`
}

// LoginConfig throttles login attempts per username. A zero rate disables it.
type LoginConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// CacheConfig sizes the permission closure cache. A zero size disables it.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// TokenConfig enables signed bearer tokens when Secret is set.
type TokenConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the base configuration applied before the file.
func Default() *Config {
	return &Config{
		Bootstrap: BootstrapConfig{
			Name: "Catalog administrator",
		},
		Session: SessionConfig{TTL: time.Hour},
		Password: PasswordConfig{
			Algorithm:   "argon2id",
			Memory:      64 * 1024,
			Iterations:  2,
			Parallelism: 1,
			BcryptCost:  10,
		},
		Login: LoginConfig{RatePerSecond: 1, Burst: 5},
		Cache: CacheConfig{Size: 1024, TTL: 5 * time.Minute},
		Token: TokenConfig{Issuer: "appcatalog"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads the file at path, or at $CATALOG_CONFIG when path is empty, and
// applies environment overrides. Without any file only the defaults and the
// environment are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv overrides file values from CATALOG_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CATALOG_BOOTSTRAP_USER_ID", &c.Bootstrap.UserID)
	str("CATALOG_BOOTSTRAP_NAME", &c.Bootstrap.Name)
	str("CATALOG_BOOTSTRAP_USERNAME", &c.Bootstrap.Username)
	if v, ok := lookup("CATALOG_BOOTSTRAP_PASSWORD"); ok {
		c.Bootstrap.Password = v
	}
	str("CATALOG_PASSWORD_ALGORITHM", &c.Password.Algorithm)
	str("CATALOG_TOKEN_SECRET", &c.Token.Secret)
	str("CATALOG_TOKEN_ISSUER", &c.Token.Issuer)
	str("CATALOG_LOG_LEVEL", &c.Log.Level)

	var errs []error
	if v, ok := lookup("CATALOG_SESSION_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("CATALOG_SESSION_TTL: %w", err))
		}
		c.Session.TTL = d
	}
	if v, ok := lookup("CATALOG_LOGIN_RATE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CATALOG_LOGIN_RATE: %w", err))
		}
		c.Login.RatePerSecond = f
	}
	if v, ok := lookup("CATALOG_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("CATALOG_CACHE_SIZE: %w", err))
		}
		c.Cache.Size = n
	}
	if v, ok := lookup("CATALOG_LOG_DEVELOPMENT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("CATALOG_LOG_DEVELOPMENT: %w", err))
		}
		c.Log.Development = b
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Bootstrap.Username) == "" {
		errs = append(errs, errors.New("bootstrap.username is required"))
	}
	if c.Bootstrap.Password == "" {
		errs = append(errs, errors.New("bootstrap.password is required"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL))
	}
	switch strings.ToLower(c.Password.Algorithm) {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, fmt.Errorf("password.algorithm must be argon2id or bcrypt, got %q", c.Password.Algorithm))
	}
	if c.Password.Iterations == 0 {
		errs = append(errs, errors.New("password.iterations must be at least 1"))
	}
	if c.Login.RatePerSecond < 0 || c.Login.Burst < 0 {
		errs = append(errs, errors.New("login.rate_per_second and login.burst must not be negative"))
	}
	if c.Cache.Size < 0 {
		errs = append(errs, errors.New("cache.size must not be negative"))
	}
	if c.Token.Secret != "" && len(c.Token.Secret) < 16 {
		errs = append(errs, errors.New("token.secret must be at least 16 bytes"))
	}

	return errors.Join(errs...)
}
