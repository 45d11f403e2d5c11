package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// devSigningKey signs sandbox tokens when ENV=development and no key is
// configured.
const devSigningKey = "sandbox-development-signing-key"

type Config struct {
	APIURL          string        `mapstructure:"API_URL"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	Port            string        `mapstructure:"PORT"`
	SessionFile     string        `mapstructure:"SESSION_FILE"`
	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	SearchDebounce  time.Duration `mapstructure:"SEARCH_DEBOUNCE"`
	PatientPageSize int           `mapstructure:"PATIENT_PAGE_SIZE"`

	SandboxPort       string        `mapstructure:"SANDBOX_PORT"`
	SandboxUsername   string        `mapstructure:"SANDBOX_USERNAME"`
	SandboxPassword   string        `mapstructure:"SANDBOX_PASSWORD"`
	SandboxSigningKey string        `mapstructure:"SANDBOX_SIGNING_KEY"`
	SandboxTokenTTL   time.Duration `mapstructure:"SANDBOX_TOKEN_TTL"`
	SandboxEnvelope   string        `mapstructure:"SANDBOX_ENVELOPE"`
	SandboxSeed       int64         `mapstructure:"SANDBOX_SEED"`
	SandboxPatients   int           `mapstructure:"SANDBOX_PATIENTS"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
}

// Load reads the environment and an optional .env file in the working
// directory. It does not validate; commands call Validate or
// ValidateSandbox for the settings they need.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "3000")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("SEARCH_DEBOUNCE", "300ms")
	v.SetDefault("PATIENT_PAGE_SIZE", 10)
	v.SetDefault("SANDBOX_PORT", "8000")
	v.SetDefault("SANDBOX_USERNAME", "admin")
	v.SetDefault("SANDBOX_PASSWORD", "admin")
	v.SetDefault("SANDBOX_TOKEN_TTL", "1h")
	v.SetDefault("SANDBOX_ENVELOPE", "none")
	v.SetDefault("SANDBOX_PATIENTS", 25)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"API_URL", "ENV", "LOG_LEVEL", "PORT", "SESSION_FILE", "HTTP_TIMEOUT",
		"SEARCH_DEBOUNCE", "PATIENT_PAGE_SIZE", "SANDBOX_PORT", "SANDBOX_USERNAME",
		"SANDBOX_PASSWORD", "SANDBOX_SIGNING_KEY", "SANDBOX_TOKEN_TTL",
		"SANDBOX_ENVELOPE", "SANDBOX_SEED", "SANDBOX_PATIENTS", "DATABASE_URL",
		"DB_MAX_CONNS", "DB_MIN_CONNS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the settings the console needs to reach the API.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API_URL is required")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.PatientPageSize < 0 {
		return fmt.Errorf("PATIENT_PAGE_SIZE must not be negative, got %d", c.PatientPageSize)
	}
	return nil
}

// ValidateSandbox checks the settings of the sandbox API. Outside
// development a signing key must be configured.
func (c *Config) ValidateSandbox() error {
	if c.SandboxUsername == "" || c.SandboxPassword == "" {
		return fmt.Errorf("SANDBOX_USERNAME and SANDBOX_PASSWORD are required")
	}
	if c.SandboxTokenTTL <= 0 {
		return fmt.Errorf("SANDBOX_TOKEN_TTL must be positive, got %s", c.SandboxTokenTTL)
	}
	if c.SandboxSigningKey == "" && !c.IsDev() {
		return fmt.Errorf("SANDBOX_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	return nil
}

// SigningKey returns the sandbox token key, falling back to a fixed
// development key.
func (c *Config) SigningKey() []byte {
	if c.SandboxSigningKey == "" {
		return []byte(devSigningKey)
	}
	return []byte(c.SandboxSigningKey)
}
