package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config is loaded from the environment. Secrets are base64-encoded so
// arbitrary byte keys survive the trip through env files.
type Config struct {
	ServerAddr     string        `env:"SERVER_ADDR,default=:8080"`
	DatabaseUrl    string        `env:"DATABASE_URL,required=true"`
	AccessSecret   string        `env:"ACCESS_TOKEN_SECRET,required=true"`
	RefreshSecret  string        `env:"REFRESH_TOKEN_SECRET,required=true"`
	AccessTTL      time.Duration `env:"ACCESS_TOKEN_TTL,default=15m"`
	RefreshTTL     time.Duration `env:"REFRESH_TOKEN_TTL,default=168h"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS,default=*"`

	// decoded key material, populated by Load
	AccessKey  []byte
	RefreshKey []byte
}

func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.decodeSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) decodeSecrets() error {
	access, err := base64.StdEncoding.DecodeString(c.AccessSecret)
	if err != nil {
		return fmt.Errorf("decode ACCESS_TOKEN_SECRET: %w", err)
	}
	refresh, err := base64.StdEncoding.DecodeString(c.RefreshSecret)
	if err != nil {
		return fmt.Errorf("decode REFRESH_TOKEN_SECRET: %w", err)
	}

	c.AccessKey = access
	c.RefreshKey = refresh
	return nil
}

func (c *Config) validate() error {
	if len(c.AccessKey) < 32 {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must decode to at least 32 bytes")
	}
	if len(c.RefreshKey) < 32 {
		return fmt.Errorf("REFRESH_TOKEN_SECRET must decode to at least 32 bytes")
	}
	if string(c.AccessKey) == string(c.RefreshKey) {
		return fmt.Errorf("access and refresh secrets must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("refresh token lifetime must exceed access token lifetime")
	}

	return nil
}
