package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads configuration from the optional yaml file at path, with
// environment variables taking precedence. An empty path loads from the
// environment alone.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if strings.TrimSpace(path) != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.DBDriver == "sqlite" && strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db_path is required for the sqlite driver")
	}
	switch c.Tenancy.HeaderPolicy {
	case "strict", "default":
	default:
		return fmt.Errorf("unsupported tenancy.header_policy %q", c.Tenancy.HeaderPolicy)
	}
	// The placeholder tenant is local-development behavior only.
	if c.Tenancy.HeaderPolicy == "default" && !c.IsDevMode() {
		return fmt.Errorf("tenancy.header_policy %q requires app_env development", c.Tenancy.HeaderPolicy)
	}
	return nil
}

// ConfigPathFromEnv returns the yaml config location, if one is set.
func ConfigPathFromEnv() string {
	return strings.TrimSpace(os.Getenv("INCIDENTSCOPE_CONFIG"))
}
