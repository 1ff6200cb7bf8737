// Package config loads the registry configuration from defaults, an optional yaml file and
// FRANZ_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rmb938/franz-graphql-registry/pkg/artifacts"
	"github.com/spf13/viper"
)

const EnvPrefix = "FRANZ"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Registry  RegistryConfig  `mapstructure:"registry"`
}

type LogConfig struct {
	// Development switches to zap's development config, human readable and debug level.
	Development bool `mapstructure:"development"`
}

type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type ArtifactsConfig struct {
	// Backend is memory, redis or gcs.
	Backend string                `mapstructure:"backend"`
	Redis   artifacts.RedisConfig `mapstructure:"redis"`
	GCS     artifacts.GCSConfig   `mapstructure:"gcs"`
}

type RegistryConfig struct {
	ContractWorkers int `mapstructure:"contract_workers"`
}

func Defaults() Config {
	return Config{
		Log: LogConfig{
			Development: true,
		},
		HTTP: HTTPConfig{
			Addr:           ":8081",
			RequestTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			DSN:    "host=localhost user=postgres password=postgres dbname=franz-graphql-registry port=5432 sslmode=disable",
		},
		Artifacts: ArtifactsConfig{
			Backend: "memory",
			Redis: artifacts.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "franz:artifacts:",
			},
		},
		Registry: RegistryConfig{
			ContractWorkers: 4,
		},
	}
}

func SetDefaults(v *viper.Viper) {
	defaults := Defaults()
	v.SetDefault("log.development", defaults.Log.Development)
	v.SetDefault("http.addr", defaults.HTTP.Addr)
	v.SetDefault("http.request_timeout", defaults.HTTP.RequestTimeout)
	v.SetDefault("database.driver", defaults.Database.Driver)
	v.SetDefault("database.dsn", defaults.Database.DSN)
	v.SetDefault("artifacts.backend", defaults.Artifacts.Backend)
	v.SetDefault("artifacts.redis.addr", defaults.Artifacts.Redis.Addr)
	v.SetDefault("artifacts.redis.password", defaults.Artifacts.Redis.Password)
	v.SetDefault("artifacts.redis.db", defaults.Artifacts.Redis.DB)
	v.SetDefault("artifacts.redis.key_prefix", defaults.Artifacts.Redis.KeyPrefix)
	v.SetDefault("artifacts.gcs.bucket", defaults.Artifacts.GCS.Bucket)
	v.SetDefault("artifacts.gcs.prefix", defaults.Artifacts.GCS.Prefix)
	v.SetDefault("registry.contract_workers", defaults.Registry.ContractWorkers)
}

// Load reads cfgFile when set. Environment variables win over the file, FRANZ_DATABASE_DSN
// sets database.dsn.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required"))
	}

	switch c.Artifacts.Backend {
	case "memory":
	case "redis":
		if c.Artifacts.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("artifacts.redis.addr is required for the redis backend"))
		}
	case "gcs":
		if c.Artifacts.GCS.Bucket == "" {
			errs = append(errs, fmt.Errorf("artifacts.gcs.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("artifacts.backend: unknown backend %q", c.Artifacts.Backend))
	}

	if c.Registry.ContractWorkers < 1 {
		errs = append(errs, fmt.Errorf("registry.contract_workers must be at least 1"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr is required"))
	}

	return errors.Join(errs...)
}
