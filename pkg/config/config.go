package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Store       StoreConfig      `mapstructure:"store"`
	Identifiers IdentifierConfig `mapstructure:"identifiers"`
	BOM         BOMConfig        `mapstructure:"bom"`
	Locking     LockingConfig    `mapstructure:"locking"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Log         LogConfig        `mapstructure:"log"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | sqlite
	Path   string `mapstructure:"path"`
}

type IdentifierConfig struct {
	GlobalUnique bool   `mapstructure:"global_unique"`
	Strategy     string `mapstructure:"strategy"` // integer | prefixed
	Prefix       string `mapstructure:"prefix"`
	Width        int    `mapstructure:"width"`
}

type BOMConfig struct {
	InheritancePolicy string `mapstructure:"inheritance_policy"` // nearest | farthest
}

type LockingConfig struct {
	Driver  string        `mapstructure:"driver"` // memory | redis
	TTL     time.Duration `mapstructure:"ttl"`
	MaxWait time.Duration `mapstructure:"max_wait"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path, or from config.yaml in ./configs or . when path is empty.
// A missing config file is not an error; defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "buildcore.db")
	v.SetDefault("identifiers.global_unique", false)
	v.SetDefault("identifiers.strategy", "integer")
	v.SetDefault("identifiers.prefix", "SN")
	v.SetDefault("identifiers.width", 4)
	v.SetDefault("bom.inheritance_policy", "nearest")
	v.SetDefault("locking.driver", "memory")
	v.SetDefault("locking.ttl", 30*time.Second)
	v.SetDefault("locking.max_wait", 10*time.Second)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func bindEnvVariables(v *viper.Viper) {
	// Store
	v.BindEnv("store.driver", "BUILDCORE_STORE_DRIVER")
	v.BindEnv("store.path", "BUILDCORE_STORE_PATH")

	// Identifiers
	v.BindEnv("identifiers.global_unique", "BUILDCORE_SERIAL_GLOBALLY_UNIQUE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
}

// Validate rejects unknown driver and strategy names
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}
	switch c.Identifiers.Strategy {
	case "integer", "prefixed":
	default:
		return fmt.Errorf("unknown identifier strategy: %s", c.Identifiers.Strategy)
	}
	switch c.BOM.InheritancePolicy {
	case "nearest", "farthest":
	default:
		return fmt.Errorf("unknown inheritance policy: %s", c.BOM.InheritancePolicy)
	}
	switch c.Locking.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown locking driver: %s", c.Locking.Driver)
	}
	return nil
}
