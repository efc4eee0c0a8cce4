package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Workers WorkersConfig `mapstructure:"workers"`
	CORS    CORSConfig    `mapstructure:"cors"`
}

type ServerConfig struct {
	Environment  string `mapstructure:"environment"`
	Port         string `mapstructure:"port"`
	StoreBackend string `mapstructure:"store_backend"` // refresh allow-list: "memory" | "redis"
}

// APIConfig points the client at the practice API.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type SessionConfig struct {
	Backend   string `mapstructure:"backend"` // "memory" | "redis"
	KeyPrefix string `mapstructure:"key_prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	RevalidateOnFocus bool          `mapstructure:"revalidate_on_focus"`
}

type AuthConfig struct {
	SigningKey      string        `mapstructure:"signing_key"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type WorkersConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.store_backend", "memory")
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.key_prefix", "medportal:session:")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("cache.refresh_interval", 0)
	v.SetDefault("cache.revalidate_on_focus", true)
	v.SetDefault("auth.issuer", "medportal-devserver")
	v.SetDefault("auth.signing_key", "medportal-dev-signing-key")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("workers.sweep_interval", time.Minute)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type", "Accept"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 12*time.Hour)
}

// Load reads config.yaml from the given directories (default "." and
// "./config"), overlays MEDPORTAL_* environment variables and applies
// defaults. A missing config file is not an error.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// MEDPORTAL_API_BASE_URL -> api.base_url
	v.SetEnvPrefix("MEDPORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
