// Package config loads service settings from configs/config.yaml and
// OUTBREAK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is one of postgres, sqlite or memory.
	Driver      string        `mapstructure:"driver"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Name        string        `mapstructure:"name"`
	SSLMode     string        `mapstructure:"sslmode"`
	MaxConns    int           `mapstructure:"max_conns"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	TokenExpiry       time.Duration `mapstructure:"token_expiry"`
	PrincipalCacheTTL time.Duration `mapstructure:"principal_cache_ttl"`
}

type AuditConfig struct {
	// Backend is one of elasticsearch, mongo or memory.
	Backend               string `mapstructure:"backend"`
	ElasticsearchURL      string `mapstructure:"elasticsearch_url"`
	ElasticsearchUsername string `mapstructure:"elasticsearch_username"`
	ElasticsearchPassword string `mapstructure:"elasticsearch_password"`
	IndexPrefix           string `mapstructure:"index_prefix"`
	MongoURI              string `mapstructure:"mongo_uri"`
	MongoDatabase         string `mapstructure:"mongo_database"`
}

type SecurityConfig struct {
	// EncryptionKey is a hex encoded AES-256 key. It may be empty only with
	// the memory driver.
	EncryptionKey string `mapstructure:"encryption_key"`
}

var defaults = map[string]interface{}{
	"server.host":            "0.0.0.0",
	"server.port":            8000,
	"server.mode":            "release",
	"server.request_timeout": 30 * time.Second,
	"server.rate_limit":      50.0,
	"server.rate_burst":      100,
	"server.cors_origins":    []string{"http://localhost:3000"},

	"database.driver":       "postgres",
	"database.host":         "localhost",
	"database.port":         5432,
	"database.user":         "outbreak",
	"database.password":     "",
	"database.name":         "outbreak",
	"database.sslmode":      "disable",
	"database.max_conns":    10,
	"database.conn_timeout": 5 * time.Second,
	"database.sqlite_path":  "outbreak.db",

	"auth.jwt_secret":          "",
	"auth.token_expiry":        30 * time.Minute,
	"auth.principal_cache_ttl": 30 * time.Second,

	"audit.backend":                "memory",
	"audit.elasticsearch_url":      "http://localhost:9200",
	"audit.elasticsearch_username": "",
	"audit.elasticsearch_password": "",
	"audit.index_prefix":           "outbreak_audit_",
	"audit.mongo_uri":              "mongodb://localhost:27017",
	"audit.mongo_database":         "outbreak",

	"security.encryption_key": "",
}

// legacyEnv keeps the unprefixed variable names deployments already set.
var legacyEnv = map[string]string{
	"auth.jwt_secret":         "JWT_SECRET",
	"security.encryption_key": "ENCRYPTION_KEY",
	"audit.elasticsearch_url": "ELASTICSEARCH_URL",
}

// Load reads the first config.yaml found in paths, falling back to the
// standard locations. A missing file is not an error: defaults and the
// environment still apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "../configs", "/etc/outbreak-exchange"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("OUTBREAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		envKey := "OUTBREAK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Audit.Backend {
	case "elasticsearch", "mongo", "memory":
	default:
		return fmt.Errorf("unknown audit backend %q", c.Audit.Backend)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	// A generated key dies with the process, so rows it sealed could never be
	// opened again. Only the memory driver forgets its rows as well.
	if c.Security.EncryptionKey == "" && c.Database.Driver != "memory" {
		return fmt.Errorf("security.encryption_key is required for the %s driver", c.Database.Driver)
	}
	return nil
}
