// Package config loads runtime configuration from environment variables
// and flags through viper. Every key has a default except the signing
// secret, which must be supplied.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "QUILLSTONE"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "quillstone.db"
	defaultLogLevel         = "info"
	defaultIssuer           = "quillstone"
	defaultAudience         = "quillstone-api"
	defaultTokenTTLMinutes  = 30
	defaultRetentionLimit   = 50
	defaultEventWorkers     = 16
	defaultEventQueueSize   = 256
	defaultRedisChannelBase = "quillstone:notify:user:"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	AuthSigningSecret  string
	AuthIssuer         string
	AuthAudience       string
	AuthTokenTTL       time.Duration
	RedisAddress       string
	RedisChannelPrefix string
	VersionRetention   int
	EventWorkers       int
	EventQueueSize     int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("redis.channel_prefix", defaultRedisChannelBase)
	configViper.SetDefault("versions.retention_limit", defaultRetentionLimit)
	configViper.SetDefault("events.workers", defaultEventWorkers)
	configViper.SetDefault("events.queue_size", defaultEventQueueSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		AuthSigningSecret:  configViper.GetString("auth.signing_secret"),
		AuthIssuer:         configViper.GetString("auth.issuer"),
		AuthAudience:       configViper.GetString("auth.audience"),
		AuthTokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		RedisAddress:       configViper.GetString("redis.address"),
		RedisChannelPrefix: configViper.GetString("redis.channel_prefix"),
		VersionRetention:   configViper.GetInt("versions.retention_limit"),
		EventWorkers:       configViper.GetInt("events.workers"),
		EventQueueSize:     configViper.GetInt("events.queue_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.VersionRetention < 1 {
		return fmt.Errorf("versions.retention_limit must be at least 1")
	}
	if c.EventWorkers < 1 {
		return fmt.Errorf("events.workers must be at least 1")
	}
	return nil
}
