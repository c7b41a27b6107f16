package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address: %s", cfg.HTTPAddress)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database path: %s", cfg.DatabasePath)
	}
	if cfg.AuthTokenTTL != 30*time.Minute {
		t.Fatalf("unexpected token ttl: %s", cfg.AuthTokenTTL)
	}
	if cfg.VersionRetention != defaultRetentionLimit {
		t.Fatalf("unexpected retention: %d", cfg.VersionRetention)
	}
	if cfg.EventWorkers != defaultEventWorkers || cfg.EventQueueSize != defaultEventQueueSize {
		t.Fatalf("unexpected event pool defaults: %d/%d", cfg.EventWorkers, cfg.EventQueueSize)
	}
	if cfg.RedisChannelPrefix != defaultRedisChannelBase {
		t.Fatalf("unexpected channel prefix: %s", cfg.RedisChannelPrefix)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected missing signing secret to fail")
	}
}

func TestLoadValidatesBounds(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("versions.retention_limit", 0)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected zero retention to fail validation")
	}

	configViper = NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("events.workers", 0)
	if _, err := Load(configViper); err == nil {
		t.Fatalf("expected zero workers to fail validation")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("QUILLSTONE_HTTP_ADDRESS", "127.0.0.1:9999")
	t.Setenv("QUILLSTONE_AUTH_SIGNING_SECRET", "env-secret")

	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != "127.0.0.1:9999" {
		t.Fatalf("expected env override, got %s", cfg.HTTPAddress)
	}
	if cfg.AuthSigningSecret != "env-secret" {
		t.Fatalf("expected env secret, got %s", cfg.AuthSigningSecret)
	}
}
