package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.AppName != "KVision" {
		t.Errorf("AppName = %q, want %q", cfg.AppName, "KVision")
	}
	if cfg.APIServer.Port != "8080" {
		t.Errorf("APIServer.Port = %q, want %q", cfg.APIServer.Port, "8080")
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("Database.Type = %q, want %q", cfg.Database.Type, "postgres")
	}
	if cfg.Messaging.PollInterval != 5*time.Second {
		t.Errorf("Messaging.PollInterval = %s, want 5s", cfg.Messaging.PollInterval)
	}
	if cfg.Messaging.MaxAttachmentBytes != 5<<20 {
		t.Errorf("Messaging.MaxAttachmentBytes = %d, want %d", cfg.Messaging.MaxAttachmentBytes, 5<<20)
	}
	if cfg.Kafka.ActivityTopic != "kvision-activity" {
		t.Errorf("Kafka.ActivityTopic = %q, want %q", cfg.Kafka.ActivityTopic, "kvision-activity")
	}
	if cfg.Storage.Type != "local" {
		t.Errorf("Storage.Type = %q, want %q", cfg.Storage.Type, "local")
	}
	if cfg.Auth.JWTExpiry != 12*time.Hour {
		t.Errorf("Auth.JWTExpiry = %s, want 12h", cfg.Auth.JWTExpiry)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("API_SERVER_PORT", "9999")
	t.Setenv("MESSAGING_POLL_INTERVAL", "10s")
	t.Setenv("AUTH_JWT_SECRET_KEY", "test-secret")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.APIServer.Port != "9999" {
		t.Errorf("APIServer.Port = %q, want %q", cfg.APIServer.Port, "9999")
	}
	if cfg.Messaging.PollInterval != 10*time.Second {
		t.Errorf("Messaging.PollInterval = %s, want 10s", cfg.Messaging.PollInterval)
	}
	if cfg.Auth.JWTSecretKey != "test-secret" {
		t.Errorf("Auth.JWTSecretKey = %q, want %q", cfg.Auth.JWTSecretKey, "test-secret")
	}
}
