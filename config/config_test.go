package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8080" || cfg.GatewayAddress != ":8081" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StorageBackend != "leveldb" || cfg.NetworkName != "market-local" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not persisted: %v", err)
	}

	// A second load round-trips the persisted defaults.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress || again.StorageBackend != cfg.StorageBackend {
		t.Fatalf("reload mismatch: %+v", again)
	}
}

func TestLoadNormalizesBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "RPCAddress = \":9090\"\nStorageBackend = \"Bolt\"\nPaused = [\"market\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":9090" {
		t.Fatalf("explicit address lost: %s", cfg.RPCAddress)
	}
	if cfg.StorageBackend != "bolt" {
		t.Fatalf("backend not normalized: %s", cfg.StorageBackend)
	}
	if len(cfg.Paused) != 1 || cfg.Paused[0] != "market" {
		t.Fatalf("paused list lost: %+v", cfg.Paused)
	}
	if cfg.GatewayAddress != ":8081" {
		t.Fatalf("missing fields must fall back to defaults: %s", cfg.GatewayAddress)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("StorageBackend = \"cassandra\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
