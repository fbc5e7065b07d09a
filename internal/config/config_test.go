package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
address: db.internal:3306
username: app
password: secret
instance_suffix: _tenant1

pool:
  min_sessions: 2
  max_sessions: 20
  idle_timeout: 5m
  max_lifetime: 30m
  acquire_timeout: 10s
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Address != "db.internal:3306" {
		t.Errorf("expected address db.internal:3306, got %s", cfg.Address)
	}
	if cfg.Username != "app" {
		t.Errorf("expected username app, got %s", cfg.Username)
	}
	if cfg.InstanceSuffix != "_tenant1" {
		t.Errorf("expected instance_suffix _tenant1, got %s", cfg.InstanceSuffix)
	}
	if cfg.Pool.MaxSessions != 20 {
		t.Errorf("expected max_sessions 20, got %d", cfg.Pool.MaxSessions)
	}
	if cfg.Pool.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle timeout 5m, got %v", cfg.Pool.IdleTimeout)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	yaml := `
address: localhost:3306
username: app
password: ${TEST_DB_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Password != "secret123" {
		t.Errorf("expected substituted password, got %q", cfg.Password)
	}
}

func TestLoadEnvSubstitutionLeavesUnsetPlaceholder(t *testing.T) {
	os.Unsetenv("TEST_DB_UNSET_VAR")
	yaml := `
address: localhost:3306
password: ${TEST_DB_UNSET_VAR}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Password != "${TEST_DB_UNSET_VAR}" {
		t.Errorf("expected placeholder left intact, got %q", cfg.Password)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `address: localhost:3306`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Username != "root" {
		t.Errorf("expected default username root, got %s", cfg.Username)
	}
	if cfg.Pool.MaxSessions != 10 {
		t.Errorf("expected default max_sessions 10, got %d", cfg.Pool.MaxSessions)
	}
	if cfg.Pool.AcquireTimeout != 60*time.Second {
		t.Errorf("expected default acquire timeout 60s, got %v", cfg.Pool.AcquireTimeout)
	}
}

func TestLoadRejectsMissingAddress(t *testing.T) {
	path := writeTemp(t, `username: root`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestLoadRejectsBadHashKind(t *testing.T) {
	path := writeTemp(t, "address: localhost:3306\nhash_kind: md5\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid hash_kind")
	}
}

func TestLoadRejectsMalformedSHA1HexPassword(t *testing.T) {
	path := writeTemp(t, "address: localhost:3306\nhash_kind: sha1_hex\npassword: not-hex\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for a sha1_hex password that isn't 40 hex characters")
	}
}

func TestLoadAcceptsValidSHA1HexPassword(t *testing.T) {
	path := writeTemp(t, "address: localhost:3306\nhash_kind: sha1_hex\npassword: "+
		"0123456789abcdef0123456789abcdef01234567\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("unexpected error for a well-formed sha1_hex password: %v", err)
	}
}

func TestLoadRejectsMinExceedingMax(t *testing.T) {
	path := writeTemp(t, "address: localhost:3306\npool:\n  min_sessions: 10\n  max_sessions: 2\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for min_sessions > max_sessions")
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{Password: "hunter2"}
	r := cfg.Redacted()
	if r.Password == "hunter2" {
		t.Error("expected password to be redacted")
	}
	if cfg.Password != "hunter2" {
		t.Error("Redacted must not mutate the receiver")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTemp(t, "address: localhost:3306\nusername: app\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("address: localhost:3306\nusername: changed\n"), 0o600); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Username != "changed" {
			t.Errorf("expected reloaded username 'changed', got %s", c.Username)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
