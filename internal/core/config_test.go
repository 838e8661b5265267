package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ListenAddress() != "0.0.0.0:25565" {
		t.Errorf("ListenAddress() want = 0.0.0.0:25565, got = %s", cfg.ListenAddress())
	}
	if cfg.Login.LoginDelay != 220*time.Millisecond {
		t.Errorf("Login.LoginDelay want = 220ms, got = %v", cfg.Login.LoginDelay)
	}
	if cfg.Login.SessionDelay != 450*time.Millisecond {
		t.Errorf("Login.SessionDelay want = 450ms, got = %v", cfg.Login.SessionDelay)
	}
	if cfg.Login.DuplicatePolicy != "evict" {
		t.Errorf("Login.DuplicatePolicy want = evict, got = %s", cfg.Login.DuplicatePolicy)
	}
	if cfg.ReadTimeout != 0 || cfg.MaxConnections != 0 {
		t.Errorf("expected timeouts and connection limits to be off by default")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	contents := []byte(`
port: 25577
status:
  max_players: 100
  motd: "Hello"
login:
  duplicate_policy: reject
  session_delay: 1s
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0644); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}
	t.Setenv("LODESTONE_STATUS_MOTD", "From the environment")

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error: %v", err)
	}

	if cfg.Port != 25577 {
		t.Errorf("Port want = 25577, got = %d", cfg.Port)
	}
	if cfg.Status.MaxPlayers != 100 {
		t.Errorf("Status.MaxPlayers want = 100, got = %d", cfg.Status.MaxPlayers)
	}
	if cfg.Status.MOTD != "From the environment" {
		t.Errorf("Status.MOTD want = %q, got = %q", "From the environment", cfg.Status.MOTD)
	}
	if cfg.Login.DuplicatePolicy != "reject" {
		t.Errorf("Login.DuplicatePolicy want = reject, got = %s", cfg.Login.DuplicatePolicy)
	}
	if cfg.Login.SessionDelay != time.Second {
		t.Errorf("Login.SessionDelay want = 1s, got = %v", cfg.Login.SessionDelay)
	}
	// Untouched keys keep their defaults.
	if cfg.Login.MaxNameLength != 16 {
		t.Errorf("Login.MaxNameLength want = 16, got = %d", cfg.Login.MaxNameLength)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	contents := []byte("login:\n  duplicate_policy: ignore\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), contents, 0644); err != nil {
		t.Fatalf("error writing test config: %v", err)
	}

	if _, err := LoadConfig(dir); err == nil {
		t.Error("expected LoadConfig() to reject an unknown duplicate_policy")
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.LogLevel = "debug"
	cfg.Logging.LogFilePath = filepath.Join(t.TempDir(), "server.log")

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() returned an unexpected error: %v", err)
	}
	if logger.Level != logrus.DebugLevel {
		t.Errorf("logger level want = debug, got = %s", logger.Level)
	}

	logger.Info("hello")
	contents, err := os.ReadFile(cfg.Logging.LogFilePath)
	if err != nil {
		t.Fatalf("error reading log file: %v", err)
	}
	if len(contents) == 0 {
		t.Error("expected the log line to be written to the log file")
	}

	cfg.Logging.LogLevel = "loud"
	if _, err := NewLogger(cfg); err == nil {
		t.Error("expected NewLogger() to reject an unknown log level")
	}
}

func TestLoadConfig_SampleConfig(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "setup"))
	if err != nil {
		t.Fatalf("LoadConfig() returned an unexpected error for the sample config: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("sample config should match the defaults; diff:\n%s", diff)
	}
}
