package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.General.Tool != "claude" {
		t.Errorf("Tool = %q, want claude", cfg.General.Tool)
	}
	if cfg.General.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", cfg.General.MaxIterations)
	}
	if cfg.Checkpoint.Enabled {
		t.Error("checkpoint should be disabled by default")
	}
	if !cfg.Notifications.Desktop {
		t.Error("desktop notifications should be enabled by default")
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want default 10", cfg.General.MaxIterations)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	content := `
[general]
tool = "opencode"
max_iterations = 25
max_workers = 5

[executor]
command = "opencode"
args = ["run"]
timeout_minutes = 15

[[executor.gates]]
name = "tests"
command = "go test ./..."

[checkpoint]
enabled = true
every_n = 5
approval_timeout_seconds = 60

[notifications]
desktop = false
slack_webhook = "https://hooks.slack.example/T000"

[schedule]
cron = "0 2 * * *"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.Tool != "opencode" {
		t.Errorf("Tool = %q, want opencode", cfg.General.Tool)
	}
	if cfg.General.MaxIterations != 25 {
		t.Errorf("MaxIterations = %d, want 25", cfg.General.MaxIterations)
	}
	if len(cfg.Executor.Gates) != 1 || cfg.Executor.Gates[0].Name != "tests" {
		t.Errorf("Gates = %v, want one named tests", cfg.Executor.Gates)
	}
	if !cfg.Checkpoint.Enabled || cfg.Checkpoint.EveryN != 5 {
		t.Errorf("Checkpoint = %+v, want enabled every 5", cfg.Checkpoint)
	}
	if cfg.Notifications.Desktop {
		t.Error("desktop should be overridden to false")
	}
	if cfg.Schedule.Cron != "0 2 * * *" {
		t.Errorf("Cron = %q, want 0 2 * * *", cfg.Schedule.Cron)
	}
	// Unset fields keep their defaults.
	if cfg.General.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", cfg.General.MaxAttempts)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[general\ntool="), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("malformed config should error")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		in   string
		want string
	}{
		{"~/projects/app", filepath.Join(home, "projects/app")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
