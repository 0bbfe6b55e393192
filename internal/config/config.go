package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Executor      ExecutorConfig      `toml:"executor"`
	Checkpoint    CheckpointConfig    `toml:"checkpoint"`
	Notifications NotificationsConfig `toml:"notifications"`
	Schedule      ScheduleConfig      `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ProjectDir    string `toml:"project_dir"`
	Tool          string `toml:"tool"`
	MaxIterations int    `toml:"max_iterations"`
	MaxWorkers    int    `toml:"max_workers"`
	MaxAttempts   int    `toml:"max_attempts"`
	LearningDB    string `toml:"learning_db"`
}

// ExecutorConfig holds settings for the external executor invocation.
// Mode "cli" builds a prompt and invokes an AI coding CLI; mode "script"
// runs the command through the shell with the story in the environment.
type ExecutorConfig struct {
	Mode           string       `toml:"mode"`
	Command        string       `toml:"command"`
	Args           []string     `toml:"args"`
	TimeoutMinutes int          `toml:"timeout_minutes"`
	Gates          []GateConfig `toml:"gates"`
}

// GateConfig names one quality-gate command run after every iteration
type GateConfig struct {
	Name    string `toml:"name"`
	Command string `toml:"command"`
}

// CheckpointConfig holds pre-execution approval settings
type CheckpointConfig struct {
	Enabled                bool `toml:"enabled"`
	EveryN                 int  `toml:"every_n"`
	ApprovalTimeoutSeconds int  `toml:"approval_timeout_seconds"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// ScheduleConfig holds the optional run window
type ScheduleConfig struct {
	Cron string `toml:"cron"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			ProjectDir:    ".ralph",
			Tool:          "claude",
			MaxIterations: 10,
			MaxWorkers:    3,
			MaxAttempts:   3,
			LearningDB:    filepath.Join(".ralph", "learnings.db"),
		},
		Executor: ExecutorConfig{
			Mode:           "cli",
			Command:        "claude",
			Args:           []string{"-p"},
			TimeoutMinutes: 30,
		},
		Checkpoint: CheckpointConfig{
			Enabled:                false,
			EveryN:                 1,
			ApprovalTimeoutSeconds: 300,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.ProjectDir = ExpandPath(cfg.General.ProjectDir)
	cfg.General.LearningDB = ExpandPath(cfg.General.LearningDB)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	return filepath.Join(".ralph", "config.toml")
}
