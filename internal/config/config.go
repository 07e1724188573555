// Package config loads the coordinator's configuration from (in priority
// order) a YAML config file and environment variables, matching the
// teacher's layered config-file-then-env precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the coordinator's full runtime configuration.
type Config struct {
	ArchiveRoot  string            `yaml:"archive_root"`
	DatabasePath string            `yaml:"database_path"`
	Reservation  ReservationConfig `yaml:"reservation"`
	BuildSlot    BuildSlotConfig   `yaml:"build_slot"`
	QualityGate  QualityGateConfig `yaml:"quality_gate"`
	Recovery     RecoveryConfig    `yaml:"recovery"`
	Log          LogConfig         `yaml:"log"`

	// AckEscalationMode controls how escalate-overdue delivers its notice:
	// "log", "file-reservation", or "overseer" (spec §6).
	AckEscalationMode string `yaml:"ack_escalation_mode"`

	// AgentMailBypass skips the pre-commit guard check when set (spec §6).
	AgentMailBypass bool `yaml:"-"`
}

// ReservationConfig holds ReservationEngine defaults.
type ReservationConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// BuildSlotConfig holds BuildSlotManager defaults.
type BuildSlotConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// QualityGateConfig holds QualityGateRunner defaults.
type QualityGateConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// RecoveryConfig holds RecoverySweeper staleness thresholds.
type RecoveryConfig struct {
	TaskStaleness   time.Duration `yaml:"task_staleness"`
	ReviewStaleness time.Duration `yaml:"review_staleness"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the configuration used when neither a file nor an
// environment variable supplies a value.
func DefaultConfig() *Config {
	return &Config{
		Reservation: ReservationConfig{DefaultTTL: 30 * time.Minute},
		BuildSlot:   BuildSlotConfig{DefaultTTL: 15 * time.Minute},
		QualityGate: QualityGateConfig{Timeout: 5 * time.Minute},
		Recovery: RecoveryConfig{
			TaskStaleness:   2 * time.Hour,
			ReviewStaleness: 4 * time.Hour,
		},
		Log:               LogConfig{Level: "info"},
		AckEscalationMode: "log",
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function. This allows tests to provide isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables override the config file
	if v := getenv("AGENTMAIL_ARCHIVE_ROOT"); v != "" {
		cfg.ArchiveRoot = v
	}
	if v := getenv("AGENTMAIL_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := getenv("ACK_ESCALATION_MODE"); v != "" {
		cfg.AckEscalationMode = v
	}
	if v := getenv("AGENT_MAIL_BYPASS"); v != "" {
		cfg.AgentMailBypass = v == "1" || v == "true"
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentmail", "config.yaml")
	}

	// Fall back to ~/.config
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agentmail", "config.yaml")
}
