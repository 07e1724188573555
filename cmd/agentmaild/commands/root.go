// Package commands wires the coordination substrate's internal/* packages
// into a cobra CLI. It contains no business logic of its own: every
// RunE delegates immediately to internal/coordination, internal/reservation,
// internal/buildslot, internal/review, or internal/recovery (spec §1, §6).
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentmail/coordinator/internal/archive"
	"github.com/agentmail/coordinator/internal/config"
	"github.com/agentmail/coordinator/internal/coordination"
	"github.com/agentmail/coordinator/internal/db"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentmaild",
	Short: "Coordination substrate for autonomous coding agents sharing a repository",
	Long: `agentmaild provides mailbox messaging, advisory file reservations, build-slot
semaphores, a review-workflow state machine, and a git-backed archive for a
team of autonomous coding agents working against one checkout.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/agentmail/config.yaml)")
	rootCmd.PersistentFlags().String("archive-root", "", "git archive root directory")
	rootCmd.PersistentFlags().String("db-path", "", "sqlite database path")

	viper.BindPFlag("archive_root", rootCmd.PersistentFlags().Lookup("archive-root"))
	viper.BindPFlag("database_path", rootCmd.PersistentFlags().Lookup("db-path"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".config", "agentmail"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("AGENTMAIL")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

// loadedConfig merges viper's view (flags, env, file) onto config.Config's
// own layered Load(), so a bare environment variable like
// ACK_ESCALATION_MODE (unprefixed, per spec §6) still takes effect even
// though viper only watches the AGENTMAIL_ prefix.
func loadedConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("archive_root"); v != "" {
		cfg.ArchiveRoot = v
	}
	if v := viper.GetString("database_path"); v != "" {
		cfg.DatabasePath = v
	}
	if cfg.ArchiveRoot == "" {
		return nil, fmt.Errorf("archive root is required: set --archive-root, AGENTMAIL_ARCHIVE_ROOT, or archive_root in config")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.ArchiveRoot, ".agentmail.db")
	}
	return cfg, nil
}

// bootstrap opens the database and archive and wires a CoordinationStore,
// matching the teacher's pattern of a single shared repository handle
// (spec §5: "the repository handle is shared, never duplicated").
func bootstrap() (*coordination.Store, *db.Store, *archive.Archive, error) {
	cfg, err := loadedConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger(cfg)

	dbStore, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	arc, err := archive.Open(cfg.ArchiveRoot, "agentmaild", "agentmaild@localhost", logger)
	if err != nil {
		dbStore.Close()
		return nil, nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}

	coord := coordination.New(dbStore, arc, logger)
	return coord, dbStore, arc, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	if cfg.Log.File != "" {
		if f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			return zerolog.New(f).Level(level).With().Timestamp().Logger()
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
