package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-engine/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Apply ExStem database migrations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrate(cmd)
		if err != nil {
			return err
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("up failed: %w", err)
		}
		fmt.Println("Migrated up successfully")
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrate(cmd)
		if err != nil {
			return err
		}
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("down failed: %w", err)
		}
		fmt.Println("Migrated down successfully")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigrate(cmd)
		if err != nil {
			return err
		}
		version, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("version failed: %w", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
		return nil
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
		m, err := newMigrate(cmd)
		if err != nil {
			return err
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		fmt.Printf("Forced version to %d\n", v)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("path", "migrations", "Path to migration files")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func newMigrate(cmd *cobra.Command) (*migrate.Migrate, error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	dir, _ := cmd.Flags().GetString("path")

	m, err := migrate.New("file://"+dir, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("migration failed to initialize: %w", err)
	}
	return m, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
