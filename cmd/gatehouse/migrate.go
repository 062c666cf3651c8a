// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, func(m *store.Migrator) error { return m.Up() }, "Migrations applied")
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Long:  `Revert every applied migration, leaving an empty schema. Destructive.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, func(m *store.Migrator) error { return m.Down() }, "Migrations rolled back")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current migration version",
		RunE:  runMigrateVersion,
	})

	return cmd
}

func newMigrator() (*store.Migrator, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, err
	}
	return store.NewMigrator(cfg.DatabaseURL)
}

func runMigrate(cmd *cobra.Command, step func(*store.Migrator) error, doneMsg string) error {
	migrator, err := newMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	if err := step(migrator); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}

	cmd.Println(doneMsg)
	return nil
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	migrator, err := newMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = migrator.Close() }()

	version, dirty, err := migrator.Version()
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
	}

	if version == 0 && !dirty {
		cmd.Println("No migrations applied")
		return nil
	}

	if dirty {
		cmd.Printf("Version: %d (dirty)\n", version)
	} else {
		cmd.Printf("Version: %d\n", version)
	}
	return nil
}
