package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/meridianhq/corpweb/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the audit log schema",
	Long: `Apply or roll back the MariaDB migrations that back the auth event log.

Examples:
  server migrate up
  server migrate down 1
  server migrate version
`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mg, closeDB, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()
		return mg.Up()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down N",
	Short: "Roll back the last N migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		mg, closeDB, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()
		return mg.Down(steps)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		mg, closeDB, err := openMigrator(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

// openMigrator connects to MariaDB regardless of AUDIT_ENABLED; running
// the command is the opt-in.
func openMigrator(cmd *cobra.Command) (*database.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mariadb: %w", err)
	}

	mg, err := database.NewMigrator(db, cfg.Database.MigrationsPath)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return mg, func() { db.Close() }, nil
}
