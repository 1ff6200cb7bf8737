package cmd

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}

		db, err := openDatabase(log, cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		return nil
	},
}
