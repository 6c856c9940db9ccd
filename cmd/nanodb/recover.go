package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nanodb/nanodb/internal/session"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Open the database, forcing WAL replay, then checkpoint and report stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		fmt.Printf("Opening %s (recovery runs automatically if a WAL is present)...\n", cfg.DataDir)

		db, err := session.Open(cfg)
		if err != nil {
			return fmt.Errorf("recovery failed: %w", err)
		}
		defer db.Close()

		if err := db.Checkpoint(); err != nil {
			return fmt.Errorf("checkpoint after recovery failed: %w", err)
		}

		stats := db.Stats()
		fmt.Println("Recovery complete. Database statistics:")
		for _, key := range []string{"buffer_hits", "buffer_misses", "buffer_cached", "active_txns", "tables"} {
			fmt.Printf("  %-16s %v\n", key+":", stats[key])
		}
		return nil
	},
}
