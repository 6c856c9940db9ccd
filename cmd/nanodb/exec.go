package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanodb/nanodb/internal/command"
	"github.com/nanodb/nanodb/internal/session"
)

var execCmd = &cobra.Command{
	Use:   "exec FILE",
	Short: "Run one command described by a YAML script file against the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		db, err := session.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		sess := session.NewSession(db)
		exec := command.NewExecutor(sess)

		c, err := loadScriptCommand(args[0])
		if err != nil {
			return err
		}
		res, err := exec.Execute(c)
		if err != nil {
			return err
		}
		printResult(os.Stdout, res)
		return nil
	},
}
