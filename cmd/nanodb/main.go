// Command nanodb is NanoDB's CLI: a cobra command tree exposing an
// interactive REPL, a scripted exec mode for batches of pre-built
// commands, and a recover subcommand that forces WAL replay and
// reports what it found. Grounded on cuemby-warren/cmd/warren/main.go's
// rootCmd/Execute() shape; the REPL loop itself keeps the teacher's
// cmd/minidb/main.go texture (banner, bufio.Scanner, dot-commands).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanodb/nanodb/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nanodb",
	Short: "NanoDB - a single-node relational storage and execution engine",
	Long: `NanoDB is the storage and query-execution core of a relational
database: paged storage, a slotted heap, a pull-based iterator-tree
planner, and ARIES-lite write-ahead logging and recovery.

There is no SQL parser here (spec's grammar/parsing Non-goal) — the
repl's dot-commands and exec's YAML command files drive the same
internal/command.Executor a real front end would.`,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "./nanodb-data", "Data directory")
	rootCmd.PersistentFlags().Int("page-size", 4096, "Page size, in bytes")
	rootCmd.PersistentFlags().Int("buffer-pages", 1024, "Buffer pool capacity, in pages")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(recoverCmd)
}

func loadConfig(cmd *cobra.Command) config.Config {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	bufferPages, _ := cmd.Flags().GetInt("buffer-pages")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	cfg := config.Defaults()
	cfg.DataDir = dataDir
	cfg.PageSize = pageSize
	cfg.BufferPoolPages = bufferPages
	cfg.Log = config.LogConfig{Level: logLevel, JSON: logJSON}
	return cfg
}
