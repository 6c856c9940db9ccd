package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanodb/nanodb/internal/command"
	"github.com/nanodb/nanodb/internal/plan"
	"github.com/nanodb/nanodb/internal/session"
)

const banner = `
 _   _                 ____  ____
| \ | | __ _ _ __   ___|  _ \| __ )
|  \| |/ _\ | '_ \ / _ \ | | |  _ \
| |\  | (_| | | | | (_) | |_| | |_) |
|_| \_|\__,_|_| |_|\___/____/|____/

A single-node relational storage and execution engine.
Type .help for available commands, .exit to quit.
`

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session against a NanoDB data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		fmt.Print(banner)
		fmt.Printf("Data directory: %s\n", cfg.DataDir)
		fmt.Printf("Buffer pool:    %d pages (%d KB)\n", cfg.BufferPoolPages, cfg.BufferPoolPages*cfg.PageSize/1024)

		db, err := session.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		fmt.Println("Database ready.")
		fmt.Println()

		sess := session.NewSession(db)
		exec := command.NewExecutor(sess)
		runREPL(os.Stdin, os.Stdout, db, sess, exec)
		return nil
	},
}

// runREPL drives the dot-command loop. There is no SQL text here — the
// spec's grammar/parsing Non-goal means this reads a small fixed set of
// meta-commands directly, the same division of labor the teacher's
// cmd/minidb/main.go drew between its REPL loop and sql.Executor, minus
// the parser in between.
func runREPL(in *os.File, out *os.File, db *session.DatabaseContext, sess *session.Session, exec *command.Executor) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "nanodb> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == ".exit" || line == ".quit" || line == "\\q":
			fmt.Fprintln(out, "Goodbye!")
			return
		case line == ".help" || line == "\\h":
			printHelp(out)
		case line == ".tables" || line == "\\dt":
			printTables(out, db)
		case line == ".stats" || line == "\\s":
			printStats(out, db)
		case line == ".checkpoint":
			if err := db.Checkpoint(); err != nil {
				fmt.Fprintf(out, "Checkpoint failed: %v\n", err)
			} else {
				fmt.Fprintln(out, "Checkpoint created.")
			}
		case line == ".begin":
			if err := sess.Begin(); err != nil {
				fmt.Fprintf(out, "BEGIN failed: %v\n", err)
			}
		case line == ".commit":
			if err := sess.Commit(); err != nil {
				fmt.Fprintf(out, "COMMIT failed: %v\n", err)
			}
		case line == ".rollback":
			if err := sess.Rollback(); err != nil {
				fmt.Fprintf(out, "ROLLBACK failed: %v\n", err)
			}
		case strings.HasPrefix(line, ".explain "):
			explainTable(out, db, strings.TrimSpace(strings.TrimPrefix(line, ".explain ")))
		case strings.HasPrefix(line, ".exec "):
			runScriptFile(out, exec, strings.TrimSpace(strings.TrimPrefix(line, ".exec ")))
		default:
			fmt.Fprintf(out, "Unrecognized command %q. Type .help for the command list.\n", line)
		}
	}
}

func printHelp(out *os.File) {
	fmt.Fprint(out, `
Commands:
  .help, \h          Show this help message
  .tables, \dt       List all tables
  .stats, \s         Show database statistics
  .checkpoint        Flush all dirty pages and the WAL buffer
  .begin             Start an explicit transaction
  .commit            Commit the current transaction
  .rollback          Roll back the current transaction
  .explain TABLE     Show the plan NanoDB would use for "SELECT * FROM TABLE"
  .exec FILE         Run the command described by a YAML script file
  .exit, .quit, \q   Exit

There is no SQL text interpreter: build and submit commands through the
internal/command package (see .exec) or a future front end.
`)
}

func printTables(out *os.File, db *session.DatabaseContext) {
	names := db.Catalog.TableNames()
	if len(names) == 0 {
		fmt.Fprintln(out, "No tables found.")
		return
	}
	fmt.Fprintln(out, "\nTables:")
	for _, name := range names {
		info, _ := db.Catalog.GetTable(name)
		fmt.Fprintf(out, "  %s (id=%d)\n", name, info.TableID)
		for _, col := range info.Schema.Schema.Columns {
			fmt.Fprintf(out, "    - %s %s\n", col.Name, col.Type.String())
		}
	}
	fmt.Fprintln(out)
}

func printStats(out *os.File, db *session.DatabaseContext) {
	stats := db.Stats()
	fmt.Fprintln(out, "\nDatabase statistics:")
	for _, key := range []string{"buffer_hits", "buffer_misses", "buffer_cached", "active_txns", "tables"} {
		fmt.Fprintf(out, "  %-16s %v\n", key+":", stats[key])
	}
	fmt.Fprintln(out)
}

func explainTable(out *os.File, db *session.DatabaseContext, tableName string) {
	info, ok := db.Catalog.GetTable(tableName)
	if !ok {
		fmt.Fprintf(out, "unknown table %q\n", tableName)
		return
	}
	planner := plan.NewPlanner(db.Catalog)
	root, err := planner.MakePlan(&plan.SelectClause{
		From:   []plan.FromItem{{Table: tableName}},
		Values: []plan.SelectValue{{Wildcard: true}},
	})
	if err != nil {
		fmt.Fprintf(out, "plan failed: %v\n", err)
		return
	}
	if err := root.Prepare(); err != nil {
		fmt.Fprintf(out, "prepare failed: %v\n", err)
		return
	}
	out2, err := plan.Explain(root)
	if err != nil {
		fmt.Fprintf(out, "explain failed: %v\n", err)
		return
	}
	fmt.Fprintf(out, "-- plan for %s (%d columns) --\n", tableName, info.Schema.Schema.NumColumns())
	fmt.Fprint(out, out2)
}

func runScriptFile(out *os.File, exec *command.Executor, path string) {
	cmd, err := loadScriptCommand(path)
	if err != nil {
		fmt.Fprintf(out, "failed to load %s: %v\n", path, err)
		return
	}
	res, err := exec.Execute(cmd)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return
	}
	printResult(out, res)
}

func printResult(out *os.File, res *command.Result) {
	if len(res.Rows) > 0 {
		widths := make([]int, len(res.ColumnNames))
		for i, col := range res.ColumnNames {
			widths[i] = len(col)
		}
		for _, row := range res.Rows {
			for i, v := range row {
				if s := formatValue(v); len(s) > widths[i] {
					widths[i] = len(s)
				}
			}
		}
		printSeparator(out, widths)
		printRow(out, res.ColumnNames, widths)
		printSeparator(out, widths)
		for _, row := range res.Rows {
			vals := make([]string, len(row))
			for i, v := range row {
				vals[i] = formatValue(v)
			}
			printRow(out, vals, widths)
		}
		printSeparator(out, widths)
		fmt.Fprintln(out)
	}
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
	}
	if res.RowsAffected > 0 || (res.Message == "" && len(res.Rows) == 0) {
		fmt.Fprintf(out, "(%d row(s) affected)\n", res.RowsAffected)
	}
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func printRow(out *os.File, values []string, widths []int) {
	fmt.Fprint(out, "| ")
	for i, val := range values {
		fmt.Fprintf(out, "%-*s | ", widths[i], val)
	}
	fmt.Fprintln(out)
}

func printSeparator(out *os.File, widths []int) {
	fmt.Fprint(out, "+")
	for _, w := range widths {
		fmt.Fprint(out, strings.Repeat("-", w+2)+"+")
	}
	fmt.Fprintln(out)
}
