// CLI tool to run pending database migrations from db/.
// Checks the migrations table to skip already-applied files and wraps each
// migration plus its record insert in a single transaction.
// Usage: go run ./cmd/migrate [status]
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"lg/fitquest-api/internal/config"
)

var prefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{3}-`)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), func(ctx context.Context, conn *pgx.Conn) error {
				return up(ctx, cmd, conn, dir)
			})
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "db", "Directory holding the .sql migrations")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they have been applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConn(cmd.Context(), func(ctx context.Context, conn *pgx.Conn) error {
				files, err := migrationFiles(dir)
				if err != nil {
					return err
				}
				applied := appliedMigrations(ctx, conn)
				for _, f := range files {
					name := filepath.Base(f)
					state := "pending"
					if applied[name] {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  %-8s %s\n", state, name)
				}
				return nil
			})
		},
	})

	return cmd
}

func withConn(ctx context.Context, fn func(context.Context, *pgx.Conn) error) error {
	cfg := config.Load()
	conn, err := pgx.Connect(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer conn.Close(ctx)
	return fn(ctx, conn)
}

func migrationFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil || len(files) == 0 {
		return nil, fmt.Errorf("no migration files found in %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// appliedMigrations returns the recorded migrations. The table may not
// exist yet, in which case nothing has been applied.
func appliedMigrations(ctx context.Context, conn *pgx.Conn) map[string]bool {
	applied := make(map[string]bool)
	rows, err := conn.Query(ctx, "SELECT migration FROM migrations")
	if err != nil {
		return applied
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return applied
	}
	for _, n := range names {
		applied[n] = true
	}
	return applied
}

func up(ctx context.Context, cmd *cobra.Command, conn *pgx.Conn, dir string) error {
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}
	applied := appliedMigrations(ctx, conn)
	out := cmd.OutOrStdout()

	ran := 0
	for _, f := range files {
		filename := filepath.Base(f)
		if applied[filename] {
			fmt.Fprintf(out, "  skip: %s\n", filename)
			continue
		}

		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", filename, err)
		}

		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("run %s: %w", filename, err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO migrations (migration, description) VALUES ($1, $2)",
				filename, descriptionFromFilename(filename)); err != nil {
				return fmt.Errorf("record %s: %w", filename, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "  applied: %s\n", filename)
		ran++
	}

	if ran == 0 {
		fmt.Fprintln(out, "No pending migrations.")
	} else {
		fmt.Fprintf(out, "\n%d migration(s) applied.\n", ran)
	}
	return nil
}

// descriptionFromFilename strips the YYYY-MM-DD-NNN- prefix and .sql suffix.
func descriptionFromFilename(filename string) string {
	name := strings.TrimSuffix(filename, ".sql")
	name = prefixRe.ReplaceAllString(name, "")
	return strings.ReplaceAll(name, "-", " ")
}
