// Command migrate manages the ideaforge schema and the search index.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ideaforge/api/internal/config"
	"ideaforge/api/internal/logging"
	"ideaforge/api/internal/search"
	"ideaforge/api/internal/store"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the ideaforge database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *sql.DB) error {
			if err := store.ApplyMigrations(db); err != nil {
				return err
			}
			return printVersion(cmd, db)
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default one step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withDB(cmd.Context(), func(db *sql.DB) error {
			if err := store.RollbackMigrations(db, steps); err != nil {
				return err
			}
			return printVersion(cmd, db)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(db *sql.DB) error {
			return printVersion(cmd, db)
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Long: `Set the recorded schema version and clear the dirty flag.

Use after fixing a migration that failed halfway.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("version must be an integer, got %q", args[0])
		}
		return withDB(cmd.Context(), func(db *sql.DB) error {
			if err := store.ForceMigrationVersion(db, version); err != nil {
				return err
			}
			return printVersion(cmd, db)
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Meilisearch index from PostgreSQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return fmt.Errorf("MEILI_URL is not set")
		}
		log, err := logging.New(cfg.LogLevel, false)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		return withDB(cmd.Context(), func(db *sql.DB) error {
			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
			defer meili.Close()
			records, err := search.NewPgFTS(db).LoadAllRecords(cmd.Context())
			if err != nil {
				return err
			}
			if err := meili.IndexIdeas(records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d ideas\n", len(records))
			return nil
		})
	},
}

func withDB(ctx context.Context, fn func(*sql.DB) error) error {
	url := databaseURL
	if url == "" {
		url = config.Load().DatabaseURL
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	db, err := store.Open(ctx, url, store.OpenOptions{PingRetries: 1})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	version, dirty, err := store.MigrationVersion(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	rootCmd.AddCommand(upCmd, downCmd, versionCmd, forceCmd, reindexCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
