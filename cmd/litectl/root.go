// litectl manages cases and artifacts directly against the LITE database.
//
// Usage:
//
//	litectl cases list|create|show|status|delete|recount
//	litectl ingest <case-id> <file>...
//	litectl import <case-id> <category> <file.csv>
//	litectl export <case-id> [category] --format csv|json -o <path>
//	litectl search <case-id> <keyword>
//	litectl users <case-id>
//	litectl catalog
//	litectl watch [dir]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/database"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/localnerve/lite/internal/types"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// version is set at build time via -ldflags.
var version = "dev"

// env is the connected state shared by the subcommands
type env struct {
	cfg    *config.Config
	db     *gorm.DB
	runner *jobs.Runner
	store  jobs.StatusStore
	asJSON bool
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "litectl",
		Short:         "Forensic triage case and artifact management",
		Long:          "litectl creates cases, ingests triage collections and queries case data\nusing the same DB_* environment as the LITE server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			return e.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return e.close()
		},
	}
	root.PersistentFlags().BoolVar(&e.asJSON, "json", false, "print results as JSON")
	root.Version = version

	root.AddCommand(
		newCasesCmd(e),
		newIngestCmd(e),
		newImportCmd(e),
		newExportCmd(e),
		newSearchCmd(e),
		newUsersCmd(e),
		newCatalogCmd(e),
		newWatchCmd(e),
	)
	return root
}

func (e *env) open() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	if cfg.DBAutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			database.Close(db)
			return err
		}
	}
	store, err := jobs.NewStatusStore(cfg.RedisURL)
	if err != nil {
		database.Close(db)
		return err
	}

	e.cfg = cfg
	e.db = db
	e.store = store
	e.runner = jobs.NewRunner(db, ingest.New(db, cfg.IngestBatchSize), store, cfg.MaxConcurrentIngestions)
	return nil
}

func (e *env) close() error {
	if e.runner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
		defer cancel()
		_ = e.runner.Shutdown(ctx)
	}
	if e.store != nil {
		_ = e.store.Close()
	}
	if e.db != nil {
		return database.Close(e.db)
	}
	return nil
}

// loadCase resolves a case-id argument
func (e *env) loadCase(arg string) (*models.Case, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: case id %q", types.ErrInvalidArgument, arg)
	}
	return services.GetCase(e.db, id)
}

// print writes v as indented JSON when --json is set, otherwise runs text
func (e *env) print(w io.Writer, v interface{}, text func(io.Writer)) error {
	if e.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
