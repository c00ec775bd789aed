package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/toll-telemetry/ingester/internal/config"
	"github.com/toll-telemetry/ingester/internal/db"
	"github.com/toll-telemetry/ingester/internal/loader"
	"github.com/toll-telemetry/ingester/internal/logging"
	"github.com/toll-telemetry/ingester/internal/sinkutil"
)

func main() {
	if err := NewImportCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewImportCommand returns the bulk CSV import command.
func NewImportCommand() *cobra.Command {
	var (
		replace   bool
		onlyPrint bool
	)

	command := &cobra.Command{
		Use:   "import-csv <file>...",
		Short: "Load raw transits from CSV files and aggregate every window",
		Long: `Each file is headerless CSV with the raw table columns in storage order.
The travel time column is recomputed. All windows found in a file are flushed.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			logger := logging.NewLogger().Named("import-csv")
			defer func() { _ = logger.Sync() }()
			ctx := logging.WithLogger(cmd.Context(), logger)

			var l *loader.Loader
			if onlyPrint {
				l = loader.New(sinkutil.NewPrintSink(os.Stdout, nil), sinkutil.NewPrintSink(os.Stdout, os.Stdout), logger)
			} else {
				cfg, err := config.Load(cmd.Flags())
				if err != nil {
					logger.Errorw("Invalid configuration", "error", err)
					return err
				}
				database, err := db.Connect(cfg.DatabasePath, logger)
				if err != nil {
					logger.Errorw("Failed to connect to database", "path", cfg.DatabasePath, "error", err)
					return err
				}
				defer func() { err = multierr.Append(err, database.Close()) }()

				if err := database.EnsureSchema(ctx); err != nil {
					logger.Errorw("Failed to ensure database schema", "error", err)
					return err
				}
				l = loader.New(database, database, logger)
			}
			l.Replace = replace

			return importFiles(ctx, l, args)
		},
	}

	command.Flags().BoolVar(&replace, "replace", false, "Delete the days present in a file before loading it")
	command.Flags().BoolVar(&onlyPrint, "only-print", false, "Print records and aggregates instead of storing them")
	command.Flags().String("database", "", "Path to the SQLite database (SQLITE_DATABASE)")
	return command
}

func importFiles(ctx context.Context, l *loader.Loader, paths []string) error {
	logger := logging.FromContext(ctx)
	for _, path := range paths {
		summary, err := l.LoadFile(ctx, path)
		if err != nil {
			logger.Errorw("Import failed", "file", path, "error", err)
			return err
		}
		logger.Infow("Imported", "file", path, "records", summary.Records, "rows", summary.Rows, "days", summary.Days)
	}
	return nil
}
