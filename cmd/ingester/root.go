package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/toll-telemetry/ingester/internal/api"
	"github.com/toll-telemetry/ingester/internal/config"
	"github.com/toll-telemetry/ingester/internal/db"
	"github.com/toll-telemetry/ingester/internal/ingest"
	"github.com/toll-telemetry/ingester/internal/logging"
	"github.com/toll-telemetry/ingester/internal/sinkutil"
	"github.com/toll-telemetry/ingester/internal/source"
)

type runOptions struct {
	online         bool
	untilYesterday bool
	onlyPrint      bool
}

// NewRootCommand returns the ingester command.
func NewRootCommand() *cobra.Command {
	var opts runOptions

	command := &cobra.Command{
		Use:   "ingester <day>",
		Short: "Load toll transits of a day and aggregate them per minute and route",
		Long: `Deletes everything stored for the day, then loads it again from the upstream
store. Without --online the day is loaded once; with --online the ingester keeps
polling for new transits until interrupted.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger()
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, logger)

			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				logger.Errorw("Invalid configuration", "error", err)
				return err
			}
			return run(ctx, cfg, args[0], opts)
		},
	}

	flags := command.Flags()
	flags.BoolVar(&opts.online, "online", false, "Keep polling for new transits until interrupted")
	flags.BoolVar(&opts.untilYesterday, "until-yesterday", false, "Load every day from <day> until yesterday")
	flags.BoolVar(&opts.onlyPrint, "only-print", false, "Print fetched transits as CSV instead of storing them")
	flags.String("database", "", "Path to the SQLite database (SQLITE_DATABASE)")
	flags.String("source-url", "", "Upstream database URL (SOURCE_DATABASE_URL)")
	flags.Int("poll-interval", 0, "Seconds between cycles in online mode (POLL_INTERVAL)")
	flags.Int("retention", 0, "Windows kept buffered in online mode (WINDOW_RETENTION)")
	flags.String("status-addr", "", "Status server address in online mode, e.g. :8090 (STATUS_ADDR)")
	return command
}

func run(ctx context.Context, cfg *config.Config, day string, opts runOptions) (err error) {
	logger := logging.FromContext(ctx)

	days, err := ingest.Days(day, opts.untilYesterday, time.Now())
	if err != nil {
		logger.Errorw("Invalid day", "day", day, "error", err)
		return err
	}
	if len(days) == 0 {
		logger.Infow("Nothing to load", "from", day)
		return nil
	}

	src, err := source.NewPostgresSource(ctx, cfg.SourceDatabaseURL, source.Filter{
		StationID: cfg.SourceStationID,
		MaxLane:   cfg.SourceMaxLane,
	})
	if err != nil {
		logger.Errorw("Failed to connect to source", "error", err)
		return err
	}
	defer src.Close()

	mode := ingest.ModeBatch
	if opts.online {
		mode = ingest.ModeContinuous
	}
	orchOpts := ingest.Options{
		Mode:         mode,
		Retention:    cfg.WindowRetention,
		PollInterval: cfg.PollInterval,
	}

	var (
		raw      ingest.RawSink
		aggr     ingest.AggregatedSink
		database *db.DB
	)
	if opts.onlyPrint {
		printer := sinkutil.NewPrintSink(os.Stdout, nil)
		raw, aggr = printer, printer
	} else {
		database, err = db.Connect(cfg.DatabasePath, logger)
		if err != nil {
			logger.Errorw("Failed to connect to database", "path", cfg.DatabasePath, "error", err)
			return err
		}
		defer func() { err = multierr.Append(err, database.Close()) }()

		if err := database.EnsureSchema(ctx); err != nil {
			logger.Errorw("Failed to ensure database schema", "error", err)
			return err
		}
		raw, aggr = database, database
		orchOpts.Ledger = database
	}

	orch := ingest.NewOrchestrator(src, raw, aggr, orchOpts, logger)
	logger.Infow("Ingester starting",
		"days", days, "mode", mode, "retention", cfg.WindowRetention,
		"pollInterval", cfg.PollInterval, "onlyPrint", opts.onlyPrint)

	g, gctx := errgroup.WithContext(ctx)
	loadCtx, stopServer := context.WithCancel(gctx)
	if opts.online && cfg.StatusAddr != "" && database != nil {
		router := api.NewRouter(orch, database, database.Conn(), cfg.StatusAllowedOrigins, logger)
		server := api.NewServer(cfg.StatusAddr, router, logger)
		g.Go(func() error { return server.Run(loadCtx) })
	}
	g.Go(func() error {
		defer stopServer()
		return orch.RunDays(loadCtx, days)
	})

	if err := g.Wait(); err != nil {
		status := orch.Status()
		logger.Errorw("Ingestion failed", "day", status.Day, "cursor", status.Cursor, "error", err)
		return fmt.Errorf("ingestion stopped: %w", err)
	}

	logger.Infow("Ingester stopped", "days", days)
	return nil
}
