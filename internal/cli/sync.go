package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/roach88/yogisync/internal/config"
	"github.com/roach88/yogisync/internal/metrics"
	"github.com/roach88/yogisync/internal/parse"
	"github.com/roach88/yogisync/internal/pipeline"
	"github.com/roach88/yogisync/internal/remote"
	"github.com/roach88/yogisync/internal/source"
)

// dryRunDestination names the in-memory calendar used by --dry-run when no
// calendar id is configured.
const dryRunDestination = "dry-run"

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Limit       int
	DryRun      bool
	MetricsFile string

	// backend overrides the Google mail source and calendar (for testing).
	backend backendFunc
	// runIDs overrides the run id generator (for testing).
	runIDs pipeline.RunIDGenerator
}

// backendFunc builds the mail source and calendar store for one run.
type backendFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source.Collector, remote.Store, error)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync from mail to calendar",
		Long: `Fetch recent booking mail, parse every recognised confirmation, record
it in the local cache and bring the calendar in line with it.

Per-event failures are reported in the summary and make the command exit 1;
the remaining events are still processed.

Example:
  yogisync sync
  yogisync sync --limit 200 --format json
  yogisync sync --dry-run -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum messages to fetch (default: sync_limit from config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "parse and reconcile against a throwaway cache and in-memory calendar")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file")

	return cmd
}

func runSync(cmd *cobra.Command, opts *SyncOptions) error {
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = cfg.SyncLimit
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	reg := prometheus.NewRegistry()
	s := &syncer{
		backend: opts.backend,
		runIDs:  opts.runIDs,
		metrics: metrics.New(reg),
		logger:  logger,
	}
	if s.backend == nil {
		s.backend = googleBackend(opts.DryRun)
	}
	if opts.DryRun {
		dir, err := os.MkdirTemp("", "yogisync-dry-run-")
		if err != nil {
			return WrapExitError(ExitFailure, "failed to create dry-run cache", err)
		}
		defer os.RemoveAll(dir)
		s.cachePath = filepath.Join(dir, "cache.db")
		formatter.VerboseLog("Dry run: cache at %s, nothing is written to the calendar", s.cachePath)
	}

	result, err := s.run(ctx, cfg, limit)
	if err != nil {
		return err
	}

	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile, reg); err != nil {
			logger.Warn("metrics textfile not written", "path", opts.MetricsFile, "error", err)
		}
	}

	if err := outputSyncResult(formatter, result); err != nil {
		return err
	}
	if result.Errors > 0 {
		return exitErrorf(ExitFailure, "%d event(s) failed, see log", result.Errors)
	}
	return nil
}

func outputSyncResult(formatter *OutputFormatter, result pipeline.Result) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "created=%d updated=%d skipped=%d errors=%d\n",
		result.Created, result.Updated, result.Skipped, result.Errors)
	formatter.VerboseLog("run_id=%s", result.RunID)
	return nil
}

// syncer performs complete sync runs. The daemon keeps one and calls run on
// every tick with the current config.
type syncer struct {
	backend   backendFunc
	runIDs    pipeline.RunIDGenerator
	metrics   *metrics.Sync
	logger    *slog.Logger
	cachePath string // overrides cfg.SQLitePath when set
}

// run fetches up to limit messages and pushes them through the pipeline.
// Configuration-class failures come back as ExitCommandError before any
// message is fetched.
func (s *syncer) run(ctx context.Context, cfg *config.Config, limit int) (pipeline.Result, error) {
	loc, err := cfg.Location()
	if err != nil {
		return pipeline.Result{}, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	collector, store, err := s.backend(ctx, cfg, s.logger)
	if err != nil {
		return pipeline.Result{}, err
	}

	reconciler := remote.NewReconciler(store,
		remote.WithDuration(cfg.EventDuration()),
		remote.WithWindowDays(cfg.SearchWindowDays),
		remote.WithTimeZone(loc),
		remote.WithLogger(s.logger),
		remote.WithMetrics(s.metrics),
	)
	if err := reconciler.Ready(); err != nil {
		return pipeline.Result{}, WrapExitError(ExitCommandError, "no calendar configured, set YOGISYNC_CALENDAR_ID", err)
	}

	cachePath := s.cachePath
	if cachePath == "" {
		cachePath = cfg.SQLitePath
	}
	st, err := openCache(cachePath)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer closeCache(st, s.logger)

	messages, err := collector.Fetch(ctx, limit)
	if err != nil {
		return pipeline.Result{}, WrapExitError(ExitFailure, "failed to fetch messages", err)
	}
	s.logger.Debug("messages fetched", "count", len(messages), "limit", limit)

	pipelineOpts := []pipeline.Option{
		pipeline.WithRegistry(parse.NewRegistry(parse.WithLocation(loc))),
		pipeline.WithLogger(s.logger),
		pipeline.WithMetrics(s.metrics),
	}
	if s.runIDs != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithRunIDGenerator(s.runIDs))
	}

	result, err := pipeline.New(st, reconciler, pipelineOpts...).Run(ctx, messages)
	if errors.Is(err, remote.ErrNoDestination) {
		return result, WrapExitError(ExitCommandError, "no calendar configured, set YOGISYNC_CALENDAR_ID", err)
	}
	if err != nil {
		return result, WrapExitError(ExitFailure, "sync failed", err)
	}
	return result, nil
}

// googleBackend reads Gmail and writes Google Calendar. With dryRun the
// calendar is replaced by an in-memory store.
func googleBackend(dryRun bool) backendFunc {
	return func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source.Collector, remote.Store, error) {
		client, err := googleClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}

		gmailSvc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, nil, WrapExitError(ExitFailure, "failed to create gmail client", err)
		}
		collector := source.NewGmailCollector(gmailSvc, cfg.GmailQuery, source.WithLogger(logger))

		if dryRun {
			destination := cfg.CalendarID
			if destination == "" {
				destination = dryRunDestination
			}
			return collector, remote.NewMemoryStore(destination, time.Now), nil
		}

		calendarSvc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return nil, nil, WrapExitError(ExitFailure, "failed to create calendar client", err)
		}
		return collector, remote.NewGoogleStore(calendarSvc, cfg.CalendarID), nil
	}
}
