package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/yogisync/internal/config"
	"github.com/roach88/yogisync/internal/metrics"
	"github.com/roach88/yogisync/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

// DaemonOptions holds flags for the daemon command.
type DaemonOptions struct {
	*RootOptions
	RunOnStart bool

	// backend overrides the Google mail source and calendar (for testing).
	backend backendFunc
	// runIDs overrides the run id generator (for testing).
	runIDs pipeline.RunIDGenerator
}

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DaemonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Sync on a schedule",
		Long: `Run sync on the cron schedule from sync_schedule until interrupted.

The config file is watched: edits take effect on the next run, and a changed
schedule or timezone replaces the current job. An edit that fails validation is logged
and ignored. When metrics_addr is set, Prometheus metrics are served on
/metrics at that address.

Example:
  yogisync daemon
  SYNC_SCHEDULE="0 * * * *" METRICS_ADDR=:9464 yogisync daemon`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.RunOnStart, "run-on-start", true, "sync once immediately before waiting for the schedule")

	return cmd
}

func runDaemon(cmd *cobra.Command, opts *DaemonOptions) error {
	logger := newLogger(opts.Verbose, cmd.ErrOrStderr())

	if opts.EnvFile != "" {
		if err := config.LoadDotenv(opts.EnvFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to load env file", err)
		}
	}
	loader, err := config.NewLoader(opts.ConfigPath, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	cfg := loader.Config()
	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &daemon{
		syncer: &syncer{
			backend: opts.backend,
			runIDs:  opts.runIDs,
			metrics: metrics.New(reg),
			logger:  logger,
		},
		loader: loader,
		logger: logger,
		cron:   cron.New(cron.WithLocation(loc)),
	}
	if d.syncer.backend == nil {
		d.syncer.backend = googleBackend(false)
	}

	if err := d.apply(ctx, cfg); err != nil {
		return WrapExitError(ExitCommandError, "invalid schedule", err)
	}
	loader.OnChange(func(c *config.Config) {
		if err := d.apply(ctx, c); err != nil {
			logger.Warn("schedule not changed", "schedule", c.SyncSchedule, "timezone", c.Timezone, "error", err)
		}
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		logger.Warn("config watcher unavailable (hot-reload disabled)", "error", err)
	} else {
		defer stopWatch()
	}

	if cfg.MetricsAddr != "" {
		srv, err := serveMetrics(cfg.MetricsAddr, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
	}

	if opts.RunOnStart {
		d.tick(ctx)
	}

	d.start()
	logger.Info("daemon started", "schedule", d.currentSchedule(), "timezone", loc.String())

	<-ctx.Done()

	// Running jobs see the cancelled context and return early.
	d.stop()
	logger.Info("daemon stopped")
	return nil
}

// daemon owns the cron schedule. One sync runs at a time; a tick that
// fires while a sync is still running is skipped.
type daemon struct {
	syncer *syncer
	loader *config.Loader
	logger *slog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	started  bool

	running sync.Mutex
}

// apply brings the sync job in line with cfg. A new timezone rebuilds the
// scheduler in that location; a new spec replaces the job. On error the
// current job is kept.
func (d *daemon) apply(ctx context.Context, cfg *config.Config) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	spec := cfg.SyncSchedule
	job := func() { d.tick(ctx) }

	d.mu.Lock()
	defer d.mu.Unlock()

	if loc.String() != d.cron.Location().String() {
		c := cron.New(cron.WithLocation(loc))
		id, err := c.AddFunc(spec, job)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", spec, err)
		}
		if d.started {
			c.Start()
			// A job still running on the old scheduler holds the run lock.
			d.cron.Stop()
		}
		d.logger.Info("timezone changed", "old", d.cron.Location().String(), "new", loc.String(), "schedule", spec)
		d.cron = c
		d.entry = id
		d.schedule = spec
		return nil
	}

	if d.entry != 0 && spec == d.schedule {
		return nil
	}
	id, err := d.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	if d.entry != 0 {
		d.cron.Remove(d.entry)
		d.logger.Info("schedule changed", "old", d.schedule, "new", spec)
	}
	d.entry = id
	d.schedule = spec
	return nil
}

func (d *daemon) start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cron.Start()
	d.started = true
}

// stop halts the scheduler and waits for a running job to return.
func (d *daemon) stop() {
	d.mu.Lock()
	c := d.cron
	d.started = false
	d.mu.Unlock()
	<-c.Stop().Done()
}

func (d *daemon) currentSchedule() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schedule
}

// tick runs one sync with the latest config.
func (d *daemon) tick(ctx context.Context) {
	if !d.running.TryLock() {
		d.logger.Warn("previous sync still running, tick skipped")
		return
	}
	defer d.running.Unlock()

	cfg := d.loader.Config()
	result, err := d.syncer.run(ctx, cfg, cfg.SyncLimit)
	switch {
	case errors.Is(err, context.Canceled):
		d.logger.Info("sync interrupted", "run_id", result.RunID)
	case err != nil:
		d.logger.Error("sync failed", "run_id", result.RunID, "error", err)
	default:
		d.logger.Info("sync finished",
			"run_id", result.RunID,
			"created", result.Created,
			"updated", result.Updated,
			"skipped", result.Skipped,
			"errors", result.Errors)
	}
}

// serveMetrics exposes g on /metrics at addr.
func serveMetrics(addr string, g prometheus.Gatherer, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           metricsHandler(g),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	logger.Info("metrics server starting", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv, nil
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}
