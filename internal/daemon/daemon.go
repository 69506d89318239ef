package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanzu-lab/yvp/internal/api"
	"github.com/yanzu-lab/yvp/internal/app/ledger"
	"github.com/yanzu-lab/yvp/internal/app/roster"
	"github.com/yanzu-lab/yvp/internal/app/workflow"
	"github.com/yanzu-lab/yvp/internal/domain"
	"github.com/yanzu-lab/yvp/internal/health"
	"github.com/yanzu-lab/yvp/internal/infra/sqlite"
	"github.com/yanzu-lab/yvp/internal/logging"
)

// Daemon is the core YVP runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Policy   domain.Policy
	Location *time.Location
	Log      *zap.Logger
	DB       *sqlite.DB

	Roster   *roster.Service
	Workflow *workflow.Service
	Ledger   *ledger.Service
	Health   *health.Checker
	Server   *api.Server

	closeLog func() error
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	policy, err := cfg.Ledger.ResolvePolicy()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Ledger.Location()
	if err != nil {
		return nil, err
	}

	opts := logging.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if cfg.Logging.Quiet {
		opts.Console = io.Discard
	}
	log, closeLog, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	dir := cfg.Store.Dir
	if dir == "" {
		dir = yvpHome()
	}
	db, err := sqlite.Open(dir)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{
		Config:   cfg,
		Policy:   policy,
		Location: loc,
		Log:      log,
		DB:       db,
		closeLog: closeLog,
	}

	d.Roster = roster.NewService(db, log)
	if err := d.Roster.Seed(cfg.Roster.Admins); err != nil {
		d.Close()
		return nil, err
	}
	d.Workflow = workflow.NewService(db, policy, log, loc)
	d.Ledger = ledger.NewService(db, policy, log, loc)
	d.Health = health.NewChecker(db, dir, parseDuration(cfg.Health.Interval, health.DefaultInterval), log)

	d.Server = api.NewServer(d.Workflow, d.Ledger, d.Roster, loc, log)
	d.Server.SetHealth(d.Health)
	d.Server.SetCORSOrigins(cfg.API.CORSOrigins)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	log.Debug("daemon initialized",
		zap.String("store", dir),
		zap.String("policy", policy.Version),
		zap.String("timezone", loc.String()),
	)
	return d, nil
}

// Serve starts the HTTP server and the health loop and blocks until ctx
// is cancelled or a termination signal arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d.Health.Run(ctx)
		return nil
	})

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	fmt.Fprintf(os.Stderr, "YVP serving on http://%s (policy %s)\n", addr, d.Policy.Version)
	if d.Config.Telemetry.Prometheus {
		fmt.Fprintf(os.Stderr, "  Metrics: http://%s/metrics\n", addr)
	}
	d.Log.Info("serving", zap.String("addr", addr), zap.String("policy", d.Policy.Version))

	err := g.Wait()
	d.Log.Info("server stopped", zap.Error(err))
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.closeLog != nil {
		_ = d.closeLog()
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
