package commands

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/config"
	"github.com/balkashynov/crewclock/internal/db"
	"github.com/balkashynov/crewclock/internal/logging"
	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/netmon"
	"github.com/balkashynov/crewclock/internal/queue"
	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/remote/httpstore"
	"github.com/balkashynov/crewclock/internal/remote/sqlstore"
	"github.com/balkashynov/crewclock/internal/syncer"
)

// app holds everything a command may need. Pieces are opened lazily so a
// purely local command never touches the remote store.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	logCloser io.Closer
	store     *db.Store

	backendCloser io.Closer
	client        *remote.Client

	queue *queue.Queue
	coord *syncer.Coordinator
}

// loadApp reads config, sets up logging and opens the local database
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if !verbose && !longRunning(cmd) {
		// One-shot commands only surface warnings
		level = "warn"
	}
	closer, err := logging.Setup(logging.Options{Level: level, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		closer.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, logCloser: closer, store: store}, nil
}

func longRunning(cmd *cobra.Command) bool {
	return cmd.Annotations["longRunning"] == "true"
}

// remoteClient opens the configured backend on first use
func (a *app) remoteClient() (*remote.Client, error) {
	if a.client != nil {
		return a.client, nil
	}

	var backend remote.Backend
	if a.cfg.RemoteIsHTTP() {
		backend = httpstore.New(a.cfg.Remote, a.cfg.RequestTimeout.Duration)
	} else {
		s, err := sqlstore.Open(a.cfg.Remote)
		if err != nil {
			return nil, err
		}
		backend = s
		a.backendCloser = s
	}

	a.client = remote.NewClient(backend, remote.Options{
		Zone:       a.cfg.Zone,
		LinkScheme: a.cfg.LinkScheme,
		Logger:     a.logger,
	})
	return a.client, nil
}

// startSync loads the pending queue and starts the coordinator. With
// startupDrain false the queue is left for the caller to drain.
func (a *app) startSync(ctx context.Context, startupDrain bool) (*syncer.Coordinator, error) {
	if a.coord != nil {
		return a.coord, nil
	}
	client, err := a.remoteClient()
	if err != nil {
		return nil, err
	}

	a.queue = queue.New(a.cfg.QueueFile, a.logger)
	a.queue.Load()

	monitor := netmon.New(netmon.DefaultSource(a.cfg.ProbeInterval.Duration, a.logger), a.logger)
	coord := syncer.New(client, a.queue, monitor, syncer.Config{
		DrainInterval:    a.cfg.DrainInterval.Duration,
		StartTimeout:     a.cfg.StartTimeout.Duration,
		UploadTimeout:    a.cfg.RequestTimeout.Duration,
		SkipStartupDrain: !startupDrain,
	}, a.logger)
	if err := coord.Start(ctx); err != nil {
		return nil, err
	}
	a.coord = coord
	return coord, nil
}

// membership returns the local group membership
func (a *app) membership() (*models.Membership, error) {
	return a.store.CurrentMembership()
}

// requestContext bounds a single remote call made by a one-shot command
func (a *app) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, a.cfg.RequestTimeout.Duration+5*time.Second)
}

// Close releases everything in reverse order of opening
func (a *app) Close() {
	if a.coord != nil {
		a.coord.Stop()
	}
	if a.backendCloser != nil {
		if err := a.backendCloser.Close(); err != nil {
			a.logger.Warn("failed to close remote store", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
	a.logCloser.Close()
}

// withApp wraps a command function with app setup and teardown
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}
