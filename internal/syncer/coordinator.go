// Package syncer decides whether a finished session goes straight to the
// record store or into the pending queue, and drains the queue when the
// network comes back.
//
// All drains run on one loop goroutine. That goroutine is also the only
// writer of the online flag; everything else reads it atomically.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/balkashynov/crewclock/internal/aggregate"
	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/netmon"
	"github.com/balkashynov/crewclock/internal/queue"
)

var (
	// ErrOffline is returned by SyncNow when there is no network
	ErrOffline = errors.New("network is offline")
	// ErrNotRunning is returned when the coordinator loop is not running
	ErrNotRunning = errors.New("sync coordinator is not running")
)

// Remote is the part of the record store client the coordinator uses
type Remote interface {
	UploadSession(ctx context.Context, groupID, userName string, session models.SessionRecord) error
	FetchGroupMembers(ctx context.Context, groupID string) ([]string, error)
	FetchUserSummaries(ctx context.Context, groupID, userName string, days int) ([]aggregate.TaskSummary, int, error)
	FetchAllGroupData(ctx context.Context, groupID string) (map[string][]models.SessionRecord, error)
	DeleteUserData(ctx context.Context, groupID, userName string) error
	ResetAllRemoteData(ctx context.Context) error
}

// Config tunes the coordinator
type Config struct {
	DrainInterval time.Duration // periodic drain while online
	StartTimeout  time.Duration // how long Start waits for the first network state
	UploadTimeout time.Duration // per queued upload during a drain
	RestartDelay  time.Duration // wait before restarting a network monitor that stopped

	// SkipStartupDrain leaves the queue alone when starting online. Set it
	// when the caller drains explicitly with SyncNow right after Start.
	SkipStartupDrain bool
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		DrainInterval: 5 * time.Minute,
		StartTimeout:  2 * time.Second,
		UploadTimeout: 30 * time.Second,
		RestartDelay:  5 * time.Second,
	}
}

// Outcome says what UploadSession did with a session
type Outcome string

const (
	Uploaded Outcome = "uploaded"
	Queued   Outcome = "queued"
)

// DrainResult summarises one pass over the queue
type DrainResult struct {
	Attempted int
	Uploaded  int
	Remaining int
}

// Status is a point-in-time view for the UI
type Status struct {
	Online        bool
	Pending       int
	Drains        int
	LastDrain     time.Time
	LastDrainErr  error
	LastUploaded  int
	LastRemaining int
}

// Coordinator owns the online flag and every queue drain
type Coordinator struct {
	remote  Remote
	queue   *queue.Queue
	monitor *netmon.Monitor
	cfg     Config
	logger  *slog.Logger

	online  atomic.Bool
	running atomic.Bool
	syncReq chan chan drainReply
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	status Status
}

type drainReply struct {
	result DrainResult
	err    error
}

// New wires a coordinator. The monitor is started and stopped by the
// coordinator.
func New(r Remote, q *queue.Queue, m *netmon.Monitor, cfg Config, logger *slog.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = def.DrainInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = def.StartTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = def.UploadTimeout
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		remote:  r,
		queue:   q,
		monitor: m,
		cfg:     cfg,
		logger:  logger.With("component", "syncer"),
		syncReq: make(chan chan drainReply),
		done:    make(chan struct{}),
	}
}

// Start starts the monitor, waits for its first state (at most
// StartTimeout, assuming offline after that) and launches the loop. The
// initial state counts as a transition: starting online with queued
// sessions drains them once, unless SkipStartupDrain is set.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.running.Load() {
		return fmt.Errorf("sync coordinator already running")
	}
	if err := c.monitor.Start(ctx); err != nil {
		return fmt.Errorf("start network monitor: %w", err)
	}

	events := c.monitor.Events()
	initial := false
	timer := time.NewTimer(c.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case ev, ok := <-events:
		if ok {
			initial = ev.Online
		}
	case <-timer.C:
		c.logger.Warn("no network state yet, assuming offline", "waited", c.cfg.StartTimeout)
	case <-ctx.Done():
		c.monitor.Stop()
		return ctx.Err()
	}
	c.online.Store(initial)
	c.logger.Info("sync coordinator started", "online", initial, "pending", c.queue.Len())

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running.Store(true)
	c.wg.Add(1)
	go c.loop(loopCtx, events, initial && !c.cfg.SkipStartupDrain)
	return nil
}

// Stop ends the loop and the monitor. An upload already in flight runs to
// completion first.
func (c *Coordinator) Stop() {
	if !c.running.Swap(false) {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.monitor.Stop()
	c.logger.Info("sync coordinator stopped", "pending", c.queue.Len())
}

func (c *Coordinator) loop(ctx context.Context, events <-chan netmon.Transition, drainFirst bool) {
	defer c.wg.Done()
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.DrainInterval)
	defer ticker.Stop()

	if drainFirst {
		c.drain(ctx, "startup")
	}

	// Armed while the monitor is down
	var restart <-chan time.Time
	delay := c.cfg.RestartDelay

	for {
		select {
		case <-ctx.Done():
			return

		case <-restart:
			restart = nil
			c.monitor.Stop()
			if err := c.monitor.Start(ctx); err != nil {
				delay = min(delay*2, time.Minute)
				c.logger.Error("network monitor restart failed", "error", err, "retry_in", delay)
				restart = time.After(delay)
				continue
			}
			c.logger.Info("network monitor restarted")
			events = c.monitor.Events()
			delay = c.cfg.RestartDelay

		case ev, ok := <-events:
			if !ok {
				events = nil
				if ctx.Err() == nil {
					c.logger.Warn("network monitor stopped, restarting", "in", delay)
					restart = time.After(delay)
				}
				continue
			}
			was := c.online.Swap(ev.Online)
			if was == ev.Online {
				continue
			}
			c.logger.Info("network changed", "online", ev.Online)
			if ev.Online {
				c.drain(ctx, "reconnect")
			}

		case <-ticker.C:
			c.drain(ctx, "periodic")

		case reply := <-c.syncReq:
			res, err := c.drain(ctx, "manual")
			reply <- drainReply{result: res, err: err}
		}
	}
}

// drain uploads queued sessions one at a time and removes the ones that
// made it. Failed items stay for the next drain.
func (c *Coordinator) drain(ctx context.Context, reason string) (DrainResult, error) {
	if !c.online.Load() {
		return DrainResult{Remaining: c.queue.Len()}, ErrOffline
	}
	items := c.queue.Snapshot()
	if len(items) == 0 {
		c.recordDrain(DrainResult{}, nil)
		return DrainResult{}, nil
	}

	c.logger.Info("draining pending uploads", "reason", reason, "count", len(items))
	var succeeded []string
	var errs []error
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := c.uploadDetached(ctx, item); err != nil {
			c.logger.Warn("queued upload failed, keeping it",
				"id", item.ID, "session", item.SessionData.ID, "err", err)
			errs = append(errs, fmt.Errorf("pending %s: %w", item.ID, err))
			continue
		}
		succeeded = append(succeeded, item.ID)
	}
	c.queue.RemoveSucceeded(succeeded)

	res := DrainResult{Attempted: len(succeeded) + len(errs), Uploaded: len(succeeded), Remaining: c.queue.Len()}
	err := errors.Join(errs...)
	c.recordDrain(res, err)
	c.logger.Info("drain finished", "reason", reason, "uploaded", res.Uploaded, "remaining", res.Remaining)
	return res, err
}

// uploadDetached runs one upload on a context that outlives loop
// cancellation so Stop never cuts an upload in half
func (c *Coordinator) uploadDetached(ctx context.Context, item models.PendingUpload) error {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.UploadTimeout)
	defer cancel()
	return c.remote.UploadSession(uctx, item.GroupID, item.UserName, item.SessionData)
}

func (c *Coordinator) recordDrain(res DrainResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Drains++
	c.status.LastDrain = time.Now()
	c.status.LastDrainErr = err
	c.status.LastUploaded = res.Uploaded
	c.status.LastRemaining = res.Remaining
}

// SyncNow asks the loop to drain immediately and waits for the result
func (c *Coordinator) SyncNow(ctx context.Context) (DrainResult, error) {
	if !c.running.Load() {
		return DrainResult{}, ErrNotRunning
	}
	reply := make(chan drainReply, 1)
	select {
	case c.syncReq <- reply:
	case <-c.done:
		return DrainResult{}, ErrNotRunning
	case <-ctx.Done():
		return DrainResult{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.result, r.err
	case <-ctx.Done():
		return DrainResult{}, ctx.Err()
	}
}

// UploadSession sends a finished session while online and queues it while
// offline. An online failure is returned to the caller and not queued.
func (c *Coordinator) UploadSession(ctx context.Context, groupID, userName string, session models.SessionRecord) (Outcome, error) {
	session.AssignIDs()
	if c.online.Load() {
		if err := c.remote.UploadSession(ctx, groupID, userName, session); err != nil {
			return "", err
		}
		return Uploaded, nil
	}
	item := c.queue.Enqueue(groupID, userName, session)
	c.logger.Info("offline, session queued", "id", item.ID, "session", session.ID)
	return Queued, nil
}

func (c *Coordinator) FetchGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return c.remote.FetchGroupMembers(ctx, groupID)
}

func (c *Coordinator) FetchUserSummaries(ctx context.Context, groupID, userName string, days int) ([]aggregate.TaskSummary, int, error) {
	return c.remote.FetchUserSummaries(ctx, groupID, userName, days)
}

func (c *Coordinator) FetchAllGroupData(ctx context.Context, groupID string) (map[string][]models.SessionRecord, error) {
	return c.remote.FetchAllGroupData(ctx, groupID)
}

func (c *Coordinator) DeleteUserData(ctx context.Context, groupID, userName string) error {
	return c.remote.DeleteUserData(ctx, groupID, userName)
}

// ResetAllRemoteData wipes the remote zone and then the pending queue
func (c *Coordinator) ResetAllRemoteData(ctx context.Context) error {
	if err := c.remote.ResetAllRemoteData(ctx); err != nil {
		return err
	}
	c.queue.Clear()
	return nil
}

// PendingUploadCount returns the number of queued sessions
func (c *Coordinator) PendingUploadCount() int {
	return c.queue.Len()
}

// IsOnline reports the last known network state
func (c *Coordinator) IsOnline() bool {
	return c.online.Load()
}

// NetworkStatus returns "Online" or "Offline"
func (c *Coordinator) NetworkStatus() string {
	if c.online.Load() {
		return "Online"
	}
	return "Offline"
}

// Status returns a snapshot for display
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	s := c.status
	c.mu.Unlock()
	s.Online = c.online.Load()
	s.Pending = c.queue.Len()
	return s
}
