package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/netmon"
	"github.com/balkashynov/crewclock/internal/queue"
	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/remote/memstore"
)

// chanSource hands the test's channel to the monitor
type chanSource struct {
	ch chan bool
}

func (s chanSource) Updates(ctx context.Context) (<-chan bool, error) {
	out := make(chan bool)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-s.ch:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// silentSource never reports a state
type silentSource struct{}

func (silentSource) Updates(ctx context.Context) (<-chan bool, error) {
	out := make(chan bool)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// countingRemote records uploads and can fail chosen sessions
type countingRemote struct {
	*remote.Client

	mu      sync.Mutex
	uploads int
	failFor map[string]error
}

func (r *countingRemote) UploadSession(ctx context.Context, groupID, userName string, s models.SessionRecord) error {
	r.mu.Lock()
	r.uploads++
	err := r.failFor[s.ID]
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Client.UploadSession(ctx, groupID, userName, s)
}

func (r *countingRemote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	remote  *countingRemote
	backend *memstore.Store
	queue   *queue.Queue
	source  chanSource
	coord   *Coordinator
}

func newHarness(t *testing.T, queuePath string, backend *memstore.Store, cfg Config) *harness {
	t.Helper()
	if backend == nil {
		backend = memstore.New()
	}
	q := queue.New(queuePath, quiet())
	q.Load()
	src := chanSource{ch: make(chan bool)}
	r := &countingRemote{Client: remote.NewClient(backend, remote.Options{Logger: quiet()}), failFor: map[string]error{}}
	if cfg.DrainInterval == 0 {
		cfg.DrainInterval = time.Hour
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = time.Second
	}
	c := New(r, q, netmon.New(src, quiet()), cfg, quiet())
	return &harness{remote: r, backend: backend, queue: q, source: src, coord: c}
}

// start starts the coordinator and feeds it the initial network state
func (h *harness) start(t *testing.T, online bool) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- h.coord.Start(context.Background()) }()
	h.source.ch <- online
	require.NoError(t, <-errc)
	t.Cleanup(h.coord.Stop)
}

func session(name string, secs float64) models.SessionRecord {
	end := time.Now().UTC()
	return models.SessionRecord{
		EndTime:        end,
		CompletedCount: 1,
		Tasks: []models.TaskUsageSummary{{
			TaskName:     name,
			IsCompleted:  true,
			StartTime:    end.Add(-time.Duration(secs) * time.Second),
			EndTime:      end,
			TotalSeconds: secs,
			Apps:         []models.AppUsage{{Name: "Pages", Seconds: secs}},
		}},
	}
}

func TestUploadWhileOnlineGoesDirect(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	h.start(t, true)

	outcome, err := h.coord.UploadSession(context.Background(), "g1", "ana", session("Writing", 60))
	require.NoError(t, err)
	assert.Equal(t, Uploaded, outcome)
	assert.Equal(t, 0, h.coord.PendingUploadCount())
	assert.Equal(t, "Online", h.coord.NetworkStatus())
}

func TestOnlineUploadFailureIsNotQueued(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	h.start(t, true)

	s := session("Writing", 60)
	s.AssignIDs()
	h.remote.failFor[s.ID] = remote.ErrNetworkUnavailable

	_, err := h.coord.UploadSession(context.Background(), "g1", "ana", s)
	assert.ErrorIs(t, err, remote.ErrNetworkUnavailable)
	assert.Equal(t, 0, h.coord.PendingUploadCount())
}

func TestOneDrainPerReconnect(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	h.start(t, false)
	ctx := context.Background()

	for _, name := range []string{"Writing", "Email"} {
		outcome, err := h.coord.UploadSession(ctx, "g1", "ana", session(name, 60))
		require.NoError(t, err)
		assert.Equal(t, Queued, outcome)
	}
	assert.Equal(t, 2, h.coord.PendingUploadCount())
	assert.Equal(t, 0, h.remote.count())

	// the path layer reports "online" three times for one reconnect
	h.source.ch <- true
	h.source.ch <- true
	h.source.ch <- true

	require.Eventually(t, func() bool { return h.coord.PendingUploadCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.coord.Status().Drains)
	assert.Equal(t, 2, h.remote.count())
}

func TestOfflineRestartOnlineScenario(t *testing.T) {
	dir := t.TempDir()
	queuePath := filepath.Join(dir, "pending_uploads.json")
	backend := memstore.New()
	ctx := context.Background()

	// offline: the session lands in the queue file
	first := newHarness(t, queuePath, backend, Config{})
	first.start(t, false)
	s := session("Writing", 1200)
	outcome, err := first.coord.UploadSession(ctx, "g1", "ana", s)
	require.NoError(t, err)
	assert.Equal(t, Queued, outcome)
	first.coord.Stop()

	data, err := os.ReadFile(queuePath)
	require.NoError(t, err)
	var onDisk []models.PendingUpload
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk, 1)
	assert.Equal(t, "g1", onDisk[0].GroupID)
	assert.Equal(t, "ana", onDisk[0].UserName)

	// restart and come up online: the startup drain empties the queue
	second := newHarness(t, queuePath, backend, Config{})
	assert.Equal(t, 1, second.coord.PendingUploadCount())
	second.start(t, true)
	require.Eventually(t, func() bool { return second.coord.PendingUploadCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	all, err := second.remote.FetchAllGroupData(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, all["ana"], 1)
	got := all["ana"][0]
	assert.Equal(t, onDisk[0].SessionData.ID, got.ID)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "Writing", got.Tasks[0].TaskName)
	require.Len(t, got.Tasks[0].Apps, 1)
	assert.InDelta(t, 1200, got.Tasks[0].Apps[0].Seconds, 0.001)

	data, err = os.ReadFile(queuePath)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFailedDrainItemsStayQueued(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})

	bad := session("Broken", 10)
	bad.AssignIDs()
	good := session("Fine", 10)
	good.AssignIDs()
	h.remote.failFor[bad.ID] = remote.ErrConflict
	h.queue.Enqueue("g1", "ana", bad)
	h.queue.Enqueue("g1", "ana", good)

	// the startup drain uploads good and keeps bad
	h.start(t, true)

	// SyncNow is served after the startup drain on the same goroutine
	res, err := h.coord.SyncNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrConflict)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, 0, res.Uploaded)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 3, h.remote.count())

	left := h.queue.Snapshot()
	require.Len(t, left, 1)
	assert.Equal(t, bad.ID, left[0].SessionData.ID)

	st := h.coord.Status()
	assert.Error(t, st.LastDrainErr)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 2, st.Drains)
}

func TestSyncNowWhileOffline(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	h.start(t, false)
	h.queue.Enqueue("g1", "ana", session("Writing", 10))

	res, err := h.coord.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 0, h.remote.count())
}

func TestSyncNowRequiresRunningLoop(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	_, err := h.coord.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestPeriodicDrain(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{DrainInterval: 20 * time.Millisecond})
	h.start(t, true)

	h.queue.Enqueue("g1", "ana", session("Writing", 10))
	require.Eventually(t, func() bool { return h.coord.PendingUploadCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.remote.count())
}

func TestStartAssumesOfflineWithoutState(t *testing.T) {
	q := queue.New(filepath.Join(t.TempDir(), "q.json"), quiet())
	q.Load()
	r := &countingRemote{Client: remote.NewClient(memstore.New(), remote.Options{Logger: quiet()})}
	c := New(r, q, netmon.New(silentSource{}, quiet()), Config{StartTimeout: 20 * time.Millisecond}, quiet())

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.Equal(t, "Offline", c.NetworkStatus())

	outcome, err := c.UploadSession(context.Background(), "g1", "ana", session("Writing", 10))
	require.NoError(t, err)
	assert.Equal(t, Queued, outcome)
	assert.Equal(t, 0, r.count())
}

func TestResetClearsQueue(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	h.start(t, false)
	ctx := context.Background()

	_, err := h.coord.UploadSession(ctx, "g1", "ana", session("Writing", 10))
	require.NoError(t, err)
	require.Equal(t, 1, h.coord.PendingUploadCount())

	require.NoError(t, h.coord.ResetAllRemoteData(ctx))
	assert.Equal(t, 0, h.coord.PendingUploadCount())
	_, err = os.Stat(h.queue.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStopIsIdempotent(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{})
	h.start(t, true)
	h.coord.Stop()
	h.coord.Stop()
	_, err := h.coord.SyncNow(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSkipStartupDrainLeavesQueueForSyncNow(t *testing.T) {
	h := newHarness(t, filepath.Join(t.TempDir(), "q.json"), nil, Config{SkipStartupDrain: true})
	h.queue.Enqueue("g1", "ana", session("Writing", 10))
	h.queue.Enqueue("g1", "ana", session("Email", 10))

	h.start(t, true)
	assert.Equal(t, 2, h.coord.PendingUploadCount())
	assert.Equal(t, 0, h.remote.count())

	res, err := h.coord.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: 2, Uploaded: 2, Remaining: 0}, res)
	assert.Equal(t, 2, h.remote.count())
	assert.Equal(t, 1, h.coord.Status().Drains)
}

// restartingSource ends after its first report, like a netlink socket
// dying; later runs report online and stay up
type restartingSource struct {
	mu    sync.Mutex
	calls int
}

func (s *restartingSource) Updates(ctx context.Context) (<-chan bool, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	ch := make(chan bool, 1)
	if first {
		ch <- false
		close(ch)
		return ch, nil
	}
	ch <- true
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func TestMonitorIsRestartedWhenItStops(t *testing.T) {
	q := queue.New(filepath.Join(t.TempDir(), "q.json"), quiet())
	q.Load()
	r := &countingRemote{Client: remote.NewClient(memstore.New(), remote.Options{Logger: quiet()})}
	src := &restartingSource{}
	c := New(r, q, netmon.New(src, quiet()), Config{DrainInterval: time.Hour, RestartDelay: 10 * time.Millisecond}, quiet())

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.Equal(t, "Offline", c.NetworkStatus())

	_, err := c.UploadSession(context.Background(), "g1", "ana", session("Writing", 10))
	require.NoError(t, err)

	// the restarted monitor reports online and the reconnect drains
	require.Eventually(t, func() bool { return c.PendingUploadCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Online", c.NetworkStatus())
	_, err = c.SyncNow(context.Background())
	assert.NoError(t, err)
}
