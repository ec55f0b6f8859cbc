package remote_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/remote/memstore"
)

// flakyBackend wraps a backend and fails chosen modify calls
type flakyBackend struct {
	remote.Backend

	mu          sync.Mutex
	modifyCalls int
	createCalls int
	failOn      map[int]error
	fetchErr    error
	queryLimits []int
}

func (f *flakyBackend) Modify(ctx context.Context, zone string, req remote.ModifyRequest) (remote.ModifyResult, error) {
	f.mu.Lock()
	f.modifyCalls++
	err := f.failOn[f.modifyCalls]
	f.mu.Unlock()
	if err != nil {
		return remote.ModifyResult{}, err
	}
	return f.Backend.Modify(ctx, zone, req)
}

func (f *flakyBackend) Query(ctx context.Context, zone string, q remote.Query) ([]remote.Record, error) {
	f.mu.Lock()
	f.queryLimits = append(f.queryLimits, q.Limit)
	f.mu.Unlock()
	return f.Backend.Query(ctx, zone, q)
}

func (f *flakyBackend) CreateZone(ctx context.Context, zone string) error {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	return f.Backend.CreateZone(ctx, zone)
}

func (f *flakyBackend) FetchZone(ctx context.Context, zone string) error {
	if f.fetchErr != nil {
		return f.fetchErr
	}
	return f.Backend.FetchZone(ctx, zone)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T) (*remote.Client, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return remote.NewClient(store, remote.Options{Zone: "groups", Logger: quietLogger()}), store
}

func things(n int) []remote.Record {
	out := make([]remote.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, remote.NewRecord("Thing", fmt.Sprintf("thing-%04d", i)).Set("n", remote.Int(int64(i))))
	}
	return out
}

func sampleSession(end time.Time, tasks ...models.TaskUsageSummary) models.SessionRecord {
	s := models.SessionRecord{EndTime: end, Tasks: tasks}
	for _, task := range tasks {
		if task.IsCompleted {
			s.CompletedCount++
		}
	}
	s.AssignIDs()
	return s
}

func task(name string, secs float64, completed bool, apps map[string]float64) models.TaskUsageSummary {
	start := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	t := models.TaskUsageSummary{
		ReminderID:   "rem-" + name,
		TaskName:     name,
		IsCompleted:  completed,
		StartTime:    start,
		EndTime:      start.Add(time.Duration(secs) * time.Second),
		TotalSeconds: secs,
	}
	for app, s := range apps {
		t.Apps = append(t.Apps, models.AppUsage{Name: app, Seconds: s})
	}
	return t
}

func TestEnsureNamespace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fb := &flakyBackend{Backend: store}
	c := remote.NewClient(fb, remote.Options{Logger: quietLogger()})

	require.NoError(t, c.EnsureNamespace(ctx))
	require.NoError(t, c.EnsureNamespace(ctx))
	assert.Equal(t, 1, fb.createCalls)

	fb.fetchErr = remote.ErrNetworkUnavailable
	err := c.EnsureNamespace(ctx)
	assert.ErrorIs(t, err, remote.ErrNetworkUnavailable)
	assert.Equal(t, 1, fb.createCalls)
}

func TestUpsertMemberIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)

	first, err := c.UpsertMember(ctx, "g1", "ana")
	require.NoError(t, err)
	second, err := c.UpsertMember(ctx, "g1", "ana")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := c.UpsertMember(ctx, "g2", "ana")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	names, err := c.FetchGroupMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ana"}, names)
}

func TestUploadRecordsSendsBatchesOf400(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.CreateZone(ctx, "groups"))
	fb := &flakyBackend{Backend: store}
	c := remote.NewClient(fb, remote.Options{Logger: quietLogger()})

	require.NoError(t, c.UploadRecords(ctx, things(801)))
	assert.Equal(t, 3, fb.modifyCalls)
	assert.Equal(t, 801, store.Len("groups"))

	require.NoError(t, c.UploadRecords(ctx, nil))
	assert.Equal(t, 3, fb.modifyCalls)
}

func TestUploadRecordsStopsAtFirstFailedBatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.CreateZone(ctx, "groups"))
	fb := &flakyBackend{Backend: store, failOn: map[int]error{2: remote.ErrNetworkUnavailable}}
	c := remote.NewClient(fb, remote.Options{Logger: quietLogger()})

	err := c.UploadRecords(ctx, things(1000))
	require.ErrorIs(t, err, remote.ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "batch 2/3")

	// batch 1 stays committed, batch 3 is never attempted
	assert.Equal(t, 2, fb.modifyCalls)
	assert.Equal(t, remote.BatchSize, store.Len("groups"))
	_, err = store.Lookup(ctx, "groups", []string{"thing-0399"})
	assert.NoError(t, err)
	_, err = store.Lookup(ctx, "groups", []string{"thing-0400"})
	assert.ErrorIs(t, err, remote.ErrRecordNotFound)
}

func TestWritesRecreateMissingNamespaceOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fb := &flakyBackend{Backend: store}
	c := remote.NewClient(fb, remote.Options{Logger: quietLogger()})

	require.NoError(t, c.UploadRecords(ctx, things(3)))
	assert.Equal(t, 2, fb.modifyCalls)
	assert.Equal(t, 1, fb.createCalls)
	assert.Equal(t, 3, store.Len("groups"))

	// a zone that keeps disappearing is only retried once
	fb.modifyCalls = 0
	fb.failOn = map[int]error{1: remote.ErrNamespaceMissing, 2: remote.ErrNamespaceMissing}
	err := c.UploadRecords(ctx, things(1))
	assert.ErrorIs(t, err, remote.ErrNamespaceMissing)
	assert.Equal(t, 2, fb.modifyCalls)
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	c, store := newClient(t)

	link, groupID, err := c.CreateGroup(ctx, "ana", "Design crew")
	require.NoError(t, err)
	assert.Equal(t, "crewclock://join?group="+groupID, link)
	assert.Equal(t, 2, store.Len("groups"))

	parsed, err := remote.ParseShareLink(link)
	require.NoError(t, err)
	assert.Equal(t, groupID, parsed)

	g, err := c.FetchGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, "Design crew", g.Name)
	assert.Equal(t, "ana", g.OwnerName)

	_, _, err = c.CreateGroup(ctx, "", "x")
	assert.ErrorIs(t, err, remote.ErrEncoding)
}

func TestParseShareLink(t *testing.T) {
	id, err := remote.ParseShareLink("  abc-123 ")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)

	_, err = remote.ParseShareLink("crewclock://open?group=x")
	assert.ErrorIs(t, err, remote.ErrEncoding)
	_, err = remote.ParseShareLink("crewclock://join")
	assert.ErrorIs(t, err, remote.ErrEncoding)
	_, err = remote.ParseShareLink("")
	assert.ErrorIs(t, err, remote.ErrEncoding)
}

func TestUploadAndFetchSessions(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	now := time.Now().UTC().Truncate(time.Second)

	first := sampleSession(now.Add(-time.Hour),
		task("Writing", 1200, false, map[string]float64{"Pages": 1000, "Safari": 200}))
	second := sampleSession(now,
		task("Writing", 600, true, map[string]float64{"Pages": 600}),
		task("Email", 300, true, nil))
	require.NoError(t, c.UploadSession(ctx, "g1", "ana", first))
	require.NoError(t, c.UploadSession(ctx, "g1", "ana", second))
	require.NoError(t, c.UploadSession(ctx, "g1", "ben", sampleSession(now, task("Review", 60, false, nil))))

	summaries, completed, err := c.FetchUserSummaries(ctx, "g1", "ana", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, completed)
	require.Len(t, summaries, 2)
	writing := summaries[0]
	assert.Equal(t, "Writing", writing.TaskName)
	assert.InDelta(t, 1800, writing.TotalSeconds, 0.001)
	assert.True(t, writing.IsCompleted)
	assert.InDelta(t, 1600, writing.Apps["Pages"], 0.001)
	assert.InDelta(t, 200, writing.Apps["Safari"], 0.001)

	all, err := c.FetchAllGroupData(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, all["ana"], 2)
	require.Len(t, all["ben"], 1)
	assert.Equal(t, second.ID, all["ana"][0].ID)
	assert.Len(t, all["ana"][0].Tasks, 2)

	names, err := c.FetchGroupMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ana", "ben"}, names)

	_, _, err = c.FetchUserSummaries(ctx, "g1", "nobody", 7)
	assert.ErrorIs(t, err, remote.ErrMemberNotFound)
}

func TestUploadingTheSameSessionTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	s := sampleSession(time.Now(), task("Writing", 60, false, nil))

	require.NoError(t, c.UploadSession(ctx, "g1", "ana", s))
	err := c.UploadSession(ctx, "g1", "ana", s)
	assert.ErrorIs(t, err, remote.ErrConflict)
}

func TestDeleteUserDataCascades(t *testing.T) {
	ctx := context.Background()
	c, store := newClient(t)
	now := time.Now()

	require.NoError(t, c.UploadSession(ctx, "g1", "ana", sampleSession(now,
		task("Writing", 60, false, map[string]float64{"Pages": 60}))))
	require.NoError(t, c.UploadSession(ctx, "g1", "ben", sampleSession(now, task("Review", 60, false, nil))))
	before := store.Len("groups")

	require.NoError(t, c.DeleteUserData(ctx, "g1", "ana"))
	// member, session, task and app of ana are gone
	assert.Equal(t, before-4, store.Len("groups"))

	names, err := c.FetchGroupMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ben"}, names)

	assert.ErrorIs(t, c.DeleteUserData(ctx, "g1", "ana"), remote.ErrMemberNotFound)
}

func TestResetAllRemoteData(t *testing.T) {
	ctx := context.Background()
	c, store := newClient(t)
	require.NoError(t, c.UploadSession(ctx, "g1", "ana", sampleSession(time.Now(), task("Writing", 60, false, nil))))

	require.NoError(t, c.ResetAllRemoteData(ctx))
	assert.Equal(t, 0, store.Len("groups"))
	assert.NoError(t, store.FetchZone(ctx, "groups"))

	// resetting a zone that was never created also works
	fresh, _ := newClient(t)
	assert.NoError(t, fresh.ResetAllRemoteData(ctx))
}

func TestUpdateTaskSummary(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t)
	s := sampleSession(time.Now(), task("Writing", 60, false, nil))
	require.NoError(t, c.UploadSession(ctx, "g1", "ana", s))

	done := true
	title := "Writing chapter 2"
	require.NoError(t, c.UpdateTaskSummary(ctx, s.Tasks[0].ID, &done, &title))

	recs, err := c.Lookup(ctx, []string{s.Tasks[0].ID})
	require.NoError(t, err)
	got, err := remote.DecodeTask(recs[0])
	require.NoError(t, err)
	assert.True(t, got.IsCompleted)
	assert.Equal(t, title, got.TaskName)

	err = c.UpdateTaskSummary(ctx, "missing", &done, nil)
	assert.ErrorIs(t, err, remote.ErrRecordNotFound)
	err = c.UpdateTaskSummary(ctx, s.ID, &done, nil)
	assert.ErrorIs(t, err, remote.ErrEncoding)
}

func TestPing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fb := &flakyBackend{Backend: store}
	c := remote.NewClient(fb, remote.Options{Logger: quietLogger()})

	assert.NoError(t, c.Ping(ctx))
	fb.fetchErr = fmt.Errorf("dial: %w", remote.ErrNetworkUnavailable)
	assert.True(t, errors.Is(c.Ping(ctx), remote.ErrNetworkUnavailable))
}

func TestQueryIsCappedAtOnePage(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed := remote.NewClient(store, remote.Options{Zone: "groups", Logger: quietLogger()})
	require.NoError(t, seed.UploadRecords(ctx, things(remote.QueryLimit+1)))

	var logs bytes.Buffer
	fb := &flakyBackend{Backend: store}
	c := remote.NewClient(fb, remote.Options{Zone: "groups", Logger: slog.New(slog.NewTextHandler(&logs, nil))})

	recs, err := c.Query(ctx, remote.Query{Type: "Thing", Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, recs, remote.QueryLimit)
	assert.Equal(t, []int{remote.QueryLimit}, fb.queryLimits)
	assert.Contains(t, logs.String(), "results may be truncated")

	logs.Reset()
	recs, err = c.Query(ctx, remote.Query{Type: "Thing", Filters: []remote.Filter{remote.Equal("n", remote.Int(7))}})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.NotContains(t, logs.String(), "truncated")
}

func TestDeleteRecordsInBatchesIsNotAtomicAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed := remote.NewClient(store, remote.Options{Zone: "groups", Logger: quietLogger()})
	recs := things(1000)
	require.NoError(t, seed.UploadRecords(ctx, recs))

	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}

	fb := &flakyBackend{Backend: store, failOn: map[int]error{2: remote.ErrNetworkUnavailable}}
	c := remote.NewClient(fb, remote.Options{Zone: "groups", Logger: quietLogger()})

	err := c.DeleteRecordsInBatches(ctx, ids)
	require.ErrorIs(t, err, remote.ErrNetworkUnavailable)
	assert.Contains(t, err.Error(), "batch 2/3")

	// batch 1 stays deleted; batches 2 and 3 are untouched
	assert.Equal(t, 2, fb.modifyCalls)
	assert.Equal(t, 1000-remote.BatchSize, store.Len("groups"))
	_, err = store.Lookup(ctx, "groups", []string{"thing-0399"})
	assert.ErrorIs(t, err, remote.ErrRecordNotFound)
	_, err = store.Lookup(ctx, "groups", []string{"thing-0400"})
	assert.NoError(t, err)
}
