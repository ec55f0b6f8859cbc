package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/remote/httpstore"
	"github.com/balkashynov/crewclock/internal/remote/memstore"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*httpstore.Store, *memstore.Store) {
	t.Helper()
	backend := memstore.New()
	ts := httptest.NewServer(New(backend, "127.0.0.1:0", quiet()).Handler())
	t.Cleanup(ts.Close)
	return httpstore.New(ts.URL, 5*time.Second), backend
}

func TestHealth(t *testing.T) {
	store, _ := newTestServer(t)
	assert.NoError(t, store.Health(context.Background()))
}

func TestClientPingUsesHealthEndpoint(t *testing.T) {
	ts := httptest.NewServer(New(memstore.New(), "127.0.0.1:0", quiet()).Handler())
	client := remote.NewClient(httpstore.New(ts.URL, time.Second), remote.Options{Logger: quiet()})

	// No zone exists yet; the service still counts as reachable
	assert.NoError(t, client.Ping(context.Background()))

	ts.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestZoneErrorsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestServer(t)

	assert.ErrorIs(t, store.FetchZone(ctx, "groups"), remote.ErrNamespaceMissing)
	_, err := store.Query(ctx, "groups", remote.Query{Type: "Thing"})
	assert.ErrorIs(t, err, remote.ErrNamespaceMissing)

	require.NoError(t, store.CreateZone(ctx, "groups"))
	assert.NoError(t, store.FetchZone(ctx, "groups"))

	_, err = store.Lookup(ctx, "groups", []string{"missing"})
	assert.ErrorIs(t, err, remote.ErrRecordNotFound)

	_, err = store.Query(ctx, "groups", remote.Query{})
	assert.ErrorIs(t, err, remote.ErrEncoding)

	recs, err := store.Query(ctx, "groups", remote.Query{Type: "Thing"})
	require.NoError(t, err)
	assert.Empty(t, recs)

	require.NoError(t, store.DeleteZone(ctx, "groups"))
	assert.ErrorIs(t, store.DeleteZone(ctx, "groups"), remote.ErrNamespaceMissing)
}

func TestModifyConflictAndPartial(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestServer(t)
	require.NoError(t, store.CreateZone(ctx, "z"))

	res, err := store.Modify(ctx, "z", remote.ModifyRequest{
		Save: []remote.Record{remote.NewRecord("Thing", "taken").Set("n", remote.Int(1))},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)
	assert.NotEmpty(t, res.Saved[0].ChangeTag)

	_, err = store.Modify(ctx, "z", remote.ModifyRequest{
		Save:   []remote.Record{remote.NewRecord("Thing", "taken")},
		Policy: remote.SaveIfUnchanged,
		Atomic: true,
	})
	require.ErrorIs(t, err, remote.ErrConflict)
	var recErr *remote.RecordError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "taken", recErr.ID)

	res, err = store.Modify(ctx, "z", remote.ModifyRequest{
		Save:   []remote.Record{remote.NewRecord("Thing", "fresh"), remote.NewRecord("Thing", "taken")},
		Policy: remote.SaveIfUnchanged,
	})
	require.ErrorIs(t, err, remote.ErrPartialBatch)
	assert.ErrorIs(t, err, remote.ErrConflict)
	var pe *remote.PartialBatchError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []string{"fresh"}, pe.Saved)
	assert.Equal(t, []string{"taken"}, pe.FailedIDs())
	assert.Len(t, res.Saved, 1)
	assert.Equal(t, 2, backend.Len("z"))
}

func TestClientOverHTTP(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestServer(t)
	c := remote.NewClient(store, remote.Options{Logger: quiet()})

	_, groupID, err := c.CreateGroup(ctx, "ana", "crew")
	require.NoError(t, err)

	s := models.SessionRecord{
		EndTime:        time.Now().UTC(),
		CompletedCount: 1,
		Tasks: []models.TaskUsageSummary{{
			TaskName:     "Writing",
			IsCompleted:  true,
			StartTime:    time.Now().Add(-time.Hour).UTC(),
			EndTime:      time.Now().UTC(),
			TotalSeconds: 3600,
			Apps:         []models.AppUsage{{Name: "Pages", Seconds: 3600}},
		}},
	}
	s.AssignIDs()
	require.NoError(t, c.UploadSession(ctx, groupID, "ana", s))
	assert.ErrorIs(t, c.UploadSession(ctx, groupID, "ana", s), remote.ErrConflict)

	summaries, completed, err := c.FetchUserSummaries(ctx, groupID, "ana", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 3600, summaries[0].TotalSeconds, 0.001)

	_, _, err = c.FetchUserSummaries(ctx, groupID, "ben", 1)
	assert.ErrorIs(t, err, remote.ErrMemberNotFound)
}

func TestUnreachableServerIsNetworkUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	store := httpstore.New(url, time.Second)
	err := store.FetchZone(context.Background(), "groups")
	assert.ErrorIs(t, err, remote.ErrNetworkUnavailable)
}

func TestStartReturnsListenError(t *testing.T) {
	s := New(memstore.New(), "127.0.0.1:0", quiet())
	s.listen = func(network, address string) (net.Listener, error) {
		return nil, errors.New("listen failed")
	}
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen failed")
}

func TestStartStopsOnCancel(t *testing.T) {
	s := New(memstore.New(), "127.0.0.1:0", quiet())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
