package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/remote"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remote.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestZones(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	assert.ErrorIs(t, s.FetchZone(ctx, "z"), remote.ErrNamespaceMissing)
	require.NoError(t, s.CreateZone(ctx, "z"))
	require.NoError(t, s.CreateZone(ctx, "z"))
	assert.NoError(t, s.FetchZone(ctx, "z"))

	_, err := s.Query(ctx, "nope", remote.Query{Type: "Thing"})
	assert.ErrorIs(t, err, remote.ErrNamespaceMissing)

	require.NoError(t, s.DeleteZone(ctx, "z"))
	assert.ErrorIs(t, s.DeleteZone(ctx, "z"), remote.ErrNamespaceMissing)
}

func TestRecordsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.CreateZone(ctx, "z"))

	end := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	rec := remote.NewRecord("Session", "s1").
		Set("memberRef", remote.Ref("m1")).
		Set("endTime", remote.Timestamp(end)).
		Set("completedCount", remote.Int(2)).
		Set("note", remote.String("hi")).
		Set("ok", remote.Bool(true)).
		Set("secs", remote.Double(12.5))
	res, err := s.Modify(ctx, "z", remote.ModifyRequest{Save: []remote.Record{rec}})
	require.NoError(t, err)
	tag := res.Saved[0].ChangeTag
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Lookup(ctx, "z", []string{"s1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tag, got[0].ChangeTag)
	ts, err := got[0].GetTime("endTime")
	require.NoError(t, err)
	assert.True(t, end.Equal(ts))
	n, err := got[0].GetInt("completedCount")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	parent, err := got[0].GetRef("memberRef")
	require.NoError(t, err)
	assert.Equal(t, "m1", parent)
}

func TestAtomicRejectionRollsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.NoError(t, s.CreateZone(ctx, "z"))

	_, err := s.Modify(ctx, "z", remote.ModifyRequest{Save: []remote.Record{remote.NewRecord("Thing", "taken")}})
	require.NoError(t, err)

	_, err = s.Modify(ctx, "z", remote.ModifyRequest{
		Save:   []remote.Record{remote.NewRecord("Thing", "a"), remote.NewRecord("Thing", "taken")},
		Policy: remote.SaveIfUnchanged,
		Atomic: true,
	})
	require.ErrorIs(t, err, remote.ErrConflict)

	_, err = s.Lookup(ctx, "z", []string{"a"})
	assert.ErrorIs(t, err, remote.ErrRecordNotFound)
}

func TestCascadeAndZoneDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	require.NoError(t, s.CreateZone(ctx, "z"))

	_, err := s.Modify(ctx, "z", remote.ModifyRequest{Save: []remote.Record{
		remote.NewRecord("Member", "m"),
		remote.NewRecord("Session", "s").Set("memberRef", remote.Ref("m")),
		remote.NewRecord("Task", "t").Set("sessionRef", remote.Ref("s")),
		remote.NewRecord("Member", "other"),
	}})
	require.NoError(t, err)

	_, err = s.Modify(ctx, "z", remote.ModifyRequest{Delete: []string{"m"}, Atomic: true})
	require.NoError(t, err)

	for _, id := range []string{"m", "s", "t"} {
		_, err := s.Lookup(ctx, "z", []string{id})
		assert.ErrorIs(t, err, remote.ErrRecordNotFound, id)
	}
	left, err := s.Query(ctx, "z", remote.Query{Type: "Member"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "other", left[0].ID)

	require.NoError(t, s.DeleteZone(ctx, "z"))
	require.NoError(t, s.CreateZone(ctx, "z"))
	left, err = s.Query(ctx, "z", remote.Query{Type: "Member"})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestClientOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	c := remote.NewClient(s, remote.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	session := models.SessionRecord{
		EndTime:        time.Now().UTC(),
		CompletedCount: 1,
		Tasks: []models.TaskUsageSummary{{
			TaskName:     "Writing",
			IsCompleted:  true,
			TotalSeconds: 90,
			StartTime:    time.Now().Add(-time.Minute).UTC(),
			EndTime:      time.Now().UTC(),
			Apps:         []models.AppUsage{{Name: "Pages", Seconds: 90}},
		}},
	}
	session.AssignIDs()
	require.NoError(t, c.UploadSession(ctx, "g1", "ana", session))

	summaries, completed, err := c.FetchUserSummaries(ctx, "g1", "ana", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 90, summaries[0].Apps["Pages"], 0.001)

	require.NoError(t, c.DeleteUserData(ctx, "g1", "ana"))
	all, err := c.FetchAllGroupData(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, all)
}
