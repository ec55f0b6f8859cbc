package db

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
	"github.com/balkashynov/crewclock/internal/remote/memstore"
)

// openTestStore creates a store in a temporary directory
func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "nested", "crewclock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writingSession(end time.Time, total float64, apps map[string]float64) *models.SessionRecord {
	task := models.TaskUsageSummary{
		TaskName:     "Writing",
		StartTime:    end.Add(-time.Duration(total) * time.Second),
		EndTime:      end,
		TotalSeconds: total,
	}
	for name, secs := range apps {
		task.Apps = append(task.Apps, models.AppUsage{Name: name, Seconds: secs})
	}
	return &models.SessionRecord{EndTime: end, CompletedCount: 1, Tasks: []models.TaskUsageSummary{task}}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	store := openTestStore(t)
	assert.FileExists(t, store.Path())
}

func TestAppendSession_AssignsIDsAndLoadsGraph(t *testing.T) {
	store := openTestStore(t)
	session := writingSession(time.Now(), 120, map[string]float64{"Editor": 100, "Browser": 20})

	require.NoError(t, store.AppendSession(session))
	require.NotEmpty(t, session.ID)
	require.NotEmpty(t, session.Tasks[0].ID)
	assert.Equal(t, session.ID, session.Tasks[0].SessionID)

	loaded, err := store.GetSession(session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
	assert.Len(t, loaded.Tasks[0].Apps, 2)
	assert.Equal(t, 120.0, loaded.Tasks[0].TotalSeconds)
}

func TestAppendSession_RejectsMissingEndTime(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.AppendSession(&models.SessionRecord{}))
}

func TestSummaries_MergesAcrossSessions(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	require.NoError(t, store.AppendSession(writingSession(now.Add(-time.Hour), 120, map[string]float64{"Editor": 100, "Browser": 20})))
	require.NoError(t, store.AppendSession(writingSession(now, 80, map[string]float64{"Editor": 60, "Browser": 20})))
	// Outside of a one week window
	require.NoError(t, store.AppendSession(writingSession(now.AddDate(0, 0, -30), 999, nil)))

	tasks, completed, err := store.Summaries(7)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, 200.0, tasks[0].TotalSeconds)
	assert.Equal(t, map[string]float64{"Editor": 160, "Browser": 40}, tasks[0].Apps)
	assert.Equal(t, 2, completed)
}

func TestSetTaskCompletedAndRename(t *testing.T) {
	store := openTestStore(t)
	session := writingSession(time.Now(), 60, nil)
	require.NoError(t, store.AppendSession(session))
	taskID := session.Tasks[0].ID

	require.NoError(t, store.SetTaskCompleted(taskID, true))
	require.NoError(t, store.RenameTask(taskID, "Writing chapter 2"))

	loaded, err := store.GetSession(session.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Tasks[0].IsCompleted)
	assert.Equal(t, "Writing chapter 2", loaded.Tasks[0].TaskName)

	assert.ErrorIs(t, store.SetTaskCompleted("missing", true), ErrNotFound)
	assert.Error(t, store.RenameTask(taskID, "  "))
}

func TestDeleteSession_Cascades(t *testing.T) {
	store := openTestStore(t)
	session := writingSession(time.Now(), 60, map[string]float64{"Editor": 60})
	require.NoError(t, store.AppendSession(session))

	require.NoError(t, store.DeleteSession(session.ID))

	var tasks, apps int64
	require.NoError(t, store.db.Model(&models.TaskUsageSummary{}).Count(&tasks).Error)
	require.NoError(t, store.db.Model(&models.AppUsage{}).Count(&apps).Error)
	assert.Zero(t, tasks)
	assert.Zero(t, apps)

	assert.ErrorIs(t, store.DeleteSession(session.ID), ErrNotFound)
}

func TestWipeAll_KeepsMembership(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.AppendSession(writingSession(time.Now(), 10, map[string]float64{"Editor": 10})))
	require.NoError(t, store.AppendSession(writingSession(time.Now(), 20, nil)))
	_, err := store.JoinGroup("g1", "Team", "ana")
	require.NoError(t, err)

	require.NoError(t, store.WipeAll())

	n, err := store.CountSessions()
	require.NoError(t, err)
	assert.Zero(t, n)

	var apps int64
	require.NoError(t, store.db.Model(&models.AppUsage{}).Count(&apps).Error)
	assert.Zero(t, apps)

	m, err := store.CurrentMembership()
	require.NoError(t, err)
	assert.Equal(t, "g1", m.GroupID)
}

func TestMembership(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CurrentMembership()
	assert.ErrorIs(t, err, ErrNoMembership)

	_, err = store.JoinGroup("g1", "Team", "ana")
	require.NoError(t, err)
	// Re-joining keeps the earlier group name when none is given
	m, err := store.JoinGroup("g1", "", "ana-laptop")
	require.NoError(t, err)
	assert.Equal(t, "Team", m.GroupName)
	assert.Equal(t, "ana-laptop", m.UserName)

	_, err = store.JoinGroup("g2", "Other", "ana")
	require.NoError(t, err)
	current, err := store.CurrentMembership()
	require.NoError(t, err)
	assert.Equal(t, "g2", current.GroupID)

	require.NoError(t, store.LeaveGroup())
	_, err = store.CurrentMembership()
	assert.ErrorIs(t, err, ErrNoMembership)

	_, err = store.JoinGroup("", "x", "ana")
	assert.Error(t, err)
}

func TestSummaries_AgreeWithRemoteMerge(t *testing.T) {
	end := time.Now().UTC().Truncate(time.Second)
	comment := func(text string) *string { return &text }

	// The later half is listed first; the merge must still take the
	// comment of the earliest entry on both sides
	build := func() models.SessionRecord {
		return models.SessionRecord{
			ID:      "s1",
			EndTime: end,
			Tasks: []models.TaskUsageSummary{
				{ID: "t-b", TaskName: "Writing", StartTime: end.Add(-30 * time.Minute), EndTime: end,
					TotalSeconds: 1800, Comment: comment("second half"),
					Apps: []models.AppUsage{{ID: "a-b", Name: "Pages", Seconds: 1800}}},
				{ID: "t-a", TaskName: "Writing", StartTime: end.Add(-time.Hour), EndTime: end.Add(-30 * time.Minute),
					TotalSeconds: 1800, Comment: comment("first half"),
					Apps: []models.AppUsage{{ID: "a-a", Name: "Editor", Seconds: 1800}}},
			},
		}
	}

	store := openTestStore(t)
	local := build()
	require.NoError(t, store.AppendSession(&local))
	localTasks, _, err := store.Summaries(1)
	require.NoError(t, err)

	ctx := context.Background()
	client := remote.NewClient(memstore.New(), remote.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	uploaded := build()
	uploaded.AssignIDs()
	require.NoError(t, client.UploadSession(ctx, "g1", "ana", uploaded))
	remoteTasks, _, err := client.FetchUserSummaries(ctx, "g1", "ana", 0)
	require.NoError(t, err)

	require.Len(t, localTasks, 1)
	require.Len(t, remoteTasks, 1)
	assert.Equal(t, "first half", localTasks[0].Comment)
	assert.Equal(t, remoteTasks[0].Comment, localTasks[0].Comment)
	assert.Equal(t, remoteTasks[0].Apps, localTasks[0].Apps)
	assert.Equal(t, remoteTasks[0].TotalSeconds, localTasks[0].TotalSeconds)
}

func TestHasSession(t *testing.T) {
	store := openTestStore(t)
	s := writingSession(time.Now().UTC(), 60, nil)
	require.NoError(t, store.AppendSession(s))

	found, err := store.HasSession(s.ID)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.HasSession("missing")
	require.NoError(t, err)
	assert.False(t, found)
}
