package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/balkashynov/crewclock/internal/aggregate"
	"github.com/balkashynov/crewclock/internal/models"
)

// UploadSession stores a finished session under the user's member record.
// Record ids come from the session itself, so a retry after a partial
// upload hits ErrConflict on the batches that already went through.
func (c *Client) UploadSession(ctx context.Context, groupID, userName string, session models.SessionRecord) error {
	if err := c.EnsureNamespace(ctx); err != nil {
		return err
	}
	memberID, err := c.UpsertMember(ctx, groupID, userName)
	if err != nil {
		return err
	}
	session.AssignIDs()
	records := EncodeSession(memberID, session)
	if err := c.UploadRecords(ctx, records); err != nil {
		return fmt.Errorf("upload session %s: %w", session.ID, err)
	}
	c.logger.Info("session uploaded", "group", groupID, "user", userName,
		"session", session.ID, "records", len(records))
	return nil
}

// FetchGroupMembers returns the distinct user names in a group, sorted
func (c *Client) FetchGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	recs, err := c.Query(ctx, Query{
		Type:    TypeMember,
		Filters: []Filter{Equal(FieldGroupRef, RefID(groupID))},
		Sorts:   []Sort{{Field: FieldUserName}},
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(recs))
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		m, err := DecodeMember(rec)
		if err != nil {
			return nil, err
		}
		if seen[m.UserName] {
			continue
		}
		seen[m.UserName] = true
		names = append(names, m.UserName)
	}
	sort.Strings(names)
	return names, nil
}

// FetchUserSummaries merges one user's sessions of the last days into per
// task summaries. days <= 0 means all sessions.
func (c *Client) FetchUserSummaries(ctx context.Context, groupID, userName string, days int) ([]aggregate.TaskSummary, int, error) {
	members, err := c.members(ctx, groupID, userName)
	if err != nil {
		return nil, 0, err
	}
	if len(members) == 0 {
		return nil, 0, fmt.Errorf("%q in group %s: %w", userName, groupID, ErrMemberNotFound)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}

	var since time.Time
	if days > 0 {
		since = aggregate.Since(time.Now(), days)
	}
	sessions, err := c.fetchSessions(ctx, ids, since)
	if err != nil {
		return nil, 0, err
	}
	report := aggregate.Merge(flatten(sessions))
	return report.Tasks, report.CompletedCount, nil
}

// FetchAllGroupData returns every session in a group keyed by user name
func (c *Client) FetchAllGroupData(ctx context.Context, groupID string) (map[string][]models.SessionRecord, error) {
	recs, err := c.Query(ctx, Query{
		Type:    TypeMember,
		Filters: []Filter{Equal(FieldGroupRef, RefID(groupID))},
	})
	if err != nil {
		return nil, err
	}
	memberIDs := make([]string, 0, len(recs))
	userOf := make(map[string]string, len(recs))
	for _, rec := range recs {
		m, err := DecodeMember(rec)
		if err != nil {
			return nil, err
		}
		memberIDs = append(memberIDs, m.ID)
		userOf[m.ID] = m.UserName
	}

	out := make(map[string][]models.SessionRecord)
	if len(memberIDs) == 0 {
		return out, nil
	}
	byMember, err := c.fetchSessions(ctx, memberIDs, time.Time{})
	if err != nil {
		return nil, err
	}
	for memberID, sessions := range byMember {
		user := userOf[memberID]
		out[user] = append(out[user], sessions...)
	}
	for user := range out {
		sort.SliceStable(out[user], func(i, j int) bool {
			return out[user][i].EndTime.After(out[user][j].EndTime)
		})
	}
	return out, nil
}

// DeleteUserData removes a user's member records and sessions from a
// group. Tasks and app usage go with their sessions through cascade.
func (c *Client) DeleteUserData(ctx context.Context, groupID, userName string) error {
	members, err := c.members(ctx, groupID, userName)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("%q in group %s: %w", userName, groupID, ErrMemberNotFound)
	}
	memberIDs := make([]Value, 0, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		memberIDs = append(memberIDs, RefID(m.ID))
	}

	sessions, err := c.Query(ctx, Query{
		Type:    TypeSession,
		Filters: []Filter{In(FieldMemberRef, memberIDs)},
	})
	if err != nil {
		return err
	}
	for _, rec := range sessions {
		ids = append(ids, rec.ID)
	}
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	if err := c.DeleteRecordsInBatches(ctx, ids); err != nil {
		return fmt.Errorf("delete data of %q: %w", userName, err)
	}
	c.logger.Info("user data deleted", "group", groupID, "user", userName,
		"sessions", len(sessions), "members", len(members))
	return nil
}

// ResetAllRemoteData wipes the zone
func (c *Client) ResetAllRemoteData(ctx context.Context) error {
	return c.ResetNamespace(ctx)
}

// UpdateTaskSummary edits one uploaded task. A nil argument leaves the
// field alone. A concurrent edit surfaces as ErrConflict.
func (c *Client) UpdateTaskSummary(ctx context.Context, taskID string, completed *bool, title *string) error {
	recs, err := c.Lookup(ctx, []string{taskID})
	if err != nil {
		return err
	}
	rec := recs[0]
	if rec.Type != TypeTask {
		return fmt.Errorf("record %s is a %s, not a task: %w", taskID, rec.Type, ErrEncoding)
	}
	if completed != nil {
		rec = rec.Set(FieldIsCompleted, Bool(*completed))
	}
	if title != nil {
		rec = rec.Set(FieldTaskName, String(*title))
	}
	if _, err := c.modify(ctx, ModifyRequest{Save: []Record{rec}, Policy: SaveIfUnchanged, Atomic: true}); err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	return nil
}

// Ping checks that the record service answers. Backends with a health
// endpoint are asked directly; otherwise a missing zone still means the
// service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if hc, ok := c.backend.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	err := c.backend.FetchZone(ctx, c.zone)
	if err == nil || errors.Is(err, ErrNamespaceMissing) {
		return nil
	}
	return err
}

// fetchSessions loads the full session graphs of the given members,
// newest first, keyed by member id. A zero since loads everything.
func (c *Client) fetchSessions(ctx context.Context, memberIDs []string, since time.Time) (map[string][]models.SessionRecord, error) {
	refs := make([]Value, 0, len(memberIDs))
	for _, id := range memberIDs {
		refs = append(refs, RefID(id))
	}
	filters := []Filter{In(FieldMemberRef, refs)}
	if !since.IsZero() {
		filters = append(filters, GreaterOrEqual(FieldEndTime, Timestamp(since)))
	}
	sessionRecs, err := c.Query(ctx, Query{
		Type:    TypeSession,
		Filters: filters,
		Sorts:   []Sort{{Field: FieldEndTime, Descending: true}},
	})
	if err != nil {
		return nil, err
	}
	if len(sessionRecs) == 0 {
		return map[string][]models.SessionRecord{}, nil
	}

	sessions := make([]models.SessionRecord, 0, len(sessionRecs))
	owners := make([]string, 0, len(sessionRecs))
	sessionRefs := make([]Value, 0, len(sessionRecs))
	for _, rec := range sessionRecs {
		s, memberID, err := DecodeSession(rec)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
		owners = append(owners, memberID)
		sessionRefs = append(sessionRefs, RefID(s.ID))
	}

	taskRecs, err := c.Query(ctx, Query{
		Type:    TypeTask,
		Filters: []Filter{In(FieldSessionRef, sessionRefs)},
		Sorts:   []Sort{{Field: FieldStartTime}},
	})
	if err != nil {
		return nil, err
	}
	tasksBySession := make(map[string][]models.TaskUsageSummary)
	taskRefs := make([]Value, 0, len(taskRecs))
	tasks := make([]models.TaskUsageSummary, 0, len(taskRecs))
	for _, rec := range taskRecs {
		t, err := DecodeTask(rec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
		taskRefs = append(taskRefs, RefID(t.ID))
	}

	appsByTask := make(map[string][]models.AppUsage)
	if len(taskRefs) > 0 {
		appRecs, err := c.Query(ctx, Query{
			Type:    TypeApp,
			Filters: []Filter{In(FieldTaskRef, taskRefs)},
			Sorts:   []Sort{{Field: FieldName}},
		})
		if err != nil {
			return nil, err
		}
		for _, rec := range appRecs {
			a, err := DecodeApp(rec)
			if err != nil {
				return nil, err
			}
			appsByTask[a.TaskID] = append(appsByTask[a.TaskID], a)
		}
	}
	for _, t := range tasks {
		t.Apps = appsByTask[t.ID]
		tasksBySession[t.SessionID] = append(tasksBySession[t.SessionID], t)
	}

	out := make(map[string][]models.SessionRecord)
	for i, s := range sessions {
		s.Tasks = tasksBySession[s.ID]
		sort.SliceStable(s.Tasks, func(a, b int) bool {
			if !s.Tasks[a].StartTime.Equal(s.Tasks[b].StartTime) {
				return s.Tasks[a].StartTime.Before(s.Tasks[b].StartTime)
			}
			return s.Tasks[a].ID < s.Tasks[b].ID
		})
		out[owners[i]] = append(out[owners[i]], s)
	}
	return out, nil
}

func flatten(byMember map[string][]models.SessionRecord) []models.SessionRecord {
	var out []models.SessionRecord
	for _, sessions := range byMember {
		out = append(out, sessions...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].EndTime.After(out[j].EndTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
