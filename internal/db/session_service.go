package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/balkashynov/crewclock/internal/aggregate"
	"github.com/balkashynov/crewclock/internal/models"
)

// ErrNotFound is returned when a session or task id does not exist locally
var ErrNotFound = errors.New("not found")

// AppendSession stores a finished session with all of its tasks and app
// usage. Missing ids are generated; the graph is written in one transaction.
func (s *Store) AppendSession(session *models.SessionRecord) error {
	if session.EndTime.IsZero() {
		return fmt.Errorf("session has no end time")
	}
	session.AssignIDs()
	normalizeTimes(session)

	// Create walks the Tasks and Tasks.Apps associations
	if err := s.db.Create(session).Error; err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

// Sessions returns the sessions that ended inside the last forDays days,
// newest first, with their tasks and apps loaded
func (s *Store) Sessions(forDays int) ([]models.SessionRecord, error) {
	return s.SessionsSince(aggregate.Since(time.Now(), forDays))
}

// SessionsSince returns the sessions that ended at or after since
func (s *Store) SessionsSince(since time.Time) ([]models.SessionRecord, error) {
	var sessions []models.SessionRecord

	err := s.db.Where("end_time >= ?", since.UTC()).
		Scopes(withGraph).
		Order("end_time DESC, id").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// withGraph preloads tasks by start time and apps by name, the order the
// remote store returns them in, so merges over either side agree
func withGraph(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("start_time, id") }).
		Preload("Tasks.Apps", func(db *gorm.DB) *gorm.DB { return db.Order("name, id") })
}

// GetSession loads one session graph by id
func (s *Store) GetSession(id string) (*models.SessionRecord, error) {
	var session models.SessionRecord

	err := s.db.Scopes(withGraph).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// HasSession reports whether a session id is stored on this device
func (s *Store) HasSession(id string) (bool, error) {
	var n int64
	if err := s.db.Model(&models.SessionRecord{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Summaries merges the sessions of the last forDays days into per-task
// summaries. The completed counter is the sum of each session's own count.
func (s *Store) Summaries(forDays int) ([]aggregate.TaskSummary, int, error) {
	sessions, err := s.Sessions(forDays)
	if err != nil {
		return nil, 0, err
	}
	report := aggregate.Merge(sessions)
	return report.Tasks, report.CompletedCount, nil
}

// SetTaskCompleted flips the completed flag of one task entry
func (s *Store) SetTaskCompleted(taskID string, completed bool) error {
	return s.updateTask(taskID, map[string]any{"is_completed": completed})
}

// RenameTask changes the display name of one task entry
func (s *Store) RenameTask(taskID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("task title cannot be empty")
	}
	return s.updateTask(taskID, map[string]any{"task_name": title})
}

func (s *Store) updateTask(taskID string, fields map[string]any) error {
	result := s.db.Model(&models.TaskUsageSummary{}).Where("id = ?", taskID).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session and everything it owns
func (s *Store) DeleteSession(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		found, err := deleteSessionGraph(tx, []string{id})
		if err != nil {
			return err
		}
		if found == 0 {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// WipeAll deletes every stored session graph. Memberships are kept.
func (s *Store) WipeAll() error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.SessionRecord{}).Pluck("id", &ids).Error; err != nil {
			return err
		}
		_, err := deleteSessionGraph(tx, ids)
		return err
	})
}

// CountSessions returns how many sessions are stored locally
func (s *Store) CountSessions() (int64, error) {
	var n int64
	err := s.db.Model(&models.SessionRecord{}).Count(&n).Error
	return n, err
}

// deleteSessionGraph deletes app usage, then tasks, then the sessions
// themselves. The foreign keys cascade too; deleting bottom-up keeps the
// result the same when a connection was opened without them.
func deleteSessionGraph(tx *gorm.DB, sessionIDs []string) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	taskIDs := tx.Model(&models.TaskUsageSummary{}).Select("id").Where("session_id IN ?", sessionIDs)
	if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.AppUsage{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("session_id IN ?", sessionIDs).Delete(&models.TaskUsageSummary{}).Error; err != nil {
		return 0, err
	}
	result := tx.Where("id IN ?", sessionIDs).Delete(&models.SessionRecord{})
	return result.RowsAffected, result.Error
}

// normalizeTimes stores every timestamp in UTC so that range queries over
// the text encoding compare correctly
func normalizeTimes(session *models.SessionRecord) {
	session.EndTime = session.EndTime.UTC()
	for i := range session.Tasks {
		session.Tasks[i].StartTime = session.Tasks[i].StartTime.UTC()
		session.Tasks[i].EndTime = session.Tasks[i].EndTime.UTC()
	}
}
