package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRecord is one finished work session together with its task breakdown
type SessionRecord struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	EndTime        time.Time `gorm:"not null;index" json:"endTime"`
	CompletedCount int       `gorm:"default:0" json:"completedCount"`
	CreatedAt      time.Time `json:"-"`

	// Relationships
	Tasks []TaskUsageSummary `gorm:"foreignKey:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"tasks"`
}

// TaskUsageSummary is the time spent on one task during a session
type TaskUsageSummary struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"not null;index" json:"-"`
	ReminderID   string    `json:"reminderId"` // stable task identifier, may be empty
	TaskName     string    `gorm:"not null" json:"taskName"`
	IsCompleted  bool      `gorm:"default:false" json:"isCompleted"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	TotalSeconds float64   `json:"totalSeconds"`
	Comment      *string   `json:"comment,omitempty"`

	// Relationships
	Apps []AppUsage `gorm:"foreignKey:TaskID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"apps"`
}

// AppUsage is the time one application was in use during a task
type AppUsage struct {
	ID      string  `gorm:"primaryKey" json:"id"`
	TaskID  string  `gorm:"not null;index" json:"-"`
	Name    string  `gorm:"not null" json:"name"`
	Seconds float64 `json:"seconds"`
}

// BeforeCreate fills in a UUID when the caller did not assign one
func (s *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate fills in a UUID when the caller did not assign one
func (t *TaskUsageSummary) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate fills in a UUID when the caller did not assign one
func (a *AppUsage) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AssignIDs gives every record in the graph an id and links children to
// their parents. Ids that are already set are kept, so a session that was
// uploaded once keeps the same record names on every retry.
func (s *SessionRecord) AssignIDs() {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for i := range s.Tasks {
		task := &s.Tasks[i]
		if task.ID == "" {
			task.ID = uuid.NewString()
		}
		task.SessionID = s.ID
		for j := range task.Apps {
			app := &task.Apps[j]
			if app.ID == "" {
				app.ID = uuid.NewString()
			}
			app.TaskID = task.ID
		}
	}
}

// RecordCount returns the number of records the session graph occupies
func (s *SessionRecord) RecordCount() int {
	n := 1
	for _, task := range s.Tasks {
		n += 1 + len(task.Apps)
	}
	return n
}

// CommentText returns the task comment or "" when none was written
func (t TaskUsageSummary) CommentText() string {
	if t.Comment == nil {
		return ""
	}
	return *t.Comment
}
