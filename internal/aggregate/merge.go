// Package aggregate folds raw session records into per-task summaries.
//
// The same fold runs over sessions read from the local database and over
// sessions fetched from the remote record store, so both views agree when
// they are given the same input.
package aggregate

import (
	"sort"
	"time"

	"github.com/balkashynov/crewclock/internal/models"
)

// TaskSummary is the merged view of every task entry sharing one key
type TaskSummary struct {
	Key          string             `json:"key"`
	ReminderID   string             `json:"reminderId"`
	TaskName     string             `json:"taskName"`
	IsCompleted  bool               `json:"isCompleted"`
	StartTime    time.Time          `json:"startTime"`
	EndTime      time.Time          `json:"endTime"`
	TotalSeconds float64            `json:"totalSeconds"`
	Comment      string             `json:"comment,omitempty"`
	Apps         map[string]float64 `json:"apps"`
}

// AppTotal is one row of a task's application breakdown
type AppTotal struct {
	Name    string
	Seconds float64
}

// Report is the result of merging a window of sessions
type Report struct {
	Tasks []TaskSummary
	// CompletedCount is the sum of each session's own completed counter.
	// It is not recomputed from the merged IsCompleted flags.
	CompletedCount int
}

// Key returns the grouping key of a task entry: its reminder id when set,
// otherwise its display name
func Key(task models.TaskUsageSummary) string {
	if task.ReminderID != "" {
		return task.ReminderID
	}
	return task.TaskName
}

// FromTask converts one raw task entry into a single-contributor summary
func FromTask(task models.TaskUsageSummary) TaskSummary {
	apps := make(map[string]float64, len(task.Apps))
	for _, app := range task.Apps {
		apps[app.Name] += app.Seconds
	}
	return TaskSummary{
		Key:          Key(task),
		ReminderID:   task.ReminderID,
		TaskName:     task.TaskName,
		IsCompleted:  task.IsCompleted,
		StartTime:    task.StartTime,
		EndTime:      task.EndTime,
		TotalSeconds: task.TotalSeconds,
		Comment:      task.CommentText(),
		Apps:         apps,
	}
}

// Combine merges two summaries that share a key. Neither input is modified.
func Combine(a, b TaskSummary) TaskSummary {
	out := TaskSummary{
		Key:          a.Key,
		ReminderID:   a.ReminderID,
		TaskName:     a.TaskName,
		IsCompleted:  a.IsCompleted || b.IsCompleted,
		StartTime:    earliest(a.StartTime, b.StartTime),
		EndTime:      latest(a.EndTime, b.EndTime),
		TotalSeconds: a.TotalSeconds + b.TotalSeconds,
		Comment:      a.Comment,
		Apps:         make(map[string]float64, len(a.Apps)+len(b.Apps)),
	}
	if out.ReminderID == "" {
		out.ReminderID = b.ReminderID
	}
	if out.TaskName == "" {
		out.TaskName = b.TaskName
	}
	// First non-empty comment wins
	if out.Comment == "" {
		out.Comment = b.Comment
	}
	for name, secs := range a.Apps {
		out.Apps[name] += secs
	}
	for name, secs := range b.Apps {
		out.Apps[name] += secs
	}
	return out
}

// Merge folds every task of every session into one summary per key, in
// session order then task order, and sorts the result by total time
func Merge(sessions []models.SessionRecord) Report {
	byKey := make(map[string]TaskSummary)
	var order []string
	completed := 0

	for _, session := range sessions {
		completed += session.CompletedCount
		for _, task := range session.Tasks {
			entry := FromTask(task)
			existing, ok := byKey[entry.Key]
			if !ok {
				byKey[entry.Key] = entry
				order = append(order, entry.Key)
				continue
			}
			byKey[entry.Key] = Combine(existing, entry)
		}
	}

	tasks := make([]TaskSummary, 0, len(order))
	for _, key := range order {
		tasks = append(tasks, byKey[key])
	}
	SortByTotal(tasks)

	return Report{Tasks: tasks, CompletedCount: completed}
}

// SortByTotal orders summaries by total seconds, largest first. Ties keep a
// stable order by key.
func SortByTotal(tasks []TaskSummary) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].TotalSeconds != tasks[j].TotalSeconds {
			return tasks[i].TotalSeconds > tasks[j].TotalSeconds
		}
		return tasks[i].Key < tasks[j].Key
	})
}

// AppBreakdown returns the task's applications ordered by time spent
func (s TaskSummary) AppBreakdown() []AppTotal {
	out := make([]AppTotal, 0, len(s.Apps))
	for name, secs := range s.Apps {
		out = append(out, AppTotal{Name: name, Seconds: secs})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CompletedTasks counts merged summaries flagged as completed
func (r Report) CompletedTasks() int {
	n := 0
	for _, task := range r.Tasks {
		if task.IsCompleted {
			n++
		}
	}
	return n
}

// TotalSeconds sums the time of every merged task
func (r Report) TotalSeconds() float64 {
	var total float64
	for _, task := range r.Tasks {
		total += task.TotalSeconds
	}
	return total
}

// Since returns the start of the window covering the last days calendar
// days, today included
func Since(now time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}

func latest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.After(a):
		return b
	default:
		return a
	}
}
