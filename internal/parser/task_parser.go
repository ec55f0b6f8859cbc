package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/balkashynov/crewclock/internal/models"
)

// ParsedTask represents a task entry parsed from a single line
type ParsedTask struct {
	Name       string
	ReminderID string
	Spent      time.Duration
	Completed  bool
	Apps       []models.AppUsage
	Errors     []string
}

var (
	reminderRegex = regexp.MustCompile(`#([A-Za-z0-9_.:-]+)`)
	spentRegex    = regexp.MustCompile(`~([^\s]+)`)
	doneRegex     = regexp.MustCompile(`(?i)\+(done|completed)\b`)
	appRegex      = regexp.MustCompile(`@([^\s=]+)=([^\s]+)`)
)

// ParseTask extracts a task entry from a line using natural syntax
// Syntax: "Fix login bug #rem-42 ~1h30m +done @Xcode=50m @Safari=40m"
//
// When no ~duration is given the task takes the sum of its apps.
func ParseTask(input string) ParsedTask {
	result := ParsedTask{Errors: []string{}}

	// Extract reminder id (#id)
	if m := reminderRegex.FindStringSubmatch(input); len(m) > 1 {
		result.ReminderID = m[1]
		input = reminderRegex.ReplaceAllString(input, "")
	}

	// Extract app usage (@Name=duration), underscores stand for spaces
	for _, m := range appRegex.FindAllStringSubmatch(input, -1) {
		secs, err := ParseSpent(m[2])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Invalid time for app '%s': %v", m[1], err))
			continue
		}
		result.Apps = append(result.Apps, models.AppUsage{
			Name:    strings.ReplaceAll(m[1], "_", " "),
			Seconds: secs.Seconds(),
		})
	}
	input = appRegex.ReplaceAllString(input, "")

	// Extract time spent (~1h30m)
	if m := spentRegex.FindStringSubmatch(input); len(m) > 1 {
		spent, err := ParseSpent(m[1])
		if err != nil {
			result.Errors = append(result.Errors, "Invalid time spent '"+m[1]+"': "+err.Error())
		} else {
			result.Spent = spent
		}
		input = spentRegex.ReplaceAllString(input, "")
	}

	// Extract completion flag (+done)
	if doneRegex.MatchString(input) {
		result.Completed = true
		input = doneRegex.ReplaceAllString(input, "")
	}

	// Clean up the name (remove extra spaces)
	result.Name = strings.TrimSpace(strings.Join(strings.Fields(input), " "))

	if result.Spent == 0 {
		var total float64
		for _, app := range result.Apps {
			total += app.Seconds
		}
		result.Spent = time.Duration(total * float64(time.Second))
	}

	if result.Name == "" {
		result.Errors = append(result.Errors, "Task name is required")
	}
	if result.Spent == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "Time spent is required (~1h30m or @App=30m)")
	}
	return result
}

// Valid reports whether the line parsed without errors
func (p ParsedTask) Valid() bool {
	return len(p.Errors) == 0
}

// Err joins the parse errors into one error, or nil
func (p ParsedTask) Err() error {
	if p.Valid() {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(p.Errors, "; "))
}

// BuildSession lays the tasks out back to back so the last one finishes at
// ended. The completed counter is the number of tasks marked done.
func BuildSession(tasks []ParsedTask, ended time.Time, comment string) (*models.SessionRecord, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("a session needs at least one task")
	}
	for i, task := range tasks {
		if err := task.Err(); err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
	}

	session := &models.SessionRecord{EndTime: ended}
	cursor := ended
	out := make([]models.TaskUsageSummary, len(tasks))
	for i := len(tasks) - 1; i >= 0; i-- {
		task := tasks[i]
		start := cursor.Add(-task.Spent)
		summary := models.TaskUsageSummary{
			ReminderID:   task.ReminderID,
			TaskName:     task.Name,
			IsCompleted:  task.Completed,
			StartTime:    start,
			EndTime:      cursor,
			TotalSeconds: task.Spent.Seconds(),
			Apps:         append([]models.AppUsage(nil), task.Apps...),
		}
		if comment != "" && i == 0 {
			c := comment
			summary.Comment = &c
		}
		out[i] = summary
		cursor = start
		if task.Completed {
			session.CompletedCount++
		}
	}
	session.Tasks = out
	return session, nil
}
