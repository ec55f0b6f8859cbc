package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxSpent caps a single task entry
const MaxSpent = 24 * time.Hour

var (
	spentUnitRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(h|hr|hrs|hour|hours|m|min|mins|minute|minutes|s|sec|secs|second|seconds)$`)
	agoRegex       = regexp.MustCompile(`^(\d+)\s*(minute|minutes|min|mins|hour|hours|day|days)\s+ago$`)
	dateTimeRegex  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})(?:\s+(\d{1,2}):(\d{2}))?$`)
	clockRegex     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseSpent parses how long a task took
// Supported formats:
// - bare number of minutes (e.g., "90")
// - Go durations (e.g., "1h30m", "45m")
// - X unit (e.g., "2 hours", "45 min")
func ParseSpent(input string) (time.Duration, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return 0, fmt.Errorf("time spent is empty")
	}

	d, err := parseSpentValue(input)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("time spent must be positive")
	}
	if d > MaxSpent {
		return 0, fmt.Errorf("time spent must be at most %s", FormatSpent(MaxSpent))
	}
	return d, nil
}

func parseSpentValue(input string) (time.Duration, error) {
	if minutes, err := strconv.Atoi(input); err == nil {
		return time.Duration(minutes) * time.Minute, nil
	}

	if d, err := time.ParseDuration(input); err == nil {
		return d, nil
	}

	matches := spentUnitRegex.FindStringSubmatch(input)
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid time format %q. Use: 90, 1h30m, 45 min or 2 hours", input)
	}

	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number")
	}

	var unit time.Duration
	switch matches[2] {
	case "h", "hr", "hrs", "hour", "hours":
		unit = time.Hour
	case "m", "min", "mins", "minute", "minutes":
		unit = time.Minute
	default:
		unit = time.Second
	}
	return time.Duration(amount * float64(unit)), nil
}

// ParseEnded parses when a session ended, relative to now
// Supported formats:
// - "" or "now"
// - hh:mm today (e.g., "17:30")
// - dd/mm/yyyy [hh:mm] (e.g., "15/12/2025 17:30"); a bare date means end of day
// - X unit ago (e.g., "2 hours ago", "1 day ago")
func ParseEnded(input string, now time.Time) (time.Time, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" || input == "now" {
		return now, nil
	}

	var (
		ended time.Time
		err   error
	)
	switch {
	case clockRegex.MatchString(input):
		ended, err = parseClock(input, now)
	case dateTimeRegex.MatchString(input):
		ended, err = parseDateTime(input, now.Location())
	case agoRegex.MatchString(input):
		ended, err = parseAgo(input, now)
	default:
		return time.Time{}, fmt.Errorf("invalid end time %q. Use: now, 17:30, dd/mm/yyyy [hh:mm] or X hours ago", input)
	}
	if err != nil {
		return time.Time{}, err
	}

	if ended.After(now.Add(time.Minute)) {
		return time.Time{}, fmt.Errorf("end time %s is in the future", ended.Format("02/01/2006 15:04"))
	}
	return ended, nil
}

func parseClock(input string, now time.Time) (time.Time, error) {
	matches := clockRegex.FindStringSubmatch(input)
	hour, _ := strconv.Atoi(matches[1])
	minute, _ := strconv.Atoi(matches[2])
	if hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time of day")
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), nil
}

func parseDateTime(input string, loc *time.Location) (time.Time, error) {
	matches := dateTimeRegex.FindStringSubmatch(input)

	day, _ := strconv.Atoi(matches[1])
	month, _ := strconv.Atoi(matches[2])
	year, _ := strconv.Atoi(matches[3])

	// Validate date ranges
	if day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("day must be between 1 and 31")
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("month must be between 1 and 12")
	}
	if year < 2000 || year > 2100 {
		return time.Time{}, fmt.Errorf("year must be between 2000 and 2100")
	}

	hour, minute, sec := 23, 59, 59
	if matches[4] != "" {
		hour, _ = strconv.Atoi(matches[4])
		minute, _ = strconv.Atoi(matches[5])
		sec = 0
		if hour > 23 || minute > 59 {
			return time.Time{}, fmt.Errorf("invalid time of day")
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, loc)

	// Check if date is valid (handles leap years, etc.)
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, fmt.Errorf("invalid date")
	}
	return t, nil
}

func parseAgo(input string, now time.Time) (time.Time, error) {
	matches := agoRegex.FindStringSubmatch(input)
	amount, err := strconv.Atoi(matches[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid number")
	}

	switch matches[2] {
	case "minute", "minutes", "min", "mins":
		return now.Add(-time.Duration(amount) * time.Minute), nil
	case "hour", "hours":
		return now.Add(-time.Duration(amount) * time.Hour), nil
	default:
		if amount > 365 {
			return time.Time{}, fmt.Errorf("days must be at most 365")
		}
		return now.AddDate(0, 0, -amount), nil
	}
}

// FormatSpent formats a duration for display
func FormatSpent(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	case m > 0 && s > 0 && m < 10:
		return fmt.Sprintf("%dm %ds", m, s)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatSeconds formats a seconds total for display
func FormatSeconds(secs float64) string {
	return FormatSpent(time.Duration(secs * float64(time.Second)))
}
