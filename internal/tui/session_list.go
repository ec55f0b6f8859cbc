package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/parser"
)

// Focus represents what UI element has focus
type Focus int

const (
	FocusTable Focus = iota
	FocusSearch
)

// SessionListModel browses the sessions stored on this device
type SessionListModel struct {
	width  int
	height int

	all      []models.SessionRecord
	sessions []models.SessionRecord // after the search filter
	selected int

	focus       Focus
	searchQuery string

	currentPage     int
	sessionsPerPage int
}

// NewSessionListModel creates the browser over sessions, newest first
func NewSessionListModel(sessions []models.SessionRecord) SessionListModel {
	return SessionListModel{
		all:             sessions,
		sessions:        sessions,
		focus:           FocusTable,
		sessionsPerPage: 10,
	}
}

// Init initializes the model
func (m SessionListModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m SessionListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// header, pagination, help and borders
		m.sessionsPerPage = max(m.height-10, 3)
		m.currentPage = m.selected / m.sessionsPerPage
		return m, nil

	case tea.KeyMsg:
		if m.focus == FocusSearch {
			return m.handleSearchKeys(msg), nil
		}

		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if msg.String() == "esc" && m.searchQuery != "" {
				m.searchQuery = ""
				return m.applyFilter(), nil
			}
			return m, tea.Quit
		case "up", "k":
			return m.move(-1), nil
		case "down", "j":
			return m.move(1), nil
		case "left", "h":
			return m.move(-m.sessionsPerPage), nil
		case "right", "l":
			return m.move(m.sessionsPerPage), nil
		case "/":
			m.focus = FocusSearch
			return m, nil
		}
	}
	return m, nil
}

func (m SessionListModel) handleSearchKeys(msg tea.KeyMsg) SessionListModel {
	switch msg.Type {
	case tea.KeyEsc:
		m.focus = FocusTable
		m.searchQuery = ""
	case tea.KeyEnter:
		m.focus = FocusTable
	case tea.KeyBackspace:
		if r := []rune(m.searchQuery); len(r) > 0 {
			m.searchQuery = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.searchQuery += " "
	case tea.KeyRunes:
		m.searchQuery += string(msg.Runes)
	default:
		return m
	}
	return m.applyFilter()
}

// applyFilter keeps sessions with a task name or reminder id containing
// the query
func (m SessionListModel) applyFilter() SessionListModel {
	query := strings.ToLower(strings.TrimSpace(m.searchQuery))
	if query == "" {
		m.sessions = m.all
	} else {
		m.sessions = nil
		for _, s := range m.all {
			if sessionMatches(s, query) {
				m.sessions = append(m.sessions, s)
			}
		}
	}
	m.selected = 0
	m.currentPage = 0
	return m
}

func sessionMatches(s models.SessionRecord, query string) bool {
	for _, task := range s.Tasks {
		if strings.Contains(strings.ToLower(task.TaskName), query) ||
			strings.Contains(strings.ToLower(task.ReminderID), query) {
			return true
		}
	}
	return false
}

// move shifts the selection by delta and keeps the page in sync
func (m SessionListModel) move(delta int) SessionListModel {
	if len(m.sessions) == 0 {
		return m
	}
	m.selected = min(max(m.selected+delta, 0), len(m.sessions)-1)
	m.currentPage = m.selected / m.sessionsPerPage
	return m
}

// Selected returns the highlighted session, if any
func (m SessionListModel) Selected() (models.SessionRecord, bool) {
	if m.selected < 0 || m.selected >= len(m.sessions) {
		return models.SessionRecord{}, false
	}
	return m.sessions[m.selected], true
}

// View renders the TUI
func (m SessionListModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	leftWidth := m.width * 55 / 100
	rightWidth := m.width - leftWidth - 1

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTable(leftWidth),
		" ",
		m.renderDetails(rightWidth),
	)

	var bottom string
	if m.focus == FocusSearch {
		bottom = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).
			Render("🔍 " + m.searchQuery + "▏")
	} else {
		bottom = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText)).
			Render("↑/↓ select • ←/→ page • / search • q quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left, "", content, "", bottom)
}

func (m SessionListModel) renderTable(width int) string {
	var rows []string
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorSecondaryText)).
		Render(fmt.Sprintf("%-17s %5s %9s", "ENDED", "TASKS", "TIME"))
	rows = append(rows, header)

	if len(m.sessions) == 0 {
		rows = append(rows, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).Render("No sessions"))
	}

	start := m.currentPage * m.sessionsPerPage
	end := min(start+m.sessionsPerPage, len(m.sessions))
	for i := start; i < end; i++ {
		s := m.sessions[i]
		var total float64
		for _, task := range s.Tasks {
			total += task.TotalSeconds
		}
		line := fmt.Sprintf("%-17s %5d %9s", s.EndTime.Local().Format("02/01/2006 15:04"), len(s.Tasks), parser.FormatSeconds(total))
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
		if i == m.selected {
			style = style.Background(lipgloss.Color(ColorAccentMain)).Bold(true)
		}
		rows = append(rows, style.Render(line))
	}

	pages := max((len(m.sessions)+m.sessionsPerPage-1)/m.sessionsPerPage, 1)
	rows = append(rows, "", lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).
		Render(fmt.Sprintf("page %d/%d · %d session(s)", m.currentPage+1, pages, len(m.sessions))))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		Width(max(width-2, 10)).
		Render(strings.Join(rows, "\n"))
}

func (m SessionListModel) renderDetails(width int) string {
	s, ok := m.Selected()
	if !ok {
		return ""
	}

	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).
		Render("Session "+s.ID[:min(8, len(s.ID))]))
	lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).
		Render(fmt.Sprintf("✅ %d completed", s.CompletedCount)))
	lines = append(lines, "")

	for _, task := range s.Tasks {
		icon := "○"
		if task.IsCompleted {
			icon = "✅"
		}
		name := task.TaskName
		if task.ReminderID != "" {
			name += " #" + task.ReminderID
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", icon,
			lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText)).Render(truncate(name, width-16)),
			lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Render(parser.FormatSeconds(task.TotalSeconds))))
		for _, app := range task.Apps {
			lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).
				Render(fmt.Sprintf("    • %s %s", app.Name, parser.FormatSeconds(app.Seconds))))
		}
		if c := task.CommentText(); c != "" {
			lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).Italic(true).
				Render("    💬 "+truncate(c, width-10)))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccentMain)).
		Width(max(width-2, 10)).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
