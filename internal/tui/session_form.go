package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/parser"
)

// Step represents the current step in the wizard
type Step int

const (
	StepTasks Step = iota
	StepEnded
	StepComment
	StepSave
)

// SessionFormModel walks the user through entering a finished session
type SessionFormModel struct {
	currentStep Step
	inputs      []textinput.Model
	width       int
	height      int
	now         func() time.Time

	// Session data
	tasks   []parser.ParsedTask
	ended   time.Time
	comment string

	// State
	shimmer       *Shimmer
	validationErr string
	cancelled     bool
	completed     bool
	session       *models.SessionRecord
}

// NewSessionFormModel creates the session entry wizard
func NewSessionFormModel() SessionFormModel {
	inputs := make([]textinput.Model, 3)
	for i := range inputs {
		inputs[i] = textinput.New()
		inputs[i].Width = 60
		inputs[i].TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
		inputs[i].PlaceholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText))
		inputs[i].Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))
	}

	inputs[StepTasks].Placeholder = "Fix login #rem-42 ~1h30m +done @Xcode=50m (Enter on empty line to continue)"
	inputs[StepTasks].CharLimit = 300
	inputs[StepTasks].Focus()

	inputs[StepEnded].Placeholder = "now, 17:30, dd/mm/yyyy hh:mm, 2 hours ago (Enter for now)"
	inputs[StepEnded].CharLimit = 40

	inputs[StepComment].Placeholder = "Comment for the first task (Enter to skip)"
	inputs[StepComment].CharLimit = 500

	return SessionFormModel{
		currentStep: StepTasks,
		inputs:      inputs,
		now:         time.Now,
		shimmer:     NewShimmer(),
	}
}

// Init initializes the model
func (m SessionFormModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, shimmerTick())
}

// Update handles messages
func (m SessionFormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case shimmerTickMsg:
		m.shimmer.Advance(len([]rune(m.stepLabel())))
		return m, shimmerTick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		inputWidth := min(max(m.width-10, 30), 90)
		for i := range m.inputs {
			m.inputs[i].Width = inputWidth
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "shift+tab", "up":
			return m.prevStep()
		}
	}

	var cmd tea.Cmd
	if m.currentStep < StepSave {
		m.inputs[m.currentStep], cmd = m.inputs[m.currentStep].Update(msg)
	}
	return m, cmd
}

func (m SessionFormModel) handleEnter() (tea.Model, tea.Cmd) {
	m.validationErr = ""

	switch m.currentStep {
	case StepTasks:
		line := strings.TrimSpace(m.inputs[StepTasks].Value())
		if line == "" {
			if len(m.tasks) == 0 {
				m.validationErr = "Add at least one task"
				return m, nil
			}
			return m.nextStep()
		}
		task := parser.ParseTask(line)
		if !task.Valid() {
			m.validationErr = task.Err().Error()
			return m, nil
		}
		m.tasks = append(m.tasks, task)
		m.inputs[StepTasks].SetValue("")
		return m, nil

	case StepEnded:
		ended, err := parser.ParseEnded(m.inputs[StepEnded].Value(), m.now())
		if err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.ended = ended
		return m.nextStep()

	case StepComment:
		m.comment = strings.TrimSpace(m.inputs[StepComment].Value())
		return m.nextStep()

	case StepSave:
		session, err := parser.BuildSession(m.tasks, m.ended, m.comment)
		if err != nil {
			m.validationErr = err.Error()
			return m, nil
		}
		m.session = session
		m.completed = true
		return m, tea.Quit
	}
	return m, nil
}

func (m SessionFormModel) nextStep() (tea.Model, tea.Cmd) {
	if m.currentStep < StepSave {
		m.inputs[m.currentStep].Blur()
		m.currentStep++
		if m.currentStep < StepSave {
			m.inputs[m.currentStep].Focus()
		}
	}
	return m, nil
}

func (m SessionFormModel) prevStep() (tea.Model, tea.Cmd) {
	if m.currentStep > StepTasks {
		if m.currentStep < StepSave {
			m.inputs[m.currentStep].Blur()
		}
		m.currentStep--
		m.inputs[m.currentStep].Focus()
		m.validationErr = ""
	}
	return m, nil
}

func (m SessionFormModel) stepLabel() string {
	switch m.currentStep {
	case StepTasks:
		return "Tasks"
	case StepEnded:
		return "Session ended"
	case StepComment:
		return "Comment"
	default:
		return "Save session?"
	}
}

// Session returns the entered session once the wizard completed
func (m SessionFormModel) Session() (*models.SessionRecord, bool) {
	return m.session, m.completed && !m.cancelled
}

// View renders the TUI
func (m SessionFormModel) View() string {
	if m.cancelled || m.completed {
		return ""
	}

	var b strings.Builder

	header := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentMain)).Bold(true).
		Render(fmt.Sprintf("⏱️  New session · step %d/4", int(m.currentStep)+1))
	b.WriteString(header + "\n\n")
	b.WriteString(m.shimmer.Render(m.stepLabel()) + "\n")

	if m.currentStep < StepSave {
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1)
		b.WriteString(box.Render(m.inputs[m.currentStep].View()) + "\n")
	}

	if len(m.tasks) > 0 {
		b.WriteString("\n")
		for _, task := range m.tasks {
			b.WriteString(renderParsedTask(task) + "\n")
		}
	}

	if m.currentStep == StepSave {
		ended := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).
			Render("ended " + m.ended.Format("02/01/2006 15:04"))
		b.WriteString("\n" + ended + "\n")
		if m.comment != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).Italic(true).
				Render("💬 "+m.comment) + "\n")
		}
	}

	if m.validationErr != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).
			Render("❌ "+m.validationErr) + "\n")
	}

	help := "enter: next • shift+tab: back • esc: cancel"
	if m.currentStep == StepSave {
		help = "enter: save • shift+tab: back • esc: cancel"
	}
	b.WriteString("\n" + lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText)).Render(help))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

func renderParsedTask(task parser.ParsedTask) string {
	icon := "○"
	if task.Completed {
		icon = "✅"
	}
	line := fmt.Sprintf("%s %s · %s", icon, task.Name, parser.FormatSpent(task.Spent))
	if task.ReminderID != "" {
		line += " #" + task.ReminderID
	}
	if len(task.Apps) > 0 {
		names := make([]string, len(task.Apps))
		for i, app := range task.Apps {
			names[i] = app.Name
		}
		line += " @" + strings.Join(names, ", ")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText)).Render(line)
}
