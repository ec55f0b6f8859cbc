package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/crewclock/internal/syncer"
)

// StatusSource is what the status view polls and drives
type StatusSource interface {
	Status() syncer.Status
	SyncNow(ctx context.Context) (syncer.DrainResult, error)
}

type keyMap struct {
	Sync key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Sync, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var defaultKeys = keyMap{
	Sync: key.NewBinding(key.WithKeys("s", "S"), key.WithHelp("s", "sync now")),
	Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// StatusModel is the live view behind `crewclock watch`
type StatusModel struct {
	width  int
	height int

	source StatusSource
	group  string
	user   string
	status syncer.Status

	spinner spinner.Model
	shimmer *Shimmer
	help    help.Model
	keys    keyMap

	// Sync state
	syncing    bool
	lastResult *syncer.DrainResult
	lastErr    error
}

// statusTickMsg refreshes the status snapshot every second
type statusTickMsg struct{}

// shimmerTickMsg animates the header while syncing
type shimmerTickMsg struct{}

// syncDoneMsg carries the result of a manual drain
type syncDoneMsg struct {
	result syncer.DrainResult
	err    error
}

// NewStatusModel creates the status view for one group membership
func NewStatusModel(source StatusSource, group, user string) StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright))

	return StatusModel{
		source:  source,
		group:   group,
		user:    user,
		status:  source.Status(),
		spinner: sp,
		shimmer: NewShimmer(),
		help:    help.New(),
		keys:    defaultKeys,
	}
}

// Init starts the refresh ticker and the spinner
func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, statusTick())
}

func statusTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return statusTickMsg{} })
}

func shimmerTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return shimmerTickMsg{} })
}

func (m StatusModel) syncCmd() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		res, err := source.SyncNow(ctx)
		return syncDoneMsg{result: res, err: err}
	}
}

// Update handles messages
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusTickMsg:
		m.status = m.source.Status()
		return m, statusTick()

	case shimmerTickMsg:
		if !m.syncing {
			return m, nil
		}
		m.shimmer.Advance(len([]rune(m.headerText())))
		return m, shimmerTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case syncDoneMsg:
		m.syncing = false
		m.lastResult = &msg.result
		m.lastErr = msg.err
		m.status = m.source.Status()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Sync):
			if m.syncing {
				return m, nil
			}
			m.syncing = true
			m.lastErr = nil
			return m, tea.Batch(m.syncCmd(), shimmerTick())
		}
	}

	return m, nil
}

func (m StatusModel) headerText() string {
	return fmt.Sprintf("CREWCLOCK · %s · %s", m.group, m.user)
}

// View renders the status screen
func (m StatusModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var components []string

	header := m.headerText()
	if m.syncing {
		header = m.shimmer.Render(header)
	} else {
		header = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Bold(true).Render(header)
	}
	components = append(components, header)
	components = append(components, m.renderNetwork())

	components = append(components, renderBigNumber(m.status.Pending))
	pendingLabel := "pending uploads"
	if m.status.Pending == 1 {
		pendingLabel = "pending upload"
	}
	components = append(components, lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorSecondaryText)).
		Italic(true).
		Render(pendingLabel))

	components = append(components, m.renderLastDrain())

	content := strings.Join(components, "\n\n")
	contentHeight := m.height - 2

	panel := lipgloss.NewStyle().
		Width(m.width).
		Height(contentHeight).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)

	helpBar := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorHelpText)).
		Align(lipgloss.Center).
		Width(m.width).
		Render(m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, panel, helpBar)
}

func (m StatusModel) renderNetwork() string {
	label := "● Offline"
	color := ColorWarning
	if m.status.Online {
		label = "● Online"
		color = ColorSuccess
	}
	line := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render(label)
	if m.syncing {
		line = m.spinner.View() + " syncing  " + line
	}
	return line
}

func (m StatusModel) renderLastDrain() string {
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText))
	var lines []string

	if m.status.LastDrain.IsZero() {
		lines = append(lines, muted.Render("no drain yet"))
	} else {
		ago := formatDuration(time.Since(m.status.LastDrain))
		lines = append(lines, muted.Render(fmt.Sprintf("last drain %s ago · %d uploaded · %d remaining",
			ago, m.status.LastUploaded, m.status.LastRemaining)))
	}

	switch {
	case m.lastErr != nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("sync: "+m.lastErr.Error()))
	case m.status.LastDrainErr != nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render(m.status.LastDrainErr.Error()))
	case m.lastResult != nil:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess)).
			Render(fmt.Sprintf("✅ synced %d session(s)", m.lastResult.Uploaded)))
	}
	return strings.Join(lines, "\n")
}

// bigDigits is a 5-line block font for the pending counter
var bigDigits = map[rune][5]string{
	'0': {" ███ ", "█   █", "█   █", "█   █", " ███ "},
	'1': {"  █  ", " ██  ", "  █  ", "  █  ", "█████"},
	'2': {" ███ ", "█   █", "   █ ", "  █  ", "█████"},
	'3': {" ███ ", "█   █", "  ██ ", "█   █", " ███ "},
	'4': {"█   █", "█   █", "█████", "    █", "    █"},
	'5': {"█████", "█    ", "████ ", "    █", "████ "},
	'6': {" ███ ", "█    ", "████ ", "█   █", " ███ "},
	'7': {"█████", "    █", "   █ ", "  █  ", " █   "},
	'8': {" ███ ", "█   █", " ███ ", "█   █", " ███ "},
	'9': {" ███ ", "█   █", " ████", "    █", " ███ "},
}

// renderBigNumber draws n in the block font
func renderBigNumber(n int) string {
	var lines [5]strings.Builder
	for _, r := range strconv.Itoa(n) {
		art, ok := bigDigits[r]
		if !ok {
			continue
		}
		for i := range lines {
			lines[i].WriteString(art[i])
			lines[i].WriteString(" ")
		}
	}

	color := ColorAccentBright
	if n > 0 {
		color = ColorWarning
	}
	style := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)

	out := make([]string, len(lines))
	for i := range lines {
		out[i] = style.Render(lines[i].String())
	}
	return strings.Join(out, "\n")
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	} else if d.Minutes() >= 1 {
		return fmt.Sprintf("%.0fm", d.Minutes())
	} else {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
}
