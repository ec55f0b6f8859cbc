package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/balkashynov/crewclock/internal/models"
)

// RunStatusTUI shows the live sync status until the user quits
func RunStatusTUI(source StatusSource, group, user string) error {
	p := tea.NewProgram(NewStatusModel(source, group, user), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunSessionForm asks for a session interactively. It returns nil when the
// user cancelled.
func RunSessionForm() (*models.SessionRecord, error) {
	p := tea.NewProgram(NewSessionFormModel(), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	if m, ok := finalModel.(SessionFormModel); ok {
		if session, done := m.Session(); done {
			return session, nil
		}
	}
	fmt.Println("❌ Session entry cancelled.")
	return nil, nil
}

// RunSessionList opens the local session browser
func RunSessionList(sessions []models.SessionRecord) error {
	p := tea.NewProgram(NewSessionListModel(sessions), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
