package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/balkashynov/crewclock/internal/aggregate"
	"github.com/balkashynov/crewclock/internal/parser"
)

// ReportView is everything one report screen shows
type ReportView struct {
	Title          string
	Subtitle       string
	Tasks          []aggregate.TaskSummary
	CompletedCount int
	Width          int
}

// RenderReport draws the merged task summaries as a card
func RenderReport(v ReportView) string {
	width := v.Width
	if width <= 0 {
		width = 80
	}
	inner := width - 6
	if inner < 40 {
		inner = 40
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color(ColorPrimaryText)).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccentMain)).
		Padding(0, 1)
	b.WriteString(titleStyle.Render(v.Title))
	b.WriteString("\n")
	if v.Subtitle != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Italic(true).Render(v.Subtitle))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(v.Tasks) == 0 {
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).Render("No sessions in this window."))
		b.WriteString("\n")
		return b.String()
	}

	var total float64
	for _, task := range v.Tasks {
		total += task.TotalSeconds
		b.WriteString(renderTaskRow(task, inner))
		b.WriteString("\n")
	}

	separator := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder)).
		Render(strings.Repeat("─", min(inner, 60)))
	b.WriteString(separator)
	b.WriteString("\n")

	totals := fmt.Sprintf("⏱️  %s across %d task(s) · ✅ %d completed",
		parser.FormatSeconds(total), len(v.Tasks), v.CompletedCount)
	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Bold(true).Render(totals))
	b.WriteString("\n")
	return b.String()
}

func renderTaskRow(task aggregate.TaskSummary, width int) string {
	icon := "○"
	nameColor := ColorPrimaryText
	if task.IsCompleted {
		icon = "✅"
		nameColor = ColorSuccess
	}

	name := task.TaskName
	if name == "" {
		name = task.Key
	}
	nameWidth := width - 14
	if lipgloss.Width(name) > nameWidth {
		name = truncate(name, nameWidth)
	}

	line := fmt.Sprintf("%s %s %s",
		icon,
		lipgloss.NewStyle().Foreground(lipgloss.Color(nameColor)).Bold(true).Width(nameWidth).Render(name),
		lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccentBright)).Render(parser.FormatSeconds(task.TotalSeconds)))

	lines := []string{line}

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))
	for _, app := range task.AppBreakdown() {
		lines = append(lines, muted.Render(fmt.Sprintf("    • %s %s", app.Name, parser.FormatSeconds(app.Seconds))))
	}
	if task.Comment != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDisabledText)).Italic(true).
			Render("    💬 "+truncate(task.Comment, width-8)))
	}
	return strings.Join(lines, "\n")
}

// RenderGroupReport draws one report section per user, users in name order
func RenderGroupReport(groupName string, byUser map[string][]aggregate.TaskSummary, completed map[string]int, width int) string {
	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Strings(users)

	sections := make([]string, 0, len(users))
	for _, user := range users {
		sections = append(sections, RenderReport(ReportView{
			Title:          "👤 " + user,
			Subtitle:       groupName,
			Tasks:          byUser[user],
			CompletedCount: completed[user],
			Width:          width,
		}))
	}
	return strings.Join(sections, "\n")
}

// RenderMembers lists group members, marking the current user
func RenderMembers(groupName string, members []string, current string) string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright)).
		Render(fmt.Sprintf("👥 %s (%d)", groupName, len(members))))
	b.WriteString("\n")
	for _, name := range members {
		marker := "  "
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimaryText))
		if name == current {
			marker = "▸ "
			style = style.Foreground(lipgloss.Color(ColorAccentMain)).Bold(true)
		}
		b.WriteString(marker + style.Render(name) + "\n")
	}
	return b.String()
}

// truncate shortens s to at most width cells, ending in an ellipsis
func truncate(s string, width int) string {
	if width <= 1 {
		return "…"
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
