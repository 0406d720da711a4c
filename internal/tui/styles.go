package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/amirbrooks/quicktask/internal/parse"
	"github.com/amirbrooks/quicktask/internal/store"
)

var (
	colorDim    = lipgloss.Color("#6B7280")
	colorAccent = lipgloss.Color("#818CF8")

	tagColors = map[string]lipgloss.Color{
		"orange": lipgloss.Color("#FB923C"),
		"green":  lipgloss.Color("#4ADE80"),
		"red":    lipgloss.Color("#F87171"),
		"purple": lipgloss.Color("#C084FC"),
		"blue":   lipgloss.Color("#60A5FA"),
	}

	tagIcons = map[string]string{
		parse.IconCalendar: "📅",
		parse.IconClock:    "🕒",
		parse.IconZap:      "⚡",
	}

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	promptStyle   = lipgloss.NewStyle().Foreground(colorAccent)
	dimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	doneStyle     = lipgloss.NewStyle().Foreground(colorDim).Strikethrough(true)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#27272A")).Bold(true)
	dividerStyle  = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))
	dueTodayStyle = lipgloss.NewStyle().Foreground(tagColors["green"])
	dueStyle      = lipgloss.NewStyle().Foreground(tagColors["orange"])
)

func renderTag(t parse.Tag) string {
	style := lipgloss.NewStyle().Bold(true).Foreground(tagColors[t.Color])
	icon := tagIcons[t.Icon]
	if icon == "" {
		return style.Render("[" + t.Label + "]")
	}
	return style.Render("[" + icon + " " + t.Label + "]")
}

func renderTags(tags []parse.Tag) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, renderTag(t))
	}
	return strings.Join(parts, " ")
}

func priorityMark(p store.Priority) string {
	switch p {
	case store.PriorityHigh:
		return lipgloss.NewStyle().Foreground(tagColors["red"]).Render("!!!")
	case store.PriorityMedium:
		return lipgloss.NewStyle().Foreground(tagColors["orange"]).Render("!! ")
	default:
		return dimStyle.Render("!  ")
	}
}

func renderDue(due string) string {
	if due == "" {
		return ""
	}
	if strings.Contains(due, "Today") {
		return dueTodayStyle.Render(due)
	}
	return dueStyle.Render(due)
}
