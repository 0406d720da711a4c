package view

import (
	"fmt"
	"strings"

	"github.com/amirbrooks/quicktask/internal/store"
)

const telegramMaxChars = 3800

func IsTelegramFormat(format string) bool {
	return strings.ToLower(strings.TrimSpace(format)) == "telegram"
}

func trimTelegramOutput(s string) string {
	s = strings.TrimRight(s, "\n")
	runes := []rune(s)
	if len(runes) <= telegramMaxChars {
		return s
	}
	suffix := "\n… (truncated)"
	suffixRunes := []rune(suffix)
	limit := telegramMaxChars - len(suffixRunes)
	if limit < 1 {
		return string(runes[:telegramMaxChars])
	}
	return string(runes[:limit]) + suffix
}

func telegramPriorityEmoji(p store.Priority) string {
	switch p {
	case store.PriorityHigh:
		return "🔴"
	case store.PriorityMedium:
		return "🟠"
	default:
		return ""
	}
}

func telegramHeaderEmoji(mode Mode) string {
	switch mode {
	case ModeArchive:
		return "🗄️"
	case ModeAll:
		return "📋"
	default:
		return "🎯"
	}
}

func cleanTaskTitle(title string) string {
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.TrimSpace(title)
	if title == "" {
		return "(untitled)"
	}
	return title
}

func telegramTaskLine(t store.Task) string {
	var b strings.Builder
	if t.Status == store.StatusDone {
		b.WriteString("✅ ")
	} else {
		b.WriteString("• ")
	}
	if pri := telegramPriorityEmoji(t.Priority); pri != "" {
		b.WriteString(pri)
		b.WriteString(" ")
	}
	b.WriteString(cleanTaskTitle(t.Title))
	if project := strings.TrimSpace(t.Project); project != "" && project != store.DefaultProject {
		b.WriteString(" — ")
		b.WriteString(project)
	}
	if due := strings.TrimSpace(t.Due); due != "" {
		b.WriteString(" (")
		b.WriteString(due)
		b.WriteString(")")
	}
	b.WriteString("\n")
	for _, st := range t.Subtasks {
		mark := "◦"
		if st.Status == store.StatusDone {
			mark = "✓"
		}
		b.WriteString(fmt.Sprintf("    %s %s\n", mark, cleanTaskTitle(st.Title)))
	}
	return b.String()
}

// RenderTelegram renders the view as a message that fits a single Telegram post.
func RenderTelegram(v View) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s (%d)\n\n", telegramHeaderEmoji(v.Mode), v.Title(), v.Len()))
	if v.Len() == 0 {
		b.WriteString(v.EmptyMessage())
		b.WriteString(".\n")
		return trimTelegramOutput(b.String())
	}
	for i, t := range v.Tasks {
		if i == v.BacklogStart {
			b.WriteString("\n🗂 ")
			b.WriteString(backlogDivider)
			b.WriteString("\n")
		}
		b.WriteString(telegramTaskLine(t))
	}
	return trimTelegramOutput(b.String())
}
