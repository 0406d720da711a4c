// Package view partitions the task collection into what the list shows.
package view

import (
	"fmt"
	"strings"

	"github.com/amirbrooks/quicktask/internal/store"
)

type Mode string

const (
	ModeFocus   Mode = "focus"
	ModeAll     Mode = "all"
	ModeArchive Mode = "archive"
)

func ParseMode(s string) (Mode, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "", "focus":
		return ModeFocus, nil
	case "all":
		return ModeAll, nil
	case "archive", "archived", "history":
		return ModeArchive, nil
	default:
		return "", fmt.Errorf("unknown view %q (use focus|all|archive)", s)
	}
}

// View is the displayed ordering for one mode.
type View struct {
	Mode  Mode
	Tasks []store.Task
	// FocusCount is the number of leading focus tasks in ModeFocus.
	FocusCount int
	// BacklogStart is the index of the first backlog task when a divider
	// should be drawn, or -1.
	BacklogStart int
}

// InFocus reports whether an active task belongs to the focus subset.
func InFocus(t store.Task) bool {
	return strings.Contains(t.Due, "Today") ||
		t.Priority == store.PriorityHigh ||
		t.Project == store.DefaultProject
}

func Apply(tasks []store.Task, mode Mode) View {
	v := View{Mode: mode, BacklogStart: -1}
	switch mode {
	case ModeArchive:
		for _, t := range tasks {
			if t.Archived {
				v.Tasks = append(v.Tasks, t)
			}
		}
	case ModeAll:
		v.Tasks = Active(tasks)
	default:
		v.Mode = ModeFocus
		var focus, backlog []store.Task
		for _, t := range Active(tasks) {
			if InFocus(t) {
				focus = append(focus, t)
			} else {
				backlog = append(backlog, t)
			}
		}
		v.FocusCount = len(focus)
		if len(focus) > 0 && len(backlog) > 0 {
			v.BacklogStart = len(focus)
		}
		v.Tasks = append(focus, backlog...)
	}
	return v
}

// Active returns the non-archived tasks in stored order.
func Active(tasks []store.Task) []store.Task {
	var out []store.Task
	for _, t := range tasks {
		if !t.Archived {
			out = append(out, t)
		}
	}
	return out
}

func (v View) Len() int { return len(v.Tasks) }

// Title is the section header for the view.
func (v View) Title() string {
	switch v.Mode {
	case ModeArchive:
		return "Archive"
	case ModeAll:
		return "All"
	default:
		return "Focus"
	}
}

// EmptyMessage is shown when the view has no tasks.
func (v View) EmptyMessage() string {
	if v.Mode == ModeArchive {
		return "No history yet"
	}
	return "All caught up"
}
