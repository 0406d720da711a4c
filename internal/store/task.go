package store

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusTodo Status = "todo"
	StatusDone Status = "done"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// DefaultProject is the project assigned to tasks created from the input line.
const DefaultProject = "Inbox"

type Subtask struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

type Task struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Status   Status    `json:"status"`
	Due      string    `json:"due,omitempty"`
	Priority Priority  `json:"priority"`
	Project  string    `json:"project"`
	Subtasks []Subtask `json:"subtasks"`
	Archived bool      `json:"archived"`
}

// Done reports whether the task is completed.
func (t Task) Done() bool { return t.Status == StatusDone }

func (t Task) clone() Task {
	out := t
	out.Subtasks = make([]Subtask, len(t.Subtasks))
	copy(out.Subtasks, t.Subtasks)
	return out
}

func (s Status) flip() Status {
	if s == StatusDone {
		return StatusTodo
	}
	return StatusDone
}

// ParsePriority accepts the stored spelling and the usual short forms.
func ParsePriority(p string) (Priority, bool) {
	switch strings.TrimSpace(strings.ToLower(p)) {
	case "low", "l":
		return PriorityLow, true
	case "medium", "med", "m", "normal", "n":
		return PriorityMedium, true
	case "high", "h", "urgent", "u":
		return PriorityHigh, true
	default:
		return "", false
	}
}

func (t Task) StatusAbbrev() string {
	switch t.Status {
	case StatusTodo:
		return "o"
	case StatusDone:
		return "✓"
	default:
		return "?"
	}
}

func (t Task) PriorityAbbrev() string {
	switch t.Priority {
	case PriorityLow:
		return "L"
	case PriorityMedium:
		return "M"
	case PriorityHigh:
		return "H"
	default:
		return "?"
	}
}

func (t Task) IDShort(n int) string {
	if len(t.ID) <= n {
		return t.ID
	}
	return t.ID[:n]
}

func (t Task) RenderHuman() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s\n", t.Title))
	b.WriteString(fmt.Sprintf("ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf("Project: %s\n", t.Project))
	b.WriteString(fmt.Sprintf("Status: %s\n", t.Status))
	b.WriteString(fmt.Sprintf("Priority: %s\n", t.Priority))
	if t.Due != "" {
		b.WriteString(fmt.Sprintf("Due: %s\n", t.Due))
	}
	if t.Archived {
		b.WriteString("Archived: yes\n")
	}
	if len(t.Subtasks) > 0 {
		b.WriteString("\nSubtasks:\n")
		for _, st := range t.Subtasks {
			mark := " "
			if st.Status == StatusDone {
				mark = "x"
			}
			b.WriteString(fmt.Sprintf("  [%s] %s  (%s)\n", mark, st.Title, st.ID))
		}
	}
	return b.String()
}

// SeedTasks returns the collection used when nothing has been persisted yet.
func SeedTasks() []Task {
	return []Task{
		{
			ID:       "1",
			Title:    "Review Q3 Design Specs",
			Status:   StatusTodo,
			Due:      "Today",
			Priority: PriorityHigh,
			Project:  "Design",
			Subtasks: []Subtask{},
		},
		{
			ID:       "2",
			Title:    "Sync with engineering team",
			Status:   StatusTodo,
			Due:      "Tomorrow",
			Priority: PriorityMedium,
			Project:  "Core",
			Subtasks: []Subtask{},
		},
		{
			ID:       "3",
			Title:    "Draft release notes for v2.4",
			Status:   StatusTodo,
			Priority: PriorityLow,
			Project:  "Marketing",
			Subtasks: []Subtask{},
		},
	}
}
