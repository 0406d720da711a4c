package view

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/amirbrooks/quicktask/internal/store"
)

const backlogDivider = "Backlog / Later"

// WriteTable renders the view as an aligned table, or as TSV when plain is set.
func WriteTable(out io.Writer, v View, plain bool) error {
	if plain {
		fmt.Fprintln(out, "ID\tST\tPRI\tDUE\tPROJECT\tSUBTASKS\tTITLE")
		for _, t := range v.Tasks {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.StatusAbbrev(), t.PriorityAbbrev(), dueOrDash(t.Due), t.Project, subtaskProgress(t), t.Title)
		}
		return nil
	}

	if len(v.Tasks) == 0 {
		_, err := fmt.Fprintf(out, "%s (0 items) - %s\n", v.Title(), v.EmptyMessage())
		return err
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s (%d items)\n", v.Title(), v.Len())
	fmt.Fprintln(w, "ID\tST\tPRI\tDUE\tPROJECT\tSUB\tTITLE")
	for i, t := range v.Tasks {
		if i == v.BacklogStart {
			fmt.Fprintf(w, "-- %s --\t\t\t\t\t\t\n", backlogDivider)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.StatusAbbrev(), t.PriorityAbbrev(), dueOrDash(t.Due), t.Project, subtaskProgress(t), t.Title)
	}
	return w.Flush()
}

func dueOrDash(due string) string {
	if strings.TrimSpace(due) == "" {
		return "-"
	}
	return due
}

func subtaskProgress(t store.Task) string {
	if len(t.Subtasks) == 0 {
		return "-"
	}
	done := 0
	for _, st := range t.Subtasks {
		if st.Status == store.StatusDone {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(t.Subtasks))
}
