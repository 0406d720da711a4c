// Package parse extracts due labels, priority and a cleaned title from the
// freeform text typed into the task input.
package parse

import (
	"regexp"
	"strings"

	"github.com/amirbrooks/quicktask/internal/store"
)

// Icon names used by tag pills.
const (
	IconCalendar = "calendar"
	IconClock    = "clock"
	IconZap      = "zap"
)

// Tag is a live preview of something recognized in the input.
type Tag struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// Result is what a submitted line turns into.
type Result struct {
	Title    string
	Due      string
	Priority store.Priority
}

type keyword struct {
	phrase string
	label  string
	color  string
	urgent bool
	re     *regexp.Regexp
}

// keywords is evaluated in order; a later due label overwrites an earlier one.
var keywords = []keyword{
	newKeyword("tomorrow", "Tomorrow", "orange", false),
	newKeyword("today", "Today", "green", false),
	newKeyword("urgent", "Urgent", "red", true),
	newKeyword("next week", "Next Week", "purple", false),
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2}(?::\d{2})?\s*(?:am|pm))\b`),
	regexp.MustCompile(`(?i)\b(?:at\s+)(\d{1,2}(?::\d{2})?)\b`),
}

func newKeyword(phrase, label, color string, urgent bool) keyword {
	return keyword{
		phrase: phrase,
		label:  label,
		color:  color,
		urgent: urgent,
		re:     regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`),
	}
}

// Tags returns the pills to show for the current input.
func Tags(text string) []Tag {
	var tags []Tag
	for _, kw := range keywords {
		if !kw.re.MatchString(text) {
			continue
		}
		icon := IconCalendar
		if kw.urgent {
			icon = IconZap
		}
		tags = append(tags, Tag{Label: kw.label, Color: kw.color, Icon: icon})
	}
	if t, _, ok := findTime(text); ok {
		tags = append(tags, Tag{Label: t, Color: "blue", Icon: IconClock})
	}
	return tags
}

// Extract strips recognized phrases from text and returns the remaining title
// with the due label and priority they imply.
func Extract(text string) Result {
	clean := text
	due := ""
	priority := store.PriorityLow

	for _, kw := range keywords {
		loc := kw.re.FindStringIndex(clean)
		if loc == nil {
			continue
		}
		clean = strings.TrimSpace(clean[:loc[0]] + clean[loc[1]:])
		if kw.urgent {
			priority = store.PriorityHigh
		} else {
			due = kw.label
		}
	}

	if t, loc, ok := findTime(clean); ok {
		clean = clean[:loc[0]] + clean[loc[1]:]
		if due == "" {
			due = "Today @ " + t
		} else {
			due = due + " @ " + t
		}
	}

	return Result{
		Title:    collapseSpaces(clean),
		Due:      due,
		Priority: priority,
	}
}

// findTime returns the upper-cased time captured by the first matching pattern
// and the span of the whole match.
func findTime(text string) (string, []int, bool) {
	for _, re := range timePatterns {
		m := re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		return strings.ToUpper(text[m[2]:m[3]]), m[:2], true
	}
	return "", nil, false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
