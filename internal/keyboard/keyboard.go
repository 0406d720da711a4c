// Package keyboard tracks list selection and turns navigation keys into task
// mutations. It knows nothing about the terminal; the UI translates its own key
// events into Key values.
package keyboard

import "github.com/amirbrooks/quicktask/internal/store"

// InputFocused is the selection value meaning the text input has focus.
const InputFocused = -1

type Key int

const (
	KeyUp Key = iota
	KeyDown
	KeySpace
	KeyBackspace
	KeyDelete
	KeyEscape
	// KeyFocusInput is the global ctrl/cmd+K chord.
	KeyFocusInput
)

// Mutator is the subset of the task store the controller drives.
type Mutator interface {
	ToggleTask(id string) (store.Task, error)
	ArchiveTask(id string) (store.Task, error)
}

type Controller struct {
	selected int
	tasks    Mutator
	err      error
	// OnSelect is called whenever the selection moves to a list index.
	OnSelect func(index int)
}

func New(tasks Mutator) *Controller {
	return &Controller{selected: InputFocused, tasks: tasks}
}

// Selected returns the selected index or InputFocused.
func (c *Controller) Selected() int { return c.selected }

func (c *Controller) InputFocused() bool { return c.selected == InputFocused }

// Select moves the selection directly, e.g. after a mouse click.
func (c *Controller) Select(index int, displayed int) {
	if index < 0 || index >= displayed {
		c.selected = InputFocused
		return
	}
	c.setSelected(index)
}

// Clamp keeps the selection inside a list that shrank underneath it.
func (c *Controller) Clamp(displayed int) {
	if c.selected >= displayed {
		c.Select(displayed-1, displayed)
	}
}

// Handle applies key to the current state and reports whether it was consumed.
// Keys that are not consumed belong to the text input.
func (c *Controller) Handle(key Key, displayed []store.Task) bool {
	c.err = nil
	if key == KeyFocusInput {
		c.selected = InputFocused
		return true
	}

	if c.selected == InputFocused {
		if key == KeyDown {
			if len(displayed) > 0 {
				c.setSelected(0)
			}
			return true
		}
		return false
	}

	switch key {
	case KeyDown:
		next := c.selected + 1
		if next > len(displayed)-1 {
			next = len(displayed) - 1
		}
		if next < 0 {
			c.selected = InputFocused
			return true
		}
		c.setSelected(next)
	case KeyUp:
		if c.selected == 0 {
			c.selected = InputFocused
			return true
		}
		prev := c.selected - 1
		if prev < 0 {
			prev = 0
		}
		c.setSelected(prev)
	case KeySpace:
		if t, ok := c.current(displayed); ok {
			_, c.err = c.tasks.ToggleTask(t.ID)
		}
	case KeyBackspace, KeyDelete:
		t, ok := c.current(displayed)
		if !ok {
			return true
		}
		if _, err := c.tasks.ArchiveTask(t.ID); err != nil {
			c.err = err
			return true
		}
		next := c.selected
		if next > len(displayed)-2 {
			next = len(displayed) - 2
		}
		if next < 0 {
			c.selected = InputFocused
			return true
		}
		c.setSelected(next)
	case KeyEscape:
		c.selected = InputFocused
	default:
		return false
	}
	return true
}

// Err is the error from the store mutation made by the last Handle call.
func (c *Controller) Err() error { return c.err }

func (c *Controller) current(displayed []store.Task) (store.Task, bool) {
	if c.selected < 0 || c.selected >= len(displayed) {
		return store.Task{}, false
	}
	return displayed[c.selected], true
}

func (c *Controller) setSelected(i int) {
	c.selected = i
	if c.OnSelect != nil {
		c.OnSelect(i)
	}
}
