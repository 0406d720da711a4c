package keyboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amirbrooks/quicktask/internal/store"
)

type fakeMutator struct {
	toggled  []string
	archived []string
	fail     error
}

func (f *fakeMutator) ToggleTask(id string) (store.Task, error) {
	f.toggled = append(f.toggled, id)
	return store.Task{ID: id}, f.fail
}

func (f *fakeMutator) ArchiveTask(id string) (store.Task, error) {
	f.archived = append(f.archived, id)
	return store.Task{ID: id, Archived: true}, f.fail
}

func list(ids ...string) []store.Task {
	out := make([]store.Task, len(ids))
	for i, id := range ids {
		out[i] = store.Task{ID: id}
	}
	return out
}

func TestDownFromInputSelectsFirstAndUpReturns(t *testing.T) {
	c := New(&fakeMutator{})
	tasks := list("a", "b", "c")

	assert.True(t, c.InputFocused())
	assert.True(t, c.Handle(KeyDown, tasks))
	assert.Equal(t, 0, c.Selected())

	assert.True(t, c.Handle(KeyUp, tasks))
	assert.Equal(t, InputFocused, c.Selected())
}

func TestDownFromInputWithEmptyListStaysInInput(t *testing.T) {
	c := New(&fakeMutator{})
	c.Handle(KeyDown, nil)
	assert.Equal(t, InputFocused, c.Selected())
}

func TestInputFocusedLeavesOtherKeysToInput(t *testing.T) {
	m := &fakeMutator{}
	c := New(m)
	tasks := list("a")
	for _, k := range []Key{KeyUp, KeySpace, KeyBackspace, KeyDelete, KeyEscape} {
		assert.False(t, c.Handle(k, tasks), "key %d", k)
	}
	assert.Empty(t, m.toggled)
	assert.Empty(t, m.archived)
}

func TestDownClampsAtEnd(t *testing.T) {
	c := New(&fakeMutator{})
	tasks := list("a", "b", "c")
	for i := 0; i < 6; i++ {
		c.Handle(KeyDown, tasks)
	}
	assert.Equal(t, 2, c.Selected())

	c.Handle(KeyUp, tasks)
	assert.Equal(t, 1, c.Selected())
}

func TestSpaceTogglesSelectedTask(t *testing.T) {
	m := &fakeMutator{}
	c := New(m)
	tasks := list("a", "b")
	c.Handle(KeyDown, tasks)
	c.Handle(KeyDown, tasks)
	c.Handle(KeySpace, tasks)
	assert.Equal(t, []string{"b"}, m.toggled)
	assert.Equal(t, 1, c.Selected())
}

func TestDeleteArchivesAndClampsSelection(t *testing.T) {
	m := &fakeMutator{}
	c := New(m)
	tasks := list("a", "b", "c")
	c.Select(2, len(tasks))

	c.Handle(KeyBackspace, tasks)
	assert.Equal(t, []string{"c"}, m.archived)
	assert.Equal(t, 1, c.Selected())

	c.Select(0, 1)
	c.Handle(KeyDelete, list("only"))
	assert.Equal(t, []string{"c", "only"}, m.archived)
	assert.Equal(t, InputFocused, c.Selected())
}

func TestDeleteInMiddleKeepsIndex(t *testing.T) {
	c := New(&fakeMutator{})
	tasks := list("a", "b", "c")
	c.Select(1, len(tasks))
	c.Handle(KeyDelete, tasks)
	assert.Equal(t, 1, c.Selected())
}

func TestEscapeAndChordReturnToInput(t *testing.T) {
	c := New(&fakeMutator{})
	tasks := list("a", "b")
	c.Select(1, len(tasks))
	assert.True(t, c.Handle(KeyEscape, tasks))
	assert.True(t, c.InputFocused())

	assert.True(t, c.Handle(KeyFocusInput, tasks))
	assert.True(t, c.InputFocused())

	c.Select(1, len(tasks))
	assert.True(t, c.Handle(KeyFocusInput, tasks))
	assert.True(t, c.InputFocused())
}

func TestOnSelectFiresForListIndexes(t *testing.T) {
	var seen []int
	c := New(&fakeMutator{})
	c.OnSelect = func(i int) { seen = append(seen, i) }
	tasks := list("a", "b", "c")

	c.Handle(KeyDown, tasks)
	c.Handle(KeyDown, tasks)
	c.Handle(KeyUp, tasks)
	c.Handle(KeyUp, tasks)
	assert.Equal(t, []int{0, 1, 0}, seen)
}

func TestClamp(t *testing.T) {
	c := New(&fakeMutator{})
	c.Select(4, 5)
	c.Clamp(2)
	assert.Equal(t, 1, c.Selected())
	c.Clamp(0)
	assert.Equal(t, InputFocused, c.Selected())
}

func TestMutationErrorsAreReported(t *testing.T) {
	diskFull := errors.New("disk full")
	m := &fakeMutator{fail: diskFull}
	c := New(m)
	tasks := list("a", "b")
	c.Handle(KeyDown, tasks)
	c.Handle(KeyDown, tasks)
	assert.NoError(t, c.Err())

	c.Handle(KeySpace, tasks)
	assert.ErrorIs(t, c.Err(), diskFull)

	// A failed archive leaves the selection where it was.
	c.Handle(KeyDelete, tasks)
	assert.ErrorIs(t, c.Err(), diskFull)
	assert.Equal(t, 1, c.Selected())

	c.Handle(KeyUp, tasks)
	assert.NoError(t, c.Err())
}
