package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestStore(t *testing.T, delay time.Duration) (*Store, *MemoryBackend) {
	t.Helper()
	b := NewMemoryBackend()
	s, err := Open(b, Options{ArchiveDelay: delay})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, b
}

func ids(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestOpenSeedsWhenNothingStored(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	assert.Equal(t, []string{"1", "2", "3"}, ids(s.Tasks()))
}

func TestOpenFallsBackToSeedOnCorruptData(t *testing.T) {
	b := NewMemoryBackend()
	require.NoError(t, b.Save(StorageKey, []byte("{not json")))

	s, err := Open(b, Options{})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, []string{"1", "2", "3"}, ids(s.Tasks()))
}

func TestAddTaskPrependsToInbox(t *testing.T) {
	s, b := newTestStore(t, time.Hour)

	task, err := s.AddTask("  Call John ", "Today @ 2PM", PriorityHigh)
	require.NoError(t, err)

	tasks := s.Tasks()
	require.Len(t, tasks, 4)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.Equal(t, "Call John", tasks[0].Title)
	assert.Equal(t, StatusTodo, tasks[0].Status)
	assert.Equal(t, DefaultProject, tasks[0].Project)
	assert.Equal(t, "Today @ 2PM", tasks[0].Due)
	assert.NotNil(t, tasks[0].Subtasks)
	assert.False(t, tasks[0].Archived)

	stored, err := b.Load(StorageKey)
	require.NoError(t, err)
	assert.Contains(t, string(stored), task.ID)
}

func TestAddTaskRejectsBlankTitle(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	_, err := s.AddTask("   ", "", PriorityLow)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Len(t, s.Tasks(), 3)
}

func TestAddTaskIDsAreUnique(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		task, err := s.AddTask("task", "", PriorityLow)
		require.NoError(t, err)
		require.False(t, seen[task.ID], "duplicate id %s", task.ID)
		seen[task.ID] = true
	}
}

func TestToggleTaskArchivesAfterDelay(t *testing.T) {
	s, _ := newTestStore(t, 20*time.Millisecond)

	task, err := s.ToggleTask("2")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, task.Status)
	assert.False(t, task.Archived)

	require.Eventually(t, func() bool {
		got, _ := s.Get("2")
		return got.Archived
	}, time.Second, 5*time.Millisecond)
}

func TestToggleBackBeforeDelayDoesNotArchive(t *testing.T) {
	s, _ := newTestStore(t, 40*time.Millisecond)

	_, err := s.ToggleTask("2")
	require.NoError(t, err)
	task, err := s.ToggleTask("2")
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, task.Status)

	time.Sleep(120 * time.Millisecond)
	got, ok := s.Get("2")
	require.True(t, ok)
	assert.False(t, got.Archived)
	assert.Equal(t, StatusTodo, got.Status)
}

func TestToggleUnknownTaskIsNoop(t *testing.T) {
	s, b := newTestStore(t, time.Hour)
	before := s.Tasks()

	_, err := s.ToggleTask("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, before, s.Tasks())

	_, err = b.Load(StorageKey)
	assert.True(t, errors.Is(err, ErrNotFound), "no-op must not persist")
}

func TestToggleSubtask(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	added, err := s.AppendSubtasks("1", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, added, 2)

	sub, err := s.ToggleSubtask("1", added[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, sub.Status)

	got, _ := s.Get("1")
	assert.Equal(t, StatusTodo, got.Subtasks[0].Status)
	assert.Equal(t, StatusDone, got.Subtasks[1].Status)

	_, err = s.ToggleSubtask("1", "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.ToggleSubtask("nope", added[0].ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestArchiveTaskIsImmediateAndCancelsPending(t *testing.T) {
	s, _ := newTestStore(t, 30*time.Millisecond)

	_, err := s.ToggleTask("3")
	require.NoError(t, err)
	task, err := s.ArchiveTask("3")
	require.NoError(t, err)
	assert.True(t, task.Archived)

	s.mu.Lock()
	_, pending := s.pending["3"]
	s.mu.Unlock()
	assert.False(t, pending)
}

func TestReorderAll(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	require.NoError(t, s.ReorderAll([]string{"3", "1", "2"}))
	assert.Equal(t, []string{"3", "1", "2"}, ids(s.Tasks()))

	err := s.ReorderAll([]string{"3", "3", "2"})
	assert.True(t, errors.Is(err, ErrInvalid))
	err = s.ReorderAll([]string{"3", "1"})
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Equal(t, []string{"3", "1", "2"}, ids(s.Tasks()))
}

func TestReorderAllKeepsFields(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	before := map[string]Task{}
	for _, task := range s.Tasks() {
		before[task.ID] = task
	}
	require.NoError(t, s.ReorderAll([]string{"2", "3", "1"}))
	for _, task := range s.Tasks() {
		assert.Equal(t, before[task.ID], task)
	}
}

func TestReorderBySeesCurrentCollection(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	added, err := s.AddTask("newest", "", PriorityLow)
	require.NoError(t, err)

	var seen []string
	require.NoError(t, s.ReorderBy(func(tasks []Task) []string {
		seen = ids(tasks)
		return []string{"2", "1", "3", added.ID}
	}))
	assert.Equal(t, []string{added.ID, "1", "2", "3"}, seen)
	assert.Equal(t, []string{"2", "1", "3", added.ID}, ids(s.Tasks()))

	err = s.ReorderBy(func(tasks []Task) []string { return []string{"1"} })
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Equal(t, []string{"2", "1", "3", added.ID}, ids(s.Tasks()))
}

func TestMove(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	idx, err := s.Move("3", -1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, []string{"1", "3", "2"}, ids(s.Tasks()))

	idx, err = s.Move("1", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, []string{"3", "2", "1"}, ids(s.Tasks()))
}

func TestAppendSubtasks(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	added, err := s.AppendSubtasks("2", []string{"Book room", " ", "Send agenda"})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.NotEqual(t, added[0].ID, added[1].ID)

	got, _ := s.Get("2")
	require.Len(t, got.Subtasks, 2)
	assert.Equal(t, "Book room", got.Subtasks[0].Title)
	assert.Equal(t, StatusTodo, got.Subtasks[1].Status)

	_, err = s.AppendSubtasks("missing", []string{"x"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolve(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	a, err := s.AddTask("first", "", PriorityLow)
	require.NoError(t, err)

	got, err := s.Resolve(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = s.Resolve(a.ID[:len(a.ID)-2])
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = s.AddTask("second", "", PriorityLow)
	require.NoError(t, err)
	_, err = s.Resolve("tsk_")
	var conflict *MatchConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Len(t, conflict.Matches, 2)

	_, err = s.Resolve("zzz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	s, err := Open(b, Options{ArchiveDelay: -1})
	require.NoError(t, err)
	_, err = s.AddTask("Call John", "Today @ 2PM", PriorityHigh)
	require.NoError(t, err)
	_, err = s.AppendSubtasks("2", []string{"agenda"})
	require.NoError(t, err)
	_, err = s.ArchiveTask("3")
	require.NoError(t, err)
	want := s.Tasks()
	require.NoError(t, s.Close())

	assert.FileExists(t, filepath.Join(dir, StorageKey+".json"))

	b2, err := NewFileBackend(dir)
	require.NoError(t, err)
	reopened, err := Open(b2, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	if diff := cmp.Diff(want, reopened.Tasks()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)

	s, err := Open(b, Options{})
	require.NoError(t, err)
	require.NoError(t, s.ReorderAll([]string{"2", "1", "3"}))
	_, err = s.AddTask("written to sqlite", "Tomorrow", PriorityLow)
	require.NoError(t, err)
	want := s.Tasks()
	require.NoError(t, s.Close())

	b2, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	reopened, err := Open(b2, Options{})
	require.NoError(t, err)
	defer reopened.Close()
	if diff := cmp.Diff(want, reopened.Tasks()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAcceptsNullDue(t *testing.T) {
	tasks, err := decodeTasks([]byte(`[{"id":"a","title":"x","status":"todo","due":null,"priority":"Low","project":"Inbox","subtasks":null,"archived":false}]`))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "", tasks[0].Due)
	assert.NotNil(t, tasks[0].Subtasks)
}

func TestReloadPicksUpExternalWrite(t *testing.T) {
	b := NewMemoryBackend()
	s, err := Open(b, Options{})
	require.NoError(t, err)
	defer s.Close()

	changes := 0
	s.SetOnChange(func() { changes++ })

	changed, err := s.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, b.Save(StorageKey, []byte(`[{"id":"x","title":"external","status":"todo","priority":"Low","project":"Inbox","subtasks":[],"archived":false}]`)))
	changed, err = s.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"x"}, ids(s.Tasks()))
	assert.Equal(t, 1, changes)
}

func TestOnChangeFiresAfterMutation(t *testing.T) {
	calls := 0
	s, err := Open(NewMemoryBackend(), Options{OnChange: func() { calls++ }})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddTask("x", "", PriorityLow)
	require.NoError(t, err)
	_, _ = s.ToggleTask("missing")
	assert.Equal(t, 1, calls)
}

func TestCloseAppliesPendingArchive(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewMemoryBackend()
	s, err := Open(b, Options{ArchiveDelay: time.Hour})
	require.NoError(t, err)
	_, err = s.ToggleTask("1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(b, Options{})
	require.NoError(t, err)
	got, ok := reopened.Get("1")
	require.True(t, ok)
	assert.True(t, got.Archived)
}
