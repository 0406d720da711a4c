package store

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type randReader struct{}

func (randReader) Read(p []byte) (int, error) { return rand.Read(p) }

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	timeNow     = func() time.Time { return time.Now().UTC() }
	afterFunc   = time.AfterFunc

	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(randReader{}, 0)
)

// StorageKey is the backend key holding the serialized task array.
const StorageKey = "tasks"

// DefaultArchiveDelay is how long a completed task stays visible before it is archived.
const DefaultArchiveDelay = 1200 * time.Millisecond

// MatchConflictError provides details when a selector matches multiple tasks.
// It still satisfies errors.Is(err, ErrConflict).
type MatchConflictError struct {
	Reason  string
	Matches []Task
}

func (e *MatchConflictError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "conflict"
	}
	return "conflict: " + e.Reason
}

func (e *MatchConflictError) Is(target error) bool {
	return target == ErrConflict
}

type Options struct {
	// ArchiveDelay defaults to DefaultArchiveDelay. A negative value disables
	// archive-after-complete.
	ArchiveDelay time.Duration
	Logger       *zap.Logger
	// OnChange is called after every committed mutation, outside the store lock.
	OnChange func()
}

// pendingArchive identifies one scheduled archive so a stale timer can tell it
// has been superseded.
type pendingArchive struct {
	timer *time.Timer
}

// Store is the ordered task collection. Every mutation is persisted to the
// backend before the method returns.
type Store struct {
	mu           sync.Mutex
	backend      Backend
	tasks        []Task
	pending      map[string]*pendingArchive
	lastSaved    []byte
	archiveDelay time.Duration
	log          *zap.Logger
	onChange     func()
}

// Open restores the collection from backend, falling back to SeedTasks when
// nothing is stored or the stored value cannot be parsed.
func Open(backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalid)
	}
	s := &Store{
		backend:      backend,
		pending:      map[string]*pendingArchive{},
		archiveDelay: opts.ArchiveDelay,
		log:          opts.Logger,
		onChange:     opts.OnChange,
	}
	if s.archiveDelay == 0 {
		s.archiveDelay = DefaultArchiveDelay
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}

	data, err := backend.Load(StorageKey)
	switch {
	case errors.Is(err, ErrNotFound):
		s.tasks = SeedTasks()
	case err != nil:
		return nil, fmt.Errorf("load tasks: %w", err)
	default:
		tasks, derr := decodeTasks(data)
		if derr != nil {
			s.log.Warn("stored tasks unreadable, using seed data", zap.Error(derr))
			s.tasks = SeedTasks()
		} else {
			s.tasks = tasks
			s.lastSaved = data
		}
	}
	return s, nil
}

// SetOnChange replaces the change callback.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Tasks returns a copy of the collection in stored order.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.clone()
	}
	return out
}

func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return Task{}, false
	}
	return s.tasks[i].clone(), true
}

// Resolve finds a task by exact id or by a unique case-insensitive id prefix.
func (s *Store) Resolve(selector string) (Task, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return Task{}, ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(selector); i >= 0 {
		return s.tasks[i].clone(), nil
	}
	prefix := strings.ToUpper(selector)
	var matches []Task
	for _, t := range s.tasks {
		if strings.HasPrefix(strings.ToUpper(t.ID), prefix) {
			matches = append(matches, t.clone())
		}
	}
	switch len(matches) {
	case 0:
		return Task{}, fmt.Errorf("%w: task %q", ErrNotFound, selector)
	case 1:
		return matches[0], nil
	default:
		return Task{}, &MatchConflictError{Reason: "prefix", Matches: matches}
	}
}

// AddTask creates a todo task in the Inbox project at the front of the collection.
func (s *Store) AddTask(title, due string, priority Priority) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if priority == "" {
		priority = PriorityLow
	}
	t := Task{
		ID:       "tsk_" + newULID(),
		Title:    title,
		Status:   StatusTodo,
		Due:      strings.TrimSpace(due),
		Priority: priority,
		Project:  DefaultProject,
		Subtasks: []Subtask{},
	}

	s.mu.Lock()
	s.tasks = append([]Task{t}, s.tasks...)
	err := s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return t.clone(), err
}

// ToggleTask flips the task between todo and done. Completing a task schedules
// its archive; reopening it cancels a pending archive.
func (s *Store) ToggleTask(id string) (Task, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("%w: task %q", ErrNotFound, id)
	}
	s.tasks[i].Status = s.tasks[i].Status.flip()
	if s.tasks[i].Status == StatusDone {
		s.scheduleArchiveLocked(id)
	} else {
		s.cancelArchiveLocked(id)
	}
	out := s.tasks[i].clone()
	err := s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return out, err
}

func (s *Store) ToggleSubtask(parentID, subtaskID string) (Subtask, error) {
	s.mu.Lock()
	i := s.indexLocked(parentID)
	if i < 0 {
		s.mu.Unlock()
		return Subtask{}, fmt.Errorf("%w: task %q", ErrNotFound, parentID)
	}
	subs := s.tasks[i].Subtasks
	for j := range subs {
		if subs[j].ID != subtaskID {
			continue
		}
		subs[j].Status = subs[j].Status.flip()
		out := subs[j]
		err := s.commitLocked()
		s.mu.Unlock()
		s.notify()
		return out, err
	}
	s.mu.Unlock()
	return Subtask{}, fmt.Errorf("%w: subtask %q", ErrNotFound, subtaskID)
}

// ArchiveTask archives immediately, superseding any pending archive.
func (s *Store) ArchiveTask(id string) (Task, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("%w: task %q", ErrNotFound, id)
	}
	s.cancelArchiveLocked(id)
	if s.tasks[i].Archived {
		out := s.tasks[i].clone()
		s.mu.Unlock()
		return out, nil
	}
	s.tasks[i].Archived = true
	out := s.tasks[i].clone()
	err := s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return out, err
}

// ReorderAll replaces the collection order. ids must be a permutation of the
// stored ids.
func (s *Store) ReorderAll(ids []string) error {
	return s.ReorderBy(func([]Task) []string { return ids })
}

// ReorderBy computes the new order from a snapshot of the collection and
// applies it under the same lock, so no mutation can land in between. order
// must not call back into the store.
func (s *Store) ReorderBy(order func(tasks []Task) []string) error {
	s.mu.Lock()
	snapshot := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		snapshot[i] = t.clone()
	}
	if err := s.reorderLocked(order(snapshot)); err != nil {
		s.mu.Unlock()
		return err
	}
	err := s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return err
}

// Move shifts a task by delta positions, clamped to the collection bounds, and
// returns its new index.
func (s *Store) Move(id string, delta int) (int, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return -1, fmt.Errorf("%w: task %q", ErrNotFound, id)
	}
	j := i + delta
	if j < 0 {
		j = 0
	}
	if j > len(s.tasks)-1 {
		j = len(s.tasks) - 1
	}
	if j == i {
		s.mu.Unlock()
		return i, nil
	}
	ids := make([]string, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.ID != id {
			ids = append(ids, t.ID)
		}
	}
	ids = append(ids[:j], append([]string{id}, ids[j:]...)...)
	if err := s.reorderLocked(ids); err != nil {
		s.mu.Unlock()
		return i, err
	}
	err := s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return j, err
}

// AppendSubtasks adds todo subtasks to the end of the task's subtask list.
// Blank titles are skipped.
func (s *Store) AppendSubtasks(taskID string, titles []string) ([]Subtask, error) {
	var added []Subtask
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		added = append(added, Subtask{ID: "sub_" + newULID(), Title: title, Status: StatusTodo})
	}

	s.mu.Lock()
	i := s.indexLocked(taskID)
	if i < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: task %q", ErrNotFound, taskID)
	}
	if len(added) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	s.tasks[i].Subtasks = append(s.tasks[i].Subtasks, added...)
	err := s.commitLocked()
	s.mu.Unlock()
	s.notify()
	return added, err
}

// Reload re-reads the backend, picking up writes made by another process.
// It reports whether the collection changed.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	data, err := s.backend.Load(StorageKey)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if bytes.Equal(data, s.lastSaved) {
		s.mu.Unlock()
		return false, nil
	}
	tasks, err := decodeTasks(data)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.tasks = tasks
	s.lastSaved = data
	s.mu.Unlock()
	s.notify()
	return true, nil
}

// Close applies any pending archives immediately and closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	applied := false
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
		if i := s.indexLocked(id); i >= 0 && s.tasks[i].Status == StatusDone && !s.tasks[i].Archived {
			s.tasks[i].Archived = true
			applied = true
		}
	}
	var commitErr error
	if applied {
		commitErr = s.commitLocked()
	}
	s.mu.Unlock()
	return errors.Join(commitErr, s.backend.Close())
}

func (s *Store) scheduleArchiveLocked(id string) {
	s.cancelArchiveLocked(id)
	if s.archiveDelay < 0 {
		return
	}
	p := &pendingArchive{}
	p.timer = afterFunc(s.archiveDelay, func() { s.fireArchive(id, p) })
	s.pending[id] = p
}

func (s *Store) cancelArchiveLocked(id string) {
	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
		delete(s.pending, id)
	}
}

func (s *Store) fireArchive(id string, p *pendingArchive) {
	s.mu.Lock()
	if s.pending[id] != p {
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	i := s.indexLocked(id)
	if i < 0 || s.tasks[i].Status != StatusDone || s.tasks[i].Archived {
		s.mu.Unlock()
		return
	}
	s.tasks[i].Archived = true
	err := s.commitLocked()
	s.mu.Unlock()
	if err != nil {
		s.log.Error("persist archived task", zap.String("task_id", id), zap.Error(err))
	}
	s.notify()
}

func (s *Store) reorderLocked(ids []string) error {
	if len(ids) != len(s.tasks) {
		return fmt.Errorf("%w: reorder needs %d ids, got %d", ErrInvalid, len(s.tasks), len(ids))
	}
	byID := make(map[string]Task, len(s.tasks))
	for _, t := range s.tasks {
		byID[t.ID] = t
	}
	next := make([]Task, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: reorder id %q is unknown or repeated", ErrInvalid, id)
		}
		delete(byID, id)
		next = append(next, t)
	}
	s.tasks = next
	return nil
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) commitLocked() error {
	data, err := json.Marshal(s.tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := s.backend.Save(StorageKey, data); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}
	s.lastSaved = data
	return nil
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func decodeTasks(data []byte) ([]Task, error) {
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if tasks == nil {
		return nil, fmt.Errorf("%w: stored tasks are not an array", ErrInvalid)
	}
	for i := range tasks {
		if tasks[i].Subtasks == nil {
			tasks[i].Subtasks = []Subtask{}
		}
		if tasks[i].Status == "" {
			tasks[i].Status = StatusTodo
		}
	}
	return tasks, nil
}

func newULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(timeNow()), entropy)
	if err != nil {
		// fallback
		return fmt.Sprintf("%d", timeNow().UnixNano())
	}
	return strings.ToUpper(id.String())
}
