// Package assist asks a hosted language model to break tasks into subtasks and
// to reorder the task list by urgency.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/amirbrooks/quicktask/internal/store"
)

var (
	ErrNoCredential = errors.New("no API key configured")
	ErrInFlight     = errors.New("request already in flight")
)

// DecodeError reports a model response that did not have the expected shape.
type DecodeError struct {
	Raw    string
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode response: " + e.Reason
}

// CredentialProvider supplies the API key at request time.
type CredentialProvider interface {
	APIKey() string
}

// Generator sends one prompt and returns the raw response text. schema
// constrains the JSON the model may produce.
type Generator interface {
	Generate(ctx context.Context, apiKey, prompt string, schema *genai.Schema) (string, error)
}

// TaskStore is the part of the store the client mutates.
type TaskStore interface {
	Tasks() []store.Task
	AppendSubtasks(taskID string, titles []string) ([]store.Subtask, error)
	// ReorderBy applies the order computed from the collection as it is at
	// that moment.
	ReorderBy(order func(tasks []store.Task) []string) error
}

type Options struct {
	Credentials CredentialProvider
	Generator   Generator
	Store       TaskStore
	Logger      *zap.Logger
	// Delays are the waits before each retry. Defaults to Backoff(time.Second).
	Delays []time.Duration
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Client struct {
	creds  CredentialProvider
	gen    Generator
	store  TaskStore
	log    *zap.Logger
	delays []time.Duration
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breaking map[string]struct{}
	sorting  bool
}

func New(opts Options) (*Client, error) {
	if opts.Credentials == nil || opts.Generator == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: credentials, generator and store are required", store.ErrInvalid)
	}
	c := &Client{
		creds:    opts.Credentials,
		gen:      opts.Generator,
		store:    opts.Store,
		log:      opts.Logger,
		delays:   opts.Delays,
		sleep:    opts.Sleep,
		breaking: map[string]struct{}{},
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.delays == nil {
		c.delays = Backoff(time.Second)
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c, nil
}

// Breaking reports whether a break-down for taskID is running.
func (c *Client) Breaking(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.breaking[taskID]
	return ok
}

// Sorting reports whether a smart sort is running.
func (c *Client) Sorting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sorting
}

var subtaskSchema = &genai.Schema{
	Type:  genai.TypeArray,
	Items: &genai.Schema{Type: genai.TypeString},
}

var sortSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sortedIds": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"sortedIds"},
}

func breakDownPrompt(title string) string {
	return fmt.Sprintf("You are a helpful project manager. Break down %q into 3 concise subtasks. Return ONLY a JSON array of strings.", title)
}

// BreakDown asks for three subtasks of task and appends them to it. Only one
// break-down per task may run at a time.
func (c *Client) BreakDown(ctx context.Context, task store.Task) ([]store.Subtask, error) {
	key := strings.TrimSpace(c.creds.APIKey())
	if key == "" {
		c.log.Warn("break down skipped", zap.String("task_id", task.ID), zap.Error(ErrNoCredential))
		return nil, ErrNoCredential
	}

	c.mu.Lock()
	if _, busy := c.breaking[task.ID]; busy {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	c.breaking[task.ID] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.breaking, task.ID)
		c.mu.Unlock()
	}()

	var titles []string
	err := c.retry(ctx, "break_down", func() error {
		raw, err := c.gen.Generate(ctx, key, breakDownPrompt(task.Title), subtaskSchema)
		if err != nil {
			return err
		}
		titles, err = decodeSubtasks(raw)
		return err
	})
	if err != nil {
		c.log.Warn("break down failed", zap.String("task_id", task.ID), zap.Error(err))
		return nil, err
	}

	added, err := c.store.AppendSubtasks(task.ID, titles)
	if err != nil {
		c.log.Warn("append subtasks failed", zap.String("task_id", task.ID), zap.Error(err))
		return nil, err
	}
	c.log.Info("break down applied", zap.String("task_id", task.ID), zap.Int("subtasks", len(added)))
	return added, nil
}

// Outcome is the result of one break-down in BreakDownAll.
type Outcome struct {
	TaskID   string
	Subtasks []store.Subtask
	Err      error
}

// BreakDownAll runs BreakDown for every task concurrently. Each task succeeds
// or fails on its own; the returned error is the first failure.
func (c *Client) BreakDownAll(ctx context.Context, tasks []store.Task) ([]Outcome, error) {
	out := make([]Outcome, len(tasks))
	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			subs, err := c.BreakDown(ctx, t)
			out[i] = Outcome{TaskID: t.ID, Subtasks: subs, Err: err}
			if err != nil {
				return fmt.Errorf("%s: %w", t.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return out, err
}

type sortEntry struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Due      string         `json:"due"`
	Priority store.Priority `json:"priority"`
}

func smartSortPrompt(tasks []store.Task) (string, error) {
	entries := make([]sortEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, sortEntry{ID: t.ID, Title: t.Title, Due: t.Due, Priority: t.Priority})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return `Sort these tasks by urgency/importance. High priority/Today is urgent. Return JSON object { "sortedIds": [] } based on IDs. Tasks: ` + string(data), nil
}

// SmartSort asks the model to rank the active tasks and reorders the whole
// collection to match. With fewer than two active tasks it does nothing.
func (c *Client) SmartSort(ctx context.Context) error {
	active := activeTasks(c.store.Tasks())
	if len(active) < 2 {
		return nil
	}
	key := strings.TrimSpace(c.creds.APIKey())
	if key == "" {
		c.log.Warn("smart sort skipped", zap.Error(ErrNoCredential))
		return ErrNoCredential
	}

	c.mu.Lock()
	if c.sorting {
		c.mu.Unlock()
		return ErrInFlight
	}
	c.sorting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sorting = false
		c.mu.Unlock()
	}()

	prompt, err := smartSortPrompt(active)
	if err != nil {
		return err
	}
	var sorted []string
	err = c.retry(ctx, "smart_sort", func() error {
		raw, err := c.gen.Generate(ctx, key, prompt, sortSchema)
		if err != nil {
			return err
		}
		sorted, err = decodeSortedIDs(raw)
		return err
	})
	if err != nil {
		c.log.Warn("smart sort failed", zap.Error(err))
		return err
	}

	// The collection may have changed while the request was out.
	err = c.store.ReorderBy(func(tasks []store.Task) []string {
		return RankOrder(tasks, sorted)
	})
	if err != nil {
		c.log.Warn("apply smart sort failed", zap.Error(err))
		return err
	}
	c.log.Info("smart sort applied", zap.Int("ranked", len(sorted)))
	return nil
}

// RankOrder returns the ids of tasks ordered by their position in sorted.
// Archived tasks and ids missing from sorted go last, keeping their order.
func RankOrder(tasks []store.Task, sorted []string) []string {
	rank := make(map[string]int, len(sorted))
	for i, id := range sorted {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	last := len(sorted)
	rankOf := func(t store.Task) int {
		if t.Archived {
			return last
		}
		if r, ok := rank[t.ID]; ok {
			return r
		}
		return last
	}

	ordered := make([]store.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rankOf(ordered[i]) < rankOf(ordered[j])
	})
	ids := make([]string, len(ordered))
	for i, t := range ordered {
		ids[i] = t.ID
	}
	return ids
}

func activeTasks(tasks []store.Task) []store.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if !t.Archived {
			out = append(out, t)
		}
	}
	return out
}

func decodeSubtasks(raw string) ([]string, error) {
	body := stripFence(raw)
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, &DecodeError{Raw: raw, Reason: "expected a JSON array"}
	}
	if len(items) == 0 {
		return nil, &DecodeError{Raw: raw, Reason: "no subtasks returned"}
	}
	titles := make([]string, 0, len(items))
	for i, item := range items {
		var title string
		if err := json.Unmarshal(item, &title); err != nil {
			return nil, &DecodeError{Raw: raw, Reason: fmt.Sprintf("item %d is not a string", i)}
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return nil, &DecodeError{Raw: raw, Reason: fmt.Sprintf("item %d is blank", i)}
		}
		titles = append(titles, title)
	}
	return titles, nil
}

func decodeSortedIDs(raw string) ([]string, error) {
	var resp struct {
		SortedIDs *[]string `json:"sortedIds"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFence(raw))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return nil, &DecodeError{Raw: raw, Reason: err.Error()}
	}
	if resp.SortedIDs == nil {
		return nil, &DecodeError{Raw: raw, Reason: "missing sortedIds"}
	}
	return *resp.SortedIDs, nil
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
