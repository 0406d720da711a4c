// Package tui is the interactive terminal front end: an input line with live
// tag previews above a keyboard-driven task list.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/amirbrooks/quicktask/internal/assist"
	"github.com/amirbrooks/quicktask/internal/config"
	"github.com/amirbrooks/quicktask/internal/keyboard"
	"github.com/amirbrooks/quicktask/internal/parse"
	"github.com/amirbrooks/quicktask/internal/store"
	"github.com/amirbrooks/quicktask/internal/view"
)

const placeholder = "Add a task (e.g. 'Call John at 2pm')..."

// chrome is the number of rows outside the task list: input, tags, title,
// footer and help.
const chrome = 5

type Options struct {
	Store *store.Store
	// Assist may be nil, which disables the AI keys.
	Assist *assist.Client
	Config *config.Manager
	Logger *zap.Logger
}

type storeChangedMsg struct{}

type aiOp int

const (
	opBreakDown aiOp = iota
	opSmartSort
)

type aiDoneMsg struct {
	op    aiOp
	title string
	err   error
}

type Model struct {
	store  *store.Store
	assist *assist.Client
	cfg    *config.Manager
	log    *zap.Logger

	keys    keyMap
	help    help.Model
	input   textinput.Model
	spinner spinner.Model
	kb      *keyboard.Controller

	mode    view.Mode
	view    view.View
	tags    []parse.Tag
	offset  int
	width   int
	height  int
	busy    int
	status  string
	changes chan struct{}
}

func New(opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = ""
	ti.CharLimit = 0
	ti.Width = 60
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	m := &Model{
		store:   opts.Store,
		assist:  opts.Assist,
		cfg:     opts.Config,
		log:     opts.Logger,
		keys:    newKeyMap(),
		help:    help.New(),
		input:   ti,
		spinner: s,
		mode:    view.ModeFocus,
		changes: make(chan struct{}, 1),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.kb = keyboard.New(opts.Store)
	m.kb.OnSelect = m.reveal
	opts.Store.SetOnChange(m.notify)
	m.refresh()
	return m
}

// notify runs on whatever goroutine mutated the store.
func (m *Model) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.changes))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		if msg.Width > 10 {
			m.input.Width = msg.Width - 4
		}
		m.clampOffset()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case storeChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case aiDoneMsg:
		if m.busy > 0 {
			m.busy--
		}
		m.status = describeAI(msg)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.busy == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		return m, tea.Quit
	}
	if key.Matches(msg, m.keys.FocusInput) {
		m.kb.Handle(keyboard.KeyFocusInput, m.view.Tasks)
		return m, m.syncFocus()
	}
	if m.kb.InputFocused() {
		return m.handleInputKey(msg)
	}
	return m.handleListKey(msg)
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.submit()
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.kb.Handle(keyboard.KeyDown, m.view.Tasks)
		return m, m.syncFocus()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.tags = parse.Tags(m.input.Value())
	return m, cmd
}

func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.History):
		if m.mode == view.ModeArchive {
			m.setMode(view.ModeFocus)
		} else {
			m.setMode(view.ModeArchive)
		}
		return m, nil
	case key.Matches(msg, m.keys.All):
		if m.mode == view.ModeAll {
			m.setMode(view.ModeFocus)
		} else {
			m.setMode(view.ModeAll)
		}
		return m, nil
	case key.Matches(msg, m.keys.BreakDown):
		return m, m.breakDown()
	case key.Matches(msg, m.keys.Sort):
		return m, m.smartSort()
	case key.Matches(msg, m.keys.MoveUp):
		m.move(-1)
		return m, nil
	case key.Matches(msg, m.keys.MoveDown):
		m.move(1)
		return m, nil
	case key.Matches(msg, m.keys.Subtask):
		m.toggleSubtask()
		return m, nil
	}

	if k, ok := m.keys.controllerKey(msg); ok {
		m.kb.Handle(k, m.view.Tasks)
		if err := m.kb.Err(); err != nil {
			m.log.Warn("list key failed", zap.Error(err))
			m.status = "Could not save: " + err.Error()
		}
		m.refresh()
		return m, m.syncFocus()
	}

	// Typing anywhere starts a new task.
	if msg.Type == tea.KeyRunes {
		m.kb.Handle(keyboard.KeyFocusInput, m.view.Tasks)
		cmd := m.syncFocus()
		var icmd tea.Cmd
		m.input, icmd = m.input.Update(msg)
		m.tags = parse.Tags(m.input.Value())
		return m, tea.Batch(cmd, icmd)
	}
	return m, nil
}

func (m *Model) syncFocus() tea.Cmd {
	if m.kb.InputFocused() {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}

func (m *Model) setMode(mode view.Mode) {
	m.mode = mode
	m.offset = 0
	m.refresh()
	if !m.kb.InputFocused() && m.view.Len() > 0 {
		m.kb.Select(0, m.view.Len())
	}
}

// refresh recomputes the displayed list from the store.
func (m *Model) refresh() {
	m.view = view.Apply(m.store.Tasks(), m.mode)
	m.kb.Clamp(m.view.Len())
	m.clampOffset()
}

func (m *Model) selectedTask() (store.Task, bool) {
	i := m.kb.Selected()
	if i < 0 || i >= len(m.view.Tasks) {
		return store.Task{}, false
	}
	return m.view.Tasks[i], true
}

func (m *Model) submit() {
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		return
	}
	if fields := strings.Fields(raw); fields[0] == "/key" {
		m.setKey(strings.Join(fields[1:], " "))
		m.resetInput()
		return
	}

	res := parse.Extract(raw)
	title := res.Title
	if title == "" {
		title = raw
	}
	t, err := m.store.AddTask(title, res.Due, res.Priority)
	if err != nil {
		m.log.Warn("add task failed", zap.Error(err))
		m.status = "Could not save: " + err.Error()
	} else {
		m.status = ""
		m.log.Info("task added", zap.String("task_id", t.ID))
	}
	m.resetInput()
	m.refresh()
}

func (m *Model) resetInput() {
	m.input.Reset()
	m.tags = nil
}

func (m *Model) setKey(value string) {
	if m.cfg == nil {
		m.status = "No config file available"
		return
	}
	if value == "" {
		m.status = "API key: " + config.MaskKey(m.cfg.APIKey())
		return
	}
	if err := m.cfg.SetAPIKey(value); err != nil {
		m.log.Warn("save api key failed", zap.Error(err))
		m.status = "Could not save API key: " + err.Error()
		return
	}
	m.status = "API key saved"
}

func (m *Model) move(delta int) {
	t, ok := m.selectedTask()
	if !ok {
		return
	}
	if _, err := m.store.Move(t.ID, delta); err != nil {
		m.status = err.Error()
		return
	}
	m.refresh()
	for i, vt := range m.view.Tasks {
		if vt.ID == t.ID {
			m.kb.Select(i, m.view.Len())
			break
		}
	}
}

func (m *Model) toggleSubtask() {
	t, ok := m.selectedTask()
	if !ok {
		return
	}
	for _, st := range t.Subtasks {
		if st.Status != store.StatusDone {
			if _, err := m.store.ToggleSubtask(t.ID, st.ID); err != nil {
				m.status = err.Error()
			}
			m.refresh()
			return
		}
	}
	m.status = "No open subtasks"
}

func (m *Model) breakDown() tea.Cmd {
	t, ok := m.selectedTask()
	if !ok {
		return nil
	}
	if m.assist == nil {
		m.status = "AI assist unavailable"
		return nil
	}
	if m.assist.Breaking(t.ID) {
		m.status = "Already breaking down " + t.Title
		return nil
	}
	client := m.assist
	m.busy++
	m.status = "Breaking down " + t.Title
	return tea.Batch(func() tea.Msg {
		_, err := client.BreakDown(context.Background(), t)
		return aiDoneMsg{op: opBreakDown, title: t.Title, err: err}
	}, m.spinner.Tick)
}

func (m *Model) smartSort() tea.Cmd {
	if m.mode == view.ModeArchive {
		return nil
	}
	if m.assist == nil {
		m.status = "AI assist unavailable"
		return nil
	}
	if len(view.Active(m.store.Tasks())) < 2 {
		return nil
	}
	if m.assist.Sorting() {
		return nil
	}
	client := m.assist
	m.busy++
	m.status = "Sorting by urgency"
	return tea.Batch(func() tea.Msg {
		err := client.SmartSort(context.Background())
		return aiDoneMsg{op: opSmartSort, err: err}
	}, m.spinner.Tick)
}

func describeAI(msg aiDoneMsg) string {
	switch {
	case errors.Is(msg.err, assist.ErrNoCredential):
		return "Set an API key first: /key <value>"
	case errors.Is(msg.err, assist.ErrInFlight):
		return "Already working on it"
	case msg.err != nil:
		return "AI request failed: " + msg.err.Error()
	case msg.op == opBreakDown:
		return "Added subtasks to " + msg.title
	default:
		return "Sorted by urgency"
	}
}

// bodyHeight is the number of list rows that fit, or 0 for no limit.
func (m *Model) bodyHeight() int {
	if m.height == 0 {
		return 0
	}
	if h := m.height - chrome; h > 1 {
		return h
	}
	return 1
}

// taskRow is the list row of the i-th displayed task, counting the backlog
// divider and the subtask rows above it.
func (m *Model) taskRow(i int) int {
	row := i
	if m.view.BacklogStart >= 0 && i >= m.view.BacklogStart {
		row++
	}
	for _, t := range m.view.Tasks[:i] {
		row += len(t.Subtasks)
	}
	return row
}

func (m *Model) totalRows() int {
	if len(m.view.Tasks) == 0 {
		return 0
	}
	last := len(m.view.Tasks) - 1
	return m.taskRow(last) + 1 + len(m.view.Tasks[last].Subtasks)
}

// reveal scrolls so the task at index and its subtasks are visible.
func (m *Model) reveal(index int) {
	bh := m.bodyHeight()
	if bh == 0 || index < 0 || index >= len(m.view.Tasks) {
		return
	}
	top := m.taskRow(index)
	bottom := top + len(m.view.Tasks[index].Subtasks)
	if bottom >= m.offset+bh {
		m.offset = bottom - bh + 1
	}
	if top < m.offset {
		m.offset = top
	}
}

func (m *Model) clampOffset() {
	bh := m.bodyHeight()
	if bh == 0 {
		m.offset = 0
		return
	}
	if limit := m.totalRows() - bh; m.offset > limit {
		m.offset = limit
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(promptStyle.Render("› "))
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(renderTags(m.tags))
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(m.view.Title()))
	b.WriteString("\n")

	rows := m.listRows()
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render(m.view.EmptyMessage()))
		b.WriteString("\n")
	} else {
		end := len(rows)
		if bh := m.bodyHeight(); bh > 0 && m.offset+bh < end {
			end = m.offset + bh
		}
		for _, r := range rows[m.offset:end] {
			b.WriteString(r)
			b.WriteString("\n")
		}
	}

	b.WriteString(m.footer())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) listRows() []string {
	var rows []string
	sel := m.kb.Selected()
	for i, t := range m.view.Tasks {
		if i == m.view.BacklogStart {
			rows = append(rows, dividerStyle.Render("── Backlog / Later ──"))
		}
		rows = append(rows, m.taskLine(t, i == sel))
		for _, st := range t.Subtasks {
			mark := "◦"
			title := st.Title
			if st.Status == store.StatusDone {
				mark = "✓"
				title = doneStyle.Render(title)
			}
			rows = append(rows, dimStyle.Render("      "+mark+" ")+title)
		}
	}
	return rows
}

func (m *Model) taskLine(t store.Task, selected bool) string {
	box := "[ ]"
	title := t.Title
	if t.Done() {
		box = "[✓]"
		title = doneStyle.Render(title)
	}
	parts := []string{box, priorityMark(t.Priority), title}
	if due := renderDue(t.Due); due != "" {
		parts = append(parts, due)
	}
	if t.Project != "" && t.Project != store.DefaultProject {
		parts = append(parts, dimStyle.Render(t.Project))
	}
	if m.assist != nil && m.assist.Breaking(t.ID) {
		parts = append(parts, m.spinner.View())
	}
	line := strings.Join(parts, " ")
	if selected {
		return selectedStyle.Render("▌ " + line)
	}
	return "  " + line
}

func (m *Model) footer() string {
	n := m.view.Len()
	out := fmt.Sprintf("%d items", n)
	if sel := m.kb.Selected(); sel >= 0 && n > 0 {
		out += fmt.Sprintf(" · %d/%d", sel+1, n)
	}
	out = dimStyle.Render(out)
	if m.busy > 0 {
		out += "  " + m.spinner.View()
	}
	if m.status != "" {
		out += "  " + statusStyle.Render(m.status)
	}
	return out
}
