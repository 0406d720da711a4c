package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/amirbrooks/quicktask/internal/store"
)

// Run starts the program and blocks until the user quits. When watch is set,
// writes to the task file from other processes show up live.
func Run(ctx context.Context, opts Options, watch *store.FileBackend) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := New(opts)
	if watch != nil {
		go func() {
			if err := store.Watch(ctx, opts.Store, watch); err != nil {
				m.log.Warn("file watcher stopped", zap.Error(err))
			}
		}()
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
