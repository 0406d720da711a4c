package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsAfterAnotherWriter(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	s, err := Open(b, Options{})
	require.NoError(t, err)
	defer s.Close()
	// Persist once so both writers start from the same file.
	require.NoError(t, s.ReorderAll([]string{"1", "2", "3"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, s, b) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(50 * time.Millisecond)

	other, err := Open(&FileBackend{Dir: dir}, Options{})
	require.NoError(t, err)
	added, err := other.AddTask("from the cli", "", PriorityLow)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := s.Get(added.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}
