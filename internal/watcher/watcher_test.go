package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "app.py")
	other := filepath.Join(dir, "other.py")
	require.NoError(t, os.WriteFile(target, []byte("def f():\n    pass\n"), 0o644))

	w, err := New([]string{target}, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := w.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(other, []byte("x = 1\n"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(target, []byte("def f():\n    return 1\n"), 0o644))
	}

	select {
	case ev := <-events:
		abs, _ := filepath.Abs(target)
		assert.Equal(t, abs, ev.Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no event for the watched file")
	}

	select {
	case ev := <-events:
		t.Fatalf("writes should be debounced into one event, got another for %s", ev.Path)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcherStopsWithContext(t *testing.T) {
	target := filepath.Join(t.TempDir(), "app.ts")
	require.NoError(t, os.WriteFile(target, []byte("function f() {}\n"), 0o644))

	w, err := New([]string{target}, 0)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, DefaultDebounce, w.debounce)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := w.Start(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "gone", "app.py")}, 0)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Start(context.Background())
	assert.Error(t, err)
}
