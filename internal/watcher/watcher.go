// Package watcher reports debounced changes to a set of source files.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before a change is
// reported.
const DefaultDebounce = 100 * time.Millisecond

// Event names a file that changed.
type Event struct {
	Path string
	Time time.Time
}

// Watcher watches individual files. Parent directories are watched instead
// of the files themselves so editors that replace a file on save are seen.
type Watcher struct {
	files    map[string]bool
	debounce time.Duration

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	closed bool
}

// New creates a watcher for paths. debounce <= 0 uses DefaultDebounce.
func New(paths []string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	files := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		files[abs] = true
	}
	return &Watcher{files: files, debounce: debounce}, nil
}

// Start begins watching and returns a channel of debounced events. The
// channel is closed when ctx is done or the watcher is closed.
func (w *Watcher) Start(ctx context.Context) (<-chan Event, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	out := make(chan Event, 16)
	go w.eventLoop(ctx, fsw, out)
	return out, nil
}

// Close shuts down the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Event) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(out)
	}()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)

	emit := func(path string) {
		defer wg.Done()
		mu.Lock()
		delete(timers, path)
		mu.Unlock()
		select {
		case out <- Event{Path: path, Time: time.Now()}:
		case <-ctx.Done():
		}
	}

	stopAll := func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		timers = map[string]*time.Timer{}
		mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			stopAll()
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				stopAll()
				return
			}
			if !w.files[ev.Name] || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}

			mu.Lock()
			if t, exists := timers[ev.Name]; exists && t.Stop() {
				wg.Done()
			}
			path := ev.Name
			wg.Add(1)
			timers[path] = time.AfterFunc(w.debounce, func() { emit(path) })
			mu.Unlock()

		case _, ok := <-fsw.Errors:
			if !ok {
				stopAll()
				return
			}
		}
	}
}
