package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
		write     bool
	}{
		{EventTypeCreated, "created", true},
		{EventTypeModified, "modified", true},
		{EventTypeDeleted, "deleted", false},
		{EventTypeRenamed, "renamed", false},
		{EventType(9), "unknown", false},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
			assert.Equal(t, tc.write, tc.eventType.IsWrite())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	assert.NoError(t, watcher.AddPath(tempDir))
	assert.Contains(t, watcher.WatchList(), tempDir)

	assert.Error(t, watcher.AddPath("/non/existent/path"))
	assert.Error(t, watcher.AddPath(""))

	file := filepath.Join(tempDir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.Error(t, watcher.AddPath(file))
}

func TestFileWatcherAddRecursive(t *testing.T) {
	watcher, err := NewFileWatcher(100 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))

	require.NoError(t, watcher.AddRecursive(root))
	list := watcher.WatchList()
	assert.Contains(t, list, root)
	assert.Contains(t, list, filepath.Join(root, "a"))
	assert.Contains(t, list, filepath.Join(root, "a", "b"))
}

// collect starts watcher and returns a function reporting the paths seen.
func collect(t *testing.T, watcher *FileWatcher) func() []ChangeEvent {
	t.Helper()
	var (
		mu     sync.Mutex
		events []ChangeEvent
	)
	watcher.AddHandler(func(batch []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, batch...)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, watcher.Start(ctx))

	return func() []ChangeEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([]ChangeEvent, len(events))
		copy(out, events)
		return out
	}
}

func hasPath(events []ChangeEvent, path string) bool {
	for _, e := range events {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestFileWatcherDeliversEvents(t *testing.T) {
	watcher, err := NewFileWatcher(30 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	require.NoError(t, watcher.AddPath(tempDir))
	watcher.AddFilter(ExtFilter(".html"))

	seen := collect(t, watcher)

	page := filepath.Join(tempDir, "index.html")
	require.NoError(t, os.WriteFile(page, []byte("<p>hi</p>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return hasPath(seen(), page) }, 2*time.Second, 20*time.Millisecond)
	assert.False(t, hasPath(seen(), filepath.Join(tempDir, "notes.txt")))
}

func TestFileWatcherPicksUpNewDirectories(t *testing.T) {
	watcher, err := NewFileWatcher(30 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	root := t.TempDir()
	require.NoError(t, watcher.AddRecursive(root))
	seen := collect(t, watcher)

	sub := filepath.Join(root, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool {
		for _, p := range watcher.WatchList() {
			if p == sub {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	file := filepath.Join(sub, "late.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.Eventually(t, func() bool { return hasPath(seen(), file) }, 2*time.Second, 20*time.Millisecond)
	assert.False(t, hasPath(seen(), sub), "directories do not produce change events")
}

func TestFileWatcherHandlerErrorDoesNotStop(t *testing.T) {
	watcher, err := NewFileWatcher(20 * time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	require.NoError(t, watcher.AddPath(tempDir))

	var mu sync.Mutex
	calls := 0
	watcher.AddHandler(func([]ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return fmt.Errorf("handler failure %d", calls)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	for i := 0; i < 2; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(tempDir, fmt.Sprintf("f%d.txt", i)), []byte("x"), 0o644))
		want := i + 1
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return calls >= want
		}, 2*time.Second, 10*time.Millisecond)
	}
}

func TestFileWatcherStopIdempotent(t *testing.T) {
	watcher, err := NewFileWatcher(10 * time.Millisecond)
	require.NoError(t, err)

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(40 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.start(ctx)

	for i := 0; i < 5; i++ {
		d.Add(ChangeEvent{Type: EventTypeModified, Path: "a.scss"})
		d.Add(ChangeEvent{Type: EventTypeModified, Path: "b.scss"})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 2)
		assert.Equal(t, "a.scss", batch[0].Path)
		assert.Equal(t, "b.scss", batch[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced batch")
	}

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected second batch: %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerLastEventWins(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.start(ctx)

	d.Add(ChangeEvent{Type: EventTypeCreated, Path: "x.js"})
	d.Add(ChangeEvent{Type: EventTypeModified, Path: "x.js"})

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 1)
		assert.Equal(t, EventTypeModified, batch[0].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no debounced batch")
	}
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	d.addEvent(ChangeEvent{Path: "a"})
	d.stop()
	d.addEvent(ChangeEvent{Path: "b"})

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch after stop: %v", batch)
	case <-time.After(120 * time.Millisecond):
	}
}

func TestDebouncerKeepsBatchesWhileConsumerBusy(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.start(ctx)

	// Nobody reads Output while the batches pile up past its buffer.
	for i := 0; i < 20; i++ {
		d.Add(ChangeEvent{Type: EventTypeModified, Path: fmt.Sprintf("page%02d.html", i)})
		time.Sleep(15 * time.Millisecond)
	}

	seen := make(map[string]bool)
	assert.Eventually(t, func() bool {
		for {
			select {
			case batch := <-d.Output():
				for _, e := range batch {
					seen[e.Path] = true
				}
			default:
				return len(seen) == 20
			}
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileWatcherSlowHandlerLosesNothing(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(10 * time.Millisecond)
	require.NoError(t, err)
	defer fw.Stop()
	require.NoError(t, fw.AddPath(dir))

	release := make(chan struct{})
	var (
		mu    sync.Mutex
		seen  = make(map[string]bool)
		first = true
	)
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		for _, e := range events {
			seen[filepath.Base(e.Path)] = true
		}
		block := first
		first = false
		mu.Unlock()
		if block {
			<-release
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	for i := 0; i < 20; i++ {
		name := filepath.Join(dir, fmt.Sprintf("file%02d.txt", i))
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		time.Sleep(40 * time.Millisecond)
	}
	close(release)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 20
	}, 3*time.Second, 20*time.Millisecond)
}
