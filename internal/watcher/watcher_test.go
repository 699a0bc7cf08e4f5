package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/calvinalkan/agentfs/internal/hashreg"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// fakeNotifier is a test double for notifier that lets a test push synthetic
// fsnotify events directly, bypassing any real OS backend.
type fakeNotifier struct {
	events chan fsnotify.Event
	errs   chan error
	added  []string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		events: make(chan fsnotify.Event, 16),
		errs:   make(chan error, 1),
	}
}

func (f *fakeNotifier) Add(name string) error             { f.added = append(f.added, name); return nil }
func (f *fakeNotifier) Remove(string) error               { return nil }
func (f *fakeNotifier) Close() error                      { return nil }
func (f *fakeNotifier) EventsChan() <-chan fsnotify.Event { return f.events }
func (f *fakeNotifier) ErrorsChan() <-chan error          { return f.errs }

func TestWatcher_ModifyEvent_RehashesTrackedPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	reg := hashreg.New()
	reg.Update(path, agentfsio.Hash([]byte("original")))

	fn := newFakeNotifier()

	w := New(Options{
		BaseDirectories: []string{dir},
		Registry:        reg,
		FS:              agentfsio.NewReal(),
		DebounceWindow:  20 * time.Millisecond,
		newNotifier:     func() (notifier, error) { return fn, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("changed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fn.events <- fsnotify.Event{Name: path, Op: fsnotify.Write}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, ok := reg.Get(path); ok && got == agentfsio.Hash([]byte("changed")) {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("registry hash was never updated to match the modified file")
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_DeleteEvent_RemovesTrackedPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	reg := hashreg.New()
	reg.Update(path, "sha256:aaa")

	fn := newFakeNotifier()

	w := New(Options{
		BaseDirectories: []string{dir},
		Registry:        reg,
		FS:              agentfsio.NewReal(),
		DebounceWindow:  20 * time.Millisecond,
		newNotifier:     func() (notifier, error) { return fn, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	fn.events <- fsnotify.Event{Name: path, Op: fsnotify.Remove}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := reg.Get(path); !ok {
			break
		}

		if time.Now().After(deadline) {
			t.Fatal("registry entry was never removed")
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_UntrackedPath_EventsAreDiscarded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "untracked.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	reg := hashreg.New()
	fn := newFakeNotifier()

	w := New(Options{
		BaseDirectories: []string{dir},
		Registry:        reg,
		FS:              agentfsio.NewReal(),
		DebounceWindow:  20 * time.Millisecond,
		newNotifier:     func() (notifier, error) { return fn, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Close()

	fn.events <- fsnotify.Event{Name: path, Op: fsnotify.Write}

	time.Sleep(100 * time.Millisecond)

	if reg.Len() != 0 {
		t.Fatalf("registry len=%d, want 0 (event for untracked path must be discarded)", reg.Len())
	}
}

func TestBuffer_DeleteThenCreate_CoalescesToModify(t *testing.T) {
	t.Parallel()

	w := &Watcher{pending: make(map[string]*pendingEvent)}

	w.buffer("/a", deleted)
	w.buffer("/a", create)

	if w.pending["/a"].kind != modify {
		t.Fatalf("kind=%v, want modify", w.pending["/a"].kind)
	}
}

func TestBuffer_CreateThenDelete_IsNetNoOp(t *testing.T) {
	t.Parallel()

	w := &Watcher{pending: make(map[string]*pendingEvent)}

	w.buffer("/a", create)
	w.buffer("/a", deleted)

	if _, ok := w.pending["/a"]; ok {
		t.Fatal("pending entry survived a create-then-delete pair")
	}
}

func TestBuffer_ModifyAbsorbsLaterEvents(t *testing.T) {
	t.Parallel()

	w := &Watcher{pending: make(map[string]*pendingEvent)}

	w.buffer("/a", modify)
	w.buffer("/a", deleted)

	if w.pending["/a"].kind != modify {
		t.Fatalf("kind=%v, want modify to absorb the later delete", w.pending["/a"].kind)
	}
}

func TestIsNetworkMount_RecognizesPosixPrefixes(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"/mnt/share/dir": true,
		"/net/remote":    true,
		"/home/user":     false,
	}

	for path, want := range cases {
		if got := isNetworkMount(path); got != want {
			t.Errorf("isNetworkMount(%q)=%v, want %v", path, got, want)
		}
	}
}
