// Package watcher observes external filesystem modifications under a set of
// base directories and keeps a [hashreg.Registry] consistent with the real
// bytes on disk.
//
// The watcher never touches the lock manager: its registry updates are
// best-effort and any contention they cause surfaces through the next
// operation's own hash check, exactly as an external editor racing the core
// would.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"

	"github.com/calvinalkan/agentfs/internal/hashreg"
)

// Logger is the narrow slice of logging behavior the watcher needs. Nil
// fields are treated as no-ops, and agentfs's own logger interface satisfies
// this structurally without either package importing the other.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}

// Kind is the coalesced event kind the debounce buffer settles on for a
// path before it is processed.
type Kind int

const (
	create Kind = iota
	modify
	deleted
)

type pendingEvent struct {
	kind     Kind
	lastSeen time.Time
}

// notifier is the slice of *fsnotify.Watcher the watcher depends on,
// narrowed so tests can substitute a fake backend. Mirrors the teacher
// pack's own FsWatcher-wrapper pattern for fsnotify.
type notifier interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	EventsChan() <-chan fsnotify.Event
	ErrorsChan() <-chan error
}

type fsnotifyNotifier struct {
	w *fsnotify.Watcher
}

func (n *fsnotifyNotifier) Add(name string) error             { return n.w.Add(name) }
func (n *fsnotifyNotifier) Remove(name string) error          { return n.w.Remove(name) }
func (n *fsnotifyNotifier) Close() error                      { return n.w.Close() }
func (n *fsnotifyNotifier) EventsChan() <-chan fsnotify.Event { return n.w.Events }
func (n *fsnotifyNotifier) ErrorsChan() <-chan error          { return n.w.Errors }

// Options configures a Watcher.
type Options struct {
	BaseDirectories []string
	Registry        *hashreg.Registry
	FS              agentfsio.FS
	MaxFileSize     int64

	// DebounceWindow is the quiet period a path's buffered event must sit
	// idle for before it is flushed for processing. Defaults to 100ms.
	DebounceWindow time.Duration

	Logger Logger

	// newNotifier lets tests inject a fake backend; nil uses fsnotify.
	newNotifier func() (notifier, error)
}

// Watcher drives the native-backend debounce/coalesce/registry-update
// pipeline described for the file watcher component.
type Watcher struct {
	baseDirs    []string
	registry    *hashreg.Registry
	fsys        agentfsio.FS
	maxFileSize int64
	debounce    time.Duration
	logger      Logger
	newNotifier func() (notifier, error)

	mu      sync.Mutex
	pending map[string]*pendingEvent

	pollBases []string

	cancel context.CancelFunc
	done   chan struct{}
}

// pollInterval is how often a base directory running in polling fallback
// mode is re-scanned. Coarser than the native debounce window since a poll
// walks every registry entry under the directory.
const pollInterval = 500 * time.Millisecond

// New builds a Watcher. Call [Watcher.Start] to begin observing.
func New(opts Options) *Watcher {
	debounce := opts.DebounceWindow
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	newNotifier := opts.newNotifier
	if newNotifier == nil {
		newNotifier = func() (notifier, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyNotifier{w: w}, nil
		}
	}

	return &Watcher{
		baseDirs:    append([]string(nil), opts.BaseDirectories...),
		registry:    opts.Registry,
		fsys:        opts.FS,
		maxFileSize: opts.MaxFileSize,
		debounce:    debounce,
		logger:      logger,
		newNotifier: newNotifier,
		pending:     make(map[string]*pendingEvent),
	}
}

// Start begins observing the configured base directories. It returns once
// the native backend is attached to every directory; event processing
// continues on a background goroutine until ctx is canceled or [Watcher.Close]
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	nw, err := w.newNotifier()
	if err != nil {
		return fmt.Errorf("watcher: create backend: %w", err)
	}

	for _, base := range w.baseDirs {
		if isNetworkMount(base) {
			w.logger.Warnf("watcher: %s looks like a network mount, falling back to polling", base)
			w.pollBases = append(w.pollBases, base)

			continue
		}

		if err := w.addRecursive(nw, base); err != nil {
			if isResourceExhausted(err) {
				w.logger.Warnf("watcher: native backend exhausted watching %s, falling back to polling: %v", base, err)
				w.pollBases = append(w.pollBases, base)

				continue
			}

			w.logger.Warnf("watcher: failed to watch %s: %v", base, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx, nw)

	if len(w.pollBases) > 0 {
		go w.poll(runCtx)
	}

	return nil
}

// isResourceExhausted reports whether err looks like the native backend
// hit a platform watch-descriptor limit (e.g. inotify's max_user_watches),
// in which case polling is the only remaining option for that directory.
func isResourceExhausted(err error) bool {
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "too many open files") || strings.Contains(msg, "no space left")
}

// poll periodically re-hashes every registry entry that falls under a base
// directory running in polling-fallback mode, since no native watch can
// deliver events for it.
func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	for path, oldHash := range w.registry.Snapshot() {
		if !underAnyBase(path, w.pollBases) {
			continue
		}

		hash, err := agentfsio.HashFile(w.fsys, path, w.maxFileSize)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.registry.Remove(path)
				continue
			}

			w.logger.Warnf("watcher: poll rehash %s: %v", path, err)

			continue
		}

		if hash != oldHash {
			w.registry.Update(path, hash)
		}
	}
}

func underAnyBase(path string, bases []string) bool {
	for _, b := range bases {
		if strings.HasPrefix(path, b) {
			return true
		}
	}

	return false
}

// Close stops the watcher and waits for its background goroutine to exit.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}

	w.cancel()
	<-w.done

	return nil
}

func (w *Watcher) addRecursive(nw notifier, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			return err
		}

		if !d.IsDir() {
			return nil
		}

		return nw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context, nw notifier) {
	defer close(w.done)
	defer nw.Close()

	ticker := time.NewTicker(flushInterval(w.debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-nw.EventsChan():
			if !ok {
				return
			}

			w.ingest(nw, ev)
		case err, ok := <-nw.ErrorsChan():
			if !ok {
				return
			}

			w.logger.Warnf("watcher: backend error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// flushInterval picks a tick period fine enough to observe debounce-window
// expiry promptly without busy-polling; a quarter of the window, floored at
// 10ms, matches the teacher pack's coalescing-timer granularity.
func flushInterval(debounce time.Duration) time.Duration {
	quarter := debounce / 4
	if quarter < 10*time.Millisecond {
		return 10 * time.Millisecond
	}

	return quarter
}

func (w *Watcher) ingest(nw notifier, ev fsnotify.Event) {
	// A newly created directory must itself be watched to observe further
	// events beneath it, since fsnotify has no native recursive mode.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(nw, ev.Name); err != nil {
				w.logger.Warnf("watcher: failed to watch new directory %s: %v", ev.Name, err)
			}
		}
	}

	kind, ok := classify(ev.Op)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer(ev.Name, kind)
}

// classify maps a native fsnotify op to the coalescing kind it represents. A
// Rename event reports the event's own (now-stale) path, which for
// coalescing purposes is exactly a deletion of that path; fsnotify delivers
// the destination side of a move as a separate native Create event on the
// new path, so no explicit decomposition step is needed here.
func classify(op fsnotify.Op) (Kind, bool) {
	switch {
	case op&fsnotify.Remove != 0 || op&fsnotify.Rename != 0:
		return deleted, true
	case op&fsnotify.Create != 0:
		return create, true
	case op&fsnotify.Write != 0:
		return modify, true
	default:
		return 0, false
	}
}

// buffer merges a freshly observed kind into path's pending entry per the
// coalescing rules. Must be called with w.mu held.
func (w *Watcher) buffer(path string, kind Kind) {
	existing, ok := w.pending[path]
	if !ok {
		w.pending[path] = &pendingEvent{kind: kind, lastSeen: time.Now()}
		return
	}

	switch {
	case existing.kind == deleted && kind == create:
		existing.kind = modify
	case existing.kind == create && kind == deleted:
		delete(w.pending, path)
		return
	case existing.kind == modify:
		// already the absorbing state; kind stays modify
	default:
		existing.kind = kind
	}

	existing.lastSeen = time.Now()
}

// flush drains every buffered entry whose quiet period has elapsed and
// applies it to the registry.
func (w *Watcher) flush() {
	now := time.Now()

	var ready []struct {
		path string
		kind Kind
	}

	w.mu.Lock()
	for path, pe := range w.pending {
		if now.Sub(pe.lastSeen) < w.debounce {
			continue
		}

		ready = append(ready, struct {
			path string
			kind Kind
		}{path, pe.kind})

		delete(w.pending, path)
	}
	w.mu.Unlock()

	for _, r := range ready {
		w.process(r.path, r.kind)
	}
}

// process applies one coalesced, debounced event to the registry. Paths the
// registry never registered are discarded untouched; the registry is
// populated only by explicit core operations.
func (w *Watcher) process(path string, kind Kind) {
	if _, tracked := w.registry.Get(path); !tracked {
		return
	}

	if kind == deleted {
		w.registry.Remove(path)
		return
	}

	hash, err := agentfsio.HashFile(w.fsys, path, w.maxFileSize)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			w.registry.Remove(path)
			return
		}

		w.logger.Warnf("watcher: rehash %s: %v", path, err)

		return
	}

	w.registry.Update(path, hash)
}

// isNetworkMount reports whether base looks like a network-mounted path, in
// which case native event delivery is unreliable and the caller should fall
// back to periodic polling instead of a native watch.
func isNetworkMount(base string) bool {
	if runtime.GOOS == "windows" {
		return strings.HasPrefix(base, `\\`)
	}

	return strings.HasPrefix(base, "/mnt/") || strings.HasPrefix(base, "/net/")
}
