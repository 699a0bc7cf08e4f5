// Package persistence snapshots the hash registry and lock manager to disk
// on a debounced timer and restores them at startup, so a restart does not
// lose track of which paths were already being watched or of in-flight lock
// queue state.
//
// When disabled, every method is a no-op; callers do not need to branch on
// whether persistence is configured.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/agentfs/internal/hashreg"
	"github.com/calvinalkan/agentfs/internal/lockmgr"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// schemaVersion is the persisted state file's own format version, bumped
// whenever the on-disk shape changes incompatibly.
const schemaVersion = 1

// Logger is the narrow logging surface persistence needs; see
// [watcher.Logger] for why this is a locally declared, structurally
// satisfied interface rather than a shared dependency.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}

// Options configures a Manager.
type Options struct {
	Enabled       bool
	StateFilePath string
	WriteDebounce time.Duration // default 1s

	FS          agentfsio.FS
	Registry    *hashreg.Registry
	LockManager *lockmgr.Manager
	Logger      Logger
}

// Manager owns the debounced save timer and the load/startup-recovery pass.
type Manager struct {
	enabled  bool
	path     string
	debounce time.Duration

	fsys     agentfsio.FS
	registry *hashreg.Registry
	locks    *lockmgr.Manager
	logger   Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New builds a Manager. Every method is a no-op if opts.Enabled is false.
func New(opts Options) *Manager {
	debounce := opts.WriteDebounce
	if debounce <= 0 {
		debounce = time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Manager{
		enabled:  opts.Enabled,
		path:     opts.StateFilePath,
		debounce: debounce,
		fsys:     opts.FS,
		registry: opts.Registry,
		locks:    opts.LockManager,
		logger:   logger,
	}
}

// MarkDirty schedules a save after the debounce window. A call arriving
// before the window elapses resets the timer, so a burst of activity
// produces one save shortly after it quiets down rather than one per call.
func (m *Manager) MarkDirty() {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
	}

	m.timer = time.AfterFunc(m.debounce, func() {
		if err := m.SaveNow(); err != nil {
			m.logger.Warnf("persistence: debounced save failed: %v", err)
		}
	})
}

// SaveNow cancels any pending debounce timer and writes the current state
// immediately.
func (m *Manager) SaveNow() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	sf := stateFileDTO{
		Version:      schemaVersion,
		SavedAt:      time.Now(),
		HashRegistry: m.registry.Snapshot(),
		PendingQueue: toPendingQueueDTO(m.locks.Snapshot()),
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("persistence: encode state: %w", err)
	}

	if err := atomic.WriteFile(m.path, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("persistence: write state file %q: %w", m.path, err)
	}

	return nil
}

// Load runs the startup recovery pass: read and decode the state file
// (corrupt or absent means fresh state), restore the registry and lock
// snapshots, purge lock entries whose ttl_deadline elapsed while the process
// was down, re-validate every registry entry against the real filesystem,
// and flush the cleaned state back to disk.
func (m *Manager) Load() error {
	if !m.enabled {
		return nil
	}

	data, err := m.fsys.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warnf("persistence: read state file %q, starting fresh: %v", m.path, err)
		}

		return nil
	}

	var sf stateFileDTO
	if err := json.Unmarshal(data, &sf); err != nil {
		m.logger.Warnf("persistence: decode state file %q, starting fresh: %v", m.path, err)
		return nil
	}

	m.registry.Restore(sf.HashRegistry)
	m.locks.Restore(fromPendingQueueDTO(sf.PendingQueue))
	m.locks.PurgeExpired()
	m.revalidateRegistry()

	return m.SaveNow()
}

// Revalidate re-runs the registry-vs-disk reconciliation pass on demand,
// independent of the debounced save timer. Unlike [Manager.Load] it does not
// read the state file or restore the lock manager; it only drops stale
// registry entries and refreshes drifted hashes, then writes the state file
// if persistence is enabled.
func (m *Manager) Revalidate() error {
	m.revalidateRegistry()

	if !m.enabled {
		return nil
	}

	return m.SaveNow()
}

// revalidateRegistry drops registry entries whose path no longer exists and
// refreshes any entry whose on-disk hash has drifted from what was
// persisted, logging mismatches rather than treating them as failures.
func (m *Manager) revalidateRegistry() {
	for path, stored := range m.registry.Snapshot() {
		if _, err := m.fsys.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				m.registry.Remove(path)
			}

			continue
		}

		current, err := agentfsio.HashFile(m.fsys, path, 0)
		if err != nil {
			m.logger.Warnf("persistence: revalidate %s: %v", path, err)
			continue
		}

		if current != stored {
			m.logger.Warnf("persistence: %s hash drifted from persisted state, updating", path)
			m.registry.Update(path, current)
		}
	}
}

// Close stops any pending debounce timer and performs one final save.
func (m *Manager) Close() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	return m.SaveNow()
}

// stateFileDTO is the on-disk shape of the persisted state file, field names
// matching the wire format exactly.
type stateFileDTO struct {
	Version      int                        `json:"version"`
	SavedAt      time.Time                  `json:"saved_at"`
	HashRegistry map[string]string          `json:"hash_registry"`
	PendingQueue map[string]pathStateDTO    `json:"pending_queue"`
}

type pathStateDTO struct {
	ActiveReaders int             `json:"active_readers"`
	ActiveWriter  bool            `json:"active_writer"`
	Queue         []queueEntryDTO `json:"queue"`
}

type queueEntryDTO struct {
	RequestID      string     `json:"request_id"`
	LockType       string     `json:"lock_type"`
	CreatedAt      time.Time  `json:"created_at"`
	TimeoutSeconds float64    `json:"timeout"`
	TTLExpiresAt   *time.Time `json:"ttl_expires_at,omitempty"`
}

func toPendingQueueDTO(snap map[string]lockmgr.PathState) map[string]pathStateDTO {
	out := make(map[string]pathStateDTO, len(snap))

	for path, ps := range snap {
		entries := make([]queueEntryDTO, len(ps.Queue))

		for i, q := range ps.Queue {
			entry := queueEntryDTO{
				RequestID:      q.RequestID,
				LockType:       q.Kind.String(),
				CreatedAt:      q.CreatedAt,
				TimeoutSeconds: q.Timeout.Seconds(),
			}

			if !q.TTLDeadline.IsZero() {
				ttl := q.TTLDeadline
				entry.TTLExpiresAt = &ttl
			}

			entries[i] = entry
		}

		out[path] = pathStateDTO{
			ActiveReaders: ps.ActiveReaders,
			ActiveWriter:  ps.ActiveWriter,
			Queue:         entries,
		}
	}

	return out
}

func fromPendingQueueDTO(dto map[string]pathStateDTO) map[string]lockmgr.PathState {
	out := make(map[string]lockmgr.PathState, len(dto))

	for path, ps := range dto {
		entries := make([]lockmgr.QueueEntry, len(ps.Queue))

		for i, q := range ps.Queue {
			var ttl time.Time
			if q.TTLExpiresAt != nil {
				ttl = *q.TTLExpiresAt
			}

			kind := lockmgr.Read
			if q.LockType == "write" {
				kind = lockmgr.Write
			}

			entries[i] = lockmgr.QueueEntry{
				RequestID:   q.RequestID,
				Kind:        kind,
				CreatedAt:   q.CreatedAt,
				Timeout:     time.Duration(q.TimeoutSeconds * float64(time.Second)),
				TTLDeadline: ttl,
			}
		}

		out[path] = lockmgr.PathState{
			ActiveReaders: ps.ActiveReaders,
			ActiveWriter:  ps.ActiveWriter,
			Queue:         entries,
		}
	}

	return out
}
