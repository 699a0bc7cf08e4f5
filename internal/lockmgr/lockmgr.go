// Package lockmgr coordinates per-path reader/writer access with strict
// FIFO ordering, batch read promotion, write-starvation avoidance, and
// deadlock-free dual-path acquisition for rename.
//
// The manager models a single-process, cooperative-concurrency scheduler:
// every path's state (active holders and pending queue) is protected by one
// mutex, and goroutines suspend on a channel while queued rather than
// busy-waiting. Only write acquisitions carry a timeout; reads are expected
// to be short and uncontended and block until granted or the caller's
// context is canceled.
package lockmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a write acquisition's timeout elapses
// before the lock is granted.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// ErrInvalidTimeout is returned when a write acquisition is requested with
// a non-positive timeout.
var ErrInvalidTimeout = errors.New("timeout must be positive")

// ErrPurged is returned when a queued request is dropped by
// [Manager.PurgeExpired] before it was granted.
var ErrPurged = errors.New("queued request was purged for exceeding its ttl deadline")

// Kind distinguishes shared (read) from exclusive (write) lock requests.
type Kind int

const (
	Read Kind = iota
	Write
)

func (k Kind) String() string {
	if k == Write {
		return "write"
	}

	return "read"
}

// Release relinquishes a held lock. It is safe to call at most once; the
// functions returned by Acquire* always release exactly the locks they
// acquired.
type Release func()

// request is one caller's place in a path's FIFO queue.
type request struct {
	id          uuid.UUID
	kind        Kind
	createdAt   time.Time
	timeout     time.Duration // zero for reads (no timeout)
	ttlDeadline time.Time     // zero if unset
	granted     chan struct{}
	purged      bool // set before granted is closed by PurgeExpired
}

// fileLock is the per-path state: how many shared holders are active,
// whether an exclusive holder is active, and the FIFO queue of requests
// waiting for either.
type fileLock struct {
	activeReaders int
	activeWriter  bool
	queue         []*request
}

func (fl *fileLock) idle() bool {
	return fl.activeReaders == 0 && !fl.activeWriter && len(fl.queue) == 0
}

// Options configures a Manager.
type Options struct {
	// PersistenceEnabled controls whether write requests compute a
	// ttl_deadline for their queue entry. When false, ttlDeadline is left
	// zero and PurgeExpired never removes entries.
	PersistenceEnabled bool

	// TTLMultiplier scales a write request's timeout to derive its
	// ttl_deadline: now + timeout*TTLMultiplier. Defaults to 2.0 if <= 0.
	TTLMultiplier float64
}

// Manager owns the lock table for every path currently being tracked.
//
// The zero value is not usable; construct one with [New].
type Manager struct {
	mu            sync.Mutex
	locks         map[string]*fileLock
	persistent    bool
	ttlMultiplier float64
}

// New creates an empty Manager.
func New(opts Options) *Manager {
	mult := opts.TTLMultiplier
	if mult <= 0 {
		mult = 2.0
	}

	return &Manager{
		locks:         make(map[string]*fileLock),
		persistent:    opts.PersistenceEnabled,
		ttlMultiplier: mult,
	}
}

// AcquireRead takes a shared lock on path, blocking until it is granted or
// ctx is canceled. Reads carry no timeout of their own.
func (m *Manager) AcquireRead(ctx context.Context, path string) (Release, error) {
	req := m.newRequest(Read, 0)

	if m.tryGrantOrEnqueue(path, req) {
		return m.releaseFunc(path, req), nil
	}

	select {
	case <-req.granted:
		if req.purged {
			return nil, ErrPurged
		}

		return m.releaseFunc(path, req), nil
	case <-ctx.Done():
		return nil, m.abandon(path, req, ctx.Err())
	}
}

// AcquireWrite takes an exclusive lock on path, blocking until it is
// granted, the timeout elapses, or ctx is canceled.
func (m *Manager) AcquireWrite(ctx context.Context, path string, timeout time.Duration) (Release, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	req := m.newRequest(Write, timeout)

	if m.tryGrantOrEnqueue(path, req) {
		return m.releaseFunc(path, req), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-req.granted:
		if req.purged {
			return nil, ErrPurged
		}

		return m.releaseFunc(path, req), nil
	case <-timer.C:
		return nil, m.abandon(path, req, ErrLockTimeout)
	case <-ctx.Done():
		return nil, m.abandon(path, req, ctx.Err())
	}
}

// abandon gives up on a queued request that timed out or whose context was
// canceled. If the request is still queued, it is removed and failWith is
// returned. If promotion already granted it in the interim, the lock is
// acquired and then immediately released (rather than handed to a caller
// who no longer wants it) so the grant isn't silently leaked. If the request
// was instead dropped by PurgeExpired in the interim, no lock was ever
// granted and failWith is returned directly.
func (m *Manager) abandon(path string, req *request, failWith error) error {
	if m.cancel(path, req) {
		return failWith
	}

	<-req.granted

	if !req.purged {
		m.releaseFunc(path, req)()
	}

	return failWith
}

// AcquireDualWrite takes exclusive locks on both a and b, always acquiring
// them in lexicographic order so that two concurrent dual acquisitions over
// the same pair of paths can never deadlock. If the second acquisition
// fails, the first is released before the error is returned.
func (m *Manager) AcquireDualWrite(ctx context.Context, a, b string, timeout time.Duration) (Release, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	releaseFirst, err := m.AcquireWrite(ctx, first, timeout)
	if err != nil {
		return nil, fmt.Errorf("acquire %q: %w", first, err)
	}

	releaseSecond, err := m.AcquireWrite(ctx, second, timeout)
	if err != nil {
		releaseFirst()
		return nil, fmt.Errorf("acquire %q: %w", second, err)
	}

	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}

func (m *Manager) newRequest(kind Kind, timeout time.Duration) *request {
	return &request{
		id:        uuid.New(),
		kind:      kind,
		createdAt: time.Now(),
		timeout:   timeout,
		granted:   make(chan struct{}),
	}
}

// tryGrantOrEnqueue installs req into path's fileLock, granting it
// immediately if the FIFO admission rule allows, or appending it to the
// queue otherwise. Returns true iff req was granted immediately.
func (m *Manager) tryGrantOrEnqueue(path string, req *request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl := m.locks[path]
	if fl == nil {
		fl = &fileLock{}
		m.locks[path] = fl
	}

	switch req.kind {
	case Read:
		if !fl.activeWriter && len(fl.queue) == 0 {
			fl.activeReaders++
			return true
		}
	case Write:
		if fl.activeReaders == 0 && !fl.activeWriter && len(fl.queue) == 0 {
			fl.activeWriter = true
			return true
		}
	}

	if req.kind == Write && m.persistent {
		req.ttlDeadline = time.Now().Add(time.Duration(float64(req.timeout) * m.ttlMultiplier))
	}

	fl.queue = append(fl.queue, req)

	return false
}

// cancel removes req from path's queue if it is still waiting. Returns true
// if req was removed (the caller should treat the acquisition as failed);
// returns false if req had already been granted and removed from the queue
// by the promotion routine, in which case the grant must be honored.
func (m *Manager) cancel(path string, req *request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl := m.locks[path]
	if fl == nil {
		return false
	}

	for i, q := range fl.queue {
		if q == req {
			fl.queue = append(fl.queue[:i], fl.queue[i+1:]...)
			if fl.idle() {
				delete(m.locks, path)
			}

			return true
		}
	}

	return false
}

// releaseFunc returns a Release that releases req's hold on path and runs
// promotion exactly once.
func (m *Manager) releaseFunc(path string, req *request) Release {
	var once sync.Once

	return func() {
		once.Do(func() {
			m.release(path, req)
		})
	}
}

func (m *Manager) release(path string, req *request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl := m.locks[path]
	if fl == nil {
		return
	}

	switch req.kind {
	case Read:
		if fl.activeReaders > 0 {
			fl.activeReaders--
		}
	case Write:
		fl.activeWriter = false
	}

	m.promote(fl)

	if fl.idle() {
		delete(m.locks, path)
	}
}

// promote grants the next eligible request(s) at the head of fl's queue:
// a single writer if no readers or writer are active, or every consecutive
// reader run at the head if no writer is active. It grants at most one such
// batch per call; callers invoke it once per release, which is sufficient
// because every release triggers exactly the state transition a grant
// requires.
func (m *Manager) promote(fl *fileLock) {
	if len(fl.queue) == 0 {
		return
	}

	head := fl.queue[0]

	if head.kind == Write {
		if fl.activeReaders == 0 && !fl.activeWriter {
			fl.queue = fl.queue[1:]
			fl.activeWriter = true
			close(head.granted)
		}

		return
	}

	if fl.activeWriter {
		return
	}

	i := 0
	for i < len(fl.queue) && fl.queue[i].kind == Read {
		i++
	}

	batch := fl.queue[:i]
	fl.queue = fl.queue[i:]
	fl.activeReaders += len(batch)

	for _, r := range batch {
		close(r.granted)
	}
}

// State reports the observable lock state of a single path.
type State struct {
	ActiveReaders int
	ActiveWriter  bool
	Queued        int
}

// Status reports path's current lock state.
func (m *Manager) Status(path string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	fl := m.locks[path]
	if fl == nil {
		return State{}
	}

	return State{
		ActiveReaders: fl.activeReaders,
		ActiveWriter:  fl.activeWriter,
		Queued:        len(fl.queue),
	}
}

// Aggregate reports the sum of active readers and writers across every
// tracked path, used by the server-wide status operation.
func (m *Manager) Aggregate() (activeReaders int, activeWriters int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, fl := range m.locks {
		activeReaders += fl.activeReaders
		if fl.activeWriter {
			activeWriters++
		}
	}

	return activeReaders, activeWriters
}

// QueueEntry is one pending request, as exposed by [Manager.Snapshot] and
// accepted by [Manager.Restore].
type QueueEntry struct {
	RequestID   string
	Kind        Kind
	CreatedAt   time.Time
	Timeout     time.Duration
	TTLDeadline time.Time
}

// PathState is the serializable state of one path's lock.
type PathState struct {
	ActiveReaders int
	ActiveWriter  bool
	Queue         []QueueEntry
}

// Snapshot returns a serializable view of every path that currently has
// state or a queue.
func (m *Manager) Snapshot() map[string]PathState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]PathState, len(m.locks))

	for path, fl := range m.locks {
		entries := make([]QueueEntry, len(fl.queue))
		for i, q := range fl.queue {
			entries[i] = QueueEntry{
				RequestID:   q.id.String(),
				Kind:        q.kind,
				CreatedAt:   q.createdAt,
				Timeout:     q.timeout,
				TTLDeadline: q.ttlDeadline,
			}
		}

		out[path] = PathState{
			ActiveReaders: fl.activeReaders,
			ActiveWriter:  fl.activeWriter,
			Queue:         entries,
		}
	}

	return out
}

// Restore installs snapshot verbatim. Queued entries are given fresh
// completion channels in the waiting state: they remain queued until some
// new arrival or release triggers promotion, or until [Manager.PurgeExpired]
// drops them for having an expired TTL.
//
// Restore replaces the whole lock table: any path state or queued request
// already held by the manager is discarded. Restored queue entries keep the
// order they have in snapshot.
func (m *Manager) Restore(snapshot map[string]PathState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locks = make(map[string]*fileLock, len(snapshot))

	for path, ps := range snapshot {
		fl := &fileLock{
			activeReaders: ps.ActiveReaders,
			activeWriter:  ps.ActiveWriter,
		}

		for _, qe := range ps.Queue {
			id, err := uuid.Parse(qe.RequestID)
			if err != nil {
				id = uuid.New()
			}

			fl.queue = append(fl.queue, &request{
				id:          id,
				kind:        qe.Kind,
				createdAt:   qe.CreatedAt,
				timeout:     qe.Timeout,
				ttlDeadline: qe.TTLDeadline,
				granted:     make(chan struct{}),
			})
		}

		m.locks[path] = fl
	}
}

// PurgeExpired removes every queued entry whose ttlDeadline has passed and
// drops any fileLock that becomes fully idle as a result. It is a no-op for
// entries with a zero ttlDeadline (reads, and writes acquired while
// persistence was disabled).
//
// A purged entry's completion channel is closed with purged set, so any
// in-process goroutine still waiting on it (rather than one restored from a
// persisted snapshot with no live waiter) wakes with [ErrPurged] instead of
// blocking forever.
func (m *Manager) PurgeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	for path, fl := range m.locks {
		kept := fl.queue[:0]

		for _, q := range fl.queue {
			if !q.ttlDeadline.IsZero() && now.After(q.ttlDeadline) {
				q.purged = true
				close(q.granted)

				continue
			}

			kept = append(kept, q)
		}

		fl.queue = kept

		if fl.idle() {
			delete(m.locks, path)
		}
	}
}

