package agentfs

import (
	"time"

	"github.com/calvinalkan/agentfs/internal/lockmgr"
)

// Status reports either server-wide state (req.Path empty) or a single
// path's lock and registration state. Exactly one of the two returns is
// non-nil.
func (c *Core) Status(req StatusRequest) (*ServerStatus, *PathStatus, error) {
	if req.Path == "" {
		readers, writers := c.locks.Aggregate()

		return &ServerStatus{
			Outcome:            OutcomeOk,
			UptimeSeconds:      time.Since(c.startedAt).Seconds(),
			Transport:          c.transport,
			PersistenceEnabled: c.cfg.Persistence.Enabled,
			BaseDirectories:    append([]string(nil), c.cfg.BaseDirectories...),
			RegisteredFiles:    c.registry.Len(),
			ActiveReaders:      readers,
			ActiveWriters:      writers,
			Timestamp:          time.Now().UTC(),
		}, nil, nil
	}

	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return nil, nil, mapError(req.Path, err)
	}

	exists, err := c.fsys.Exists(resolved)
	if err != nil {
		return nil, nil, newOpError(CodeServerError, resolved, err)
	}

	var hash *string
	if h, ok := c.registry.Get(resolved); ok {
		hash = &h
	}

	state := c.locks.Status(resolved)

	return nil, &PathStatus{
		Outcome:       OutcomeOk,
		Path:          resolved,
		Exists:        exists,
		Hash:          hash,
		LockState:     lockStateOf(state),
		ActiveReaders: state.ActiveReaders,
		QueueDepth:    state.Queued,
		Timestamp:     time.Now().UTC(),
	}, nil
}

func lockStateOf(state lockmgr.State) LockState {
	switch {
	case state.ActiveWriter:
		return LockWriteLocked
	case state.ActiveReaders > 0:
		return LockReadLocked
	default:
		return LockUnlocked
	}
}
