package agentfs

import (
	"context"
	"fmt"
	"time"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
	"github.com/calvinalkan/agentfs/internal/hashreg"
	"github.com/calvinalkan/agentfs/internal/lockmgr"
	"github.com/calvinalkan/agentfs/internal/pathvalidate"
	"github.com/calvinalkan/agentfs/internal/persistence"
	"github.com/calvinalkan/agentfs/internal/watcher"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Core wires every component together and implements the eight Tool
// Operations plus their batch variants, and the Search operation. Construct
// with [New].
type Core struct {
	cfg Config

	fsys     agentfsio.FS
	writer   *agentfsio.AtomicWriter
	validate *pathvalidate.Validator
	registry *hashreg.Registry
	locks    *lockmgr.Manager
	policy   *accesspolicy.Policy
	watch    *watcher.Watcher // nil if disabled
	persist  *persistence.Manager

	logger    Logger
	startedAt time.Time

	transport string // diagnostic label surfaced by Status(); no transport is implemented
}

// New builds a Core from cfg. It does not touch the filesystem or start any
// background component; call [Core.Start] for that.
func New(cfg Config, fsys agentfsio.FS, logger Logger) (*Core, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	validator, err := pathvalidate.New(cfg.BaseDirectories)
	if err != nil {
		return nil, fmt.Errorf("build path validator: %w", err)
	}

	registry := hashreg.New()

	locks := lockmgr.New(lockmgr.Options{
		PersistenceEnabled: cfg.Persistence.Enabled,
		TTLMultiplier:      cfg.Persistence.TTLMultiplier,
	})

	policy := accesspolicy.New(toAccessRules(cfg.AccessRules), accesspolicy.Action(cfg.DefaultDestructivePolicy))

	persist := persistence.New(persistence.Options{
		Enabled:       cfg.Persistence.Enabled,
		StateFilePath: cfg.Persistence.StateFile,
		WriteDebounce: secondsToDuration(cfg.Persistence.WriteDebounceSeconds),
		FS:            fsys,
		Registry:      registry,
		LockManager:   locks,
		Logger:        logger,
	})

	var watch *watcher.Watcher
	if cfg.Watcher.Enabled {
		watch = watcher.New(watcher.Options{
			BaseDirectories: cfg.BaseDirectories,
			Registry:        registry,
			FS:              fsys,
			MaxFileSize:     cfg.MaxFileSizeBytes,
			DebounceWindow:  time.Duration(cfg.Watcher.DebounceMS) * time.Millisecond,
			Logger:          logger,
		})
	}

	return &Core{
		cfg:       cfg,
		fsys:      fsys,
		writer:    agentfsio.NewAtomicWriter(fsys),
		validate:  validator,
		registry:  registry,
		locks:     locks,
		policy:    policy,
		watch:     watch,
		persist:   persist,
		logger:    logger,
		startedAt: time.Now(),
		transport: "none",
	}, nil
}

func toAccessRules(cfg []AccessRuleConfig) []accesspolicy.Rule {
	rules := make([]accesspolicy.Rule, len(cfg))

	for i, r := range cfg {
		ops := make([]accesspolicy.Operation, len(r.Operations))
		for j, o := range r.Operations {
			ops[j] = accesspolicy.Operation(o)
		}

		rules[i] = accesspolicy.Rule{
			PathPrefix: r.PathPrefix,
			Operations: ops,
			Action:     accesspolicy.Action(r.Action),
			Priority:   r.Priority,
		}
	}

	return rules
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Start runs the persistence startup recovery pass and, if configured,
// begins the filesystem watcher. Call once before serving any operation.
func (c *Core) Start(ctx context.Context) error {
	if err := c.persist.Load(); err != nil {
		return fmt.Errorf("persistence startup load: %w", err)
	}

	if c.watch != nil {
		if err := c.watch.Start(ctx); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
	}

	return nil
}

// Close stops the watcher, flushes persistence, and waits for in-flight
// locks to drain up to ctx's deadline (or indefinitely if ctx carries none).
// It always attempts every shutdown step even if an earlier one fails,
// returning the first error encountered.
func (c *Core) Close(ctx context.Context) error {
	var firstErr error

	if c.watch != nil {
		if err := c.watch.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close watcher: %w", err)
		}
	}

	if err := c.drainLocks(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := c.persist.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close persistence: %w", err)
	}

	return firstErr
}

// drainLocks polls the lock manager's aggregate counters until no lock is
// held or ctx is done, whichever comes first. It never forcibly cancels an
// in-flight operation; it only waits.
func (c *Core) drainLocks(ctx context.Context) error {
	const pollInterval = 20 * time.Millisecond

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		readers, writers := c.locks.Aggregate()
		if readers == 0 && writers == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("drain locks: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Reconcile re-runs the registry-vs-disk revalidation pass on demand,
// dropping entries for files that vanished and refreshing hashes that
// drifted since the last completed operation, outside of the normal
// startup path.
func (c *Core) Reconcile(_ context.Context) error {
	return c.persist.Revalidate()
}

func (c *Core) markDirty() {
	c.persist.MarkDirty()
}

func (c *Core) timeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return secondsToDuration(c.cfg.DefaultTimeout)
	}

	max := secondsToDuration(c.cfg.MaxTimeout)
	if requested > max {
		return max
	}

	return requested
}
