package agentfs

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Write creates req.Path with req.Content. It never overwrites an existing
// file: existence is checked once before lock acquisition (to fail fast)
// and once more under the lock (to close the race a concurrent writer could
// otherwise win).
func (c *Core) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return WriteResult{}, mapError(req.Path, err)
	}

	if !c.policy.Allowed(resolved, accesspolicy.OpWrite) {
		return WriteResult{}, newOpError(CodeAccessDenied, resolved, ErrAccessDenied)
	}

	if exists, err := c.fsys.Exists(resolved); err != nil {
		return WriteResult{}, newOpError(CodeServerError, resolved, err)
	} else if exists {
		return WriteResult{}, newOpError(CodeFileExists, resolved, ErrFileExists)
	}

	release, err := c.locks.AcquireWrite(ctx, resolved, c.timeout(req.Timeout))
	if err != nil {
		return WriteResult{}, mapError(resolved, err)
	}
	defer release()

	if exists, err := c.fsys.Exists(resolved); err != nil {
		return WriteResult{}, newOpError(CodeServerError, resolved, err)
	} else if exists {
		return WriteResult{}, newOpError(CodeFileExists, resolved, ErrFileExists)
	}

	if req.CreateDirs {
		if err := c.fsys.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return WriteResult{}, newOpError(CodeWriteError, resolved, fmt.Errorf("create parent directories: %w", err))
		}
	}

	data, err := encodeText(req.Content, c.resolveEncoding(req.Encoding))
	if err != nil {
		return WriteResult{}, mapError(resolved, err)
	}

	opts := c.writer.DefaultOptions()

	if err := c.writer.Write(resolved, bytes.NewReader(data), opts); err != nil {
		return WriteResult{}, newOpError(CodeWriteError, resolved, err)
	}

	hash := agentfsio.Hash(data)
	c.registry.Update(resolved, hash)
	c.markDirty()

	return WriteResult{
		Outcome:      OutcomeOk,
		Path:         resolved,
		Hash:         hash,
		BytesWritten: len(data),
		Timestamp:    time.Now().UTC(),
	}, nil
}

