package agentfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
	"github.com/calvinalkan/agentfs/internal/diffengine"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Rename moves req.OldPath to req.NewPath. Both paths are locked together,
// always in lexicographic order (via [lockmgr.Manager.AcquireDualWrite]),
// so two concurrent renames over the same pair of paths can never deadlock.
// A provided req.ExpectedHash that no longer matches the source returns a
// ContentionResult and leaves both files untouched.
func (c *Core) Rename(ctx context.Context, req RenameRequest) (*RenameResult, *ContentionResult, error) {
	oldResolved, err := c.validate.Validate(req.OldPath)
	if err != nil {
		return nil, nil, mapError(req.OldPath, err)
	}

	newResolved, err := c.validate.Validate(req.NewPath)
	if err != nil {
		return nil, nil, mapError(req.NewPath, err)
	}

	if !c.policy.Allowed(oldResolved, accesspolicy.OpRename) || !c.policy.Allowed(newResolved, accesspolicy.OpRename) {
		return nil, nil, newOpError(CodeAccessDenied, oldResolved, ErrAccessDenied)
	}

	if exists, err := c.fsys.Exists(oldResolved); err != nil {
		return nil, nil, newOpError(CodeServerError, oldResolved, err)
	} else if !exists {
		return nil, nil, newOpError(CodeFileNotFound, oldResolved, ErrFileNotFound)
	}

	if !req.Overwrite {
		if exists, err := c.fsys.Exists(newResolved); err != nil {
			return nil, nil, newOpError(CodeServerError, newResolved, err)
		} else if exists {
			return nil, nil, newOpError(CodeFileExists, newResolved, ErrFileExists)
		}
	}

	release, err := c.locks.AcquireDualWrite(ctx, oldResolved, newResolved, c.timeout(req.Timeout))
	if err != nil {
		return nil, nil, mapError(oldResolved, err)
	}
	defer release()

	if exists, err := c.fsys.Exists(oldResolved); err != nil {
		return nil, nil, newOpError(CodeServerError, oldResolved, err)
	} else if !exists {
		return nil, nil, newOpError(CodeFileNotFound, oldResolved, ErrFileNotFound)
	}

	if !req.Overwrite {
		if exists, err := c.fsys.Exists(newResolved); err != nil {
			return nil, nil, newOpError(CodeServerError, newResolved, err)
		} else if exists {
			return nil, nil, newOpError(CodeFileExists, newResolved, ErrFileExists)
		}
	}

	var sourceHash string

	if req.ExpectedHash != "" {
		raw, err := readFileEnforcingLimit(c.fsys, oldResolved, 0)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil, newOpError(CodeFileNotFound, oldResolved, ErrFileNotFound)
			}

			return nil, nil, newOpError(CodeServerError, oldResolved, err)
		}

		sourceHash = agentfsio.Hash(raw)

		if sourceHash != req.ExpectedHash {
			diffFormat := req.DiffFormat
			if diffFormat == "" {
				diffFormat = diffengine.FormatJSON
			}

			currentText, decodeErr := decodeText(raw, c.cfg.DefaultEncoding)
			if decodeErr != nil {
				currentText = ""
			}

			contention, err := buildContention(oldResolved, req.ExpectedHash, sourceHash, currentText, nil, nil, diffFormat, c.cfg.DiffContextLines)
			if err != nil {
				return nil, nil, newOpError(CodeServerError, oldResolved, err)
			}

			return nil, &contention, nil
		}
	}

	if req.CreateDirs {
		if err := c.fsys.MkdirAll(filepath.Dir(newResolved), 0o755); err != nil {
			return nil, nil, newOpError(CodeRenameError, newResolved, fmt.Errorf("create parent directories: %w", err))
		}
	}

	crossFilesystem, err := agentfsio.SafeRename(c.fsys, oldResolved, newResolved)
	if err != nil {
		return nil, nil, newOpError(CodeRenameError, newResolved, err)
	}

	if sourceHash == "" {
		sourceHash, err = agentfsio.HashFile(c.fsys, newResolved, 0)
		if err != nil {
			return nil, nil, newOpError(CodeServerError, newResolved, err)
		}
	}

	c.registry.Remove(oldResolved)
	c.registry.Update(newResolved, sourceHash)
	c.markDirty()

	return &RenameResult{
		Outcome:         OutcomeOk,
		OldPath:         oldResolved,
		NewPath:         newResolved,
		Hash:            sourceHash,
		CrossFilesystem: crossFilesystem,
		Timestamp:       time.Now().UTC(),
	}, nil, nil
}
