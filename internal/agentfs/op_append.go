package agentfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Append writes req.Content to the end of req.Path. req.Separator, if set,
// is inserted once between the file's existing tail and the new content; it
// is never inserted between lines within req.Content itself. A missing file
// is created first when req.CreateIfMissing is set, otherwise the call fails
// with [CodeFileNotFound].
func (c *Core) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return AppendResult{}, mapError(req.Path, err)
	}

	if !c.policy.Allowed(resolved, accesspolicy.OpWrite) {
		return AppendResult{}, newOpError(CodeAccessDenied, resolved, ErrAccessDenied)
	}

	exists, err := c.fsys.Exists(resolved)
	if err != nil {
		return AppendResult{}, newOpError(CodeServerError, resolved, err)
	}

	if !exists && !req.CreateIfMissing {
		return AppendResult{}, newOpError(CodeFileNotFound, resolved, ErrFileNotFound)
	}

	release, err := c.locks.AcquireWrite(ctx, resolved, c.timeout(req.Timeout))
	if err != nil {
		return AppendResult{}, mapError(resolved, err)
	}
	defer release()

	exists, err = c.fsys.Exists(resolved)
	if err != nil {
		return AppendResult{}, newOpError(CodeServerError, resolved, err)
	}

	if !exists {
		if !req.CreateIfMissing {
			return AppendResult{}, newOpError(CodeFileNotFound, resolved, ErrFileNotFound)
		}

		if req.CreateDirs {
			if err := c.fsys.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
				return AppendResult{}, newOpError(CodeWriteError, resolved, fmt.Errorf("create parent directories: %w", err))
			}
		}
	}

	encoding := c.resolveEncoding(req.Encoding)

	newBytes, err := encodeText(req.Content, encoding)
	if err != nil {
		return AppendResult{}, mapError(resolved, err)
	}

	var priorSize int64

	if exists {
		info, err := c.fsys.Stat(resolved)
		if err != nil {
			return AppendResult{}, newOpError(CodeServerError, resolved, err)
		}

		priorSize = info.Size()
	}

	var payload []byte

	if priorSize > 0 && req.Separator != "" {
		sepBytes, err := encodeText(req.Separator, encoding)
		if err != nil {
			return AppendResult{}, mapError(resolved, err)
		}

		payload = append(payload, sepBytes...)
	}

	payload = append(payload, newBytes...)

	f, err := c.fsys.OpenFile(resolved, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return AppendResult{}, newOpError(CodeWriteError, resolved, err)
	}

	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return AppendResult{}, newOpError(CodeWriteError, resolved, err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return AppendResult{}, newOpError(CodeWriteError, resolved, err)
	}

	if err := f.Close(); err != nil {
		return AppendResult{}, newOpError(CodeWriteError, resolved, err)
	}

	hash, err := agentfsio.HashFile(c.fsys, resolved, 0)
	if err != nil {
		return AppendResult{}, newOpError(CodeServerError, resolved, err)
	}

	info, err := c.fsys.Stat(resolved)
	if err != nil {
		return AppendResult{}, newOpError(CodeServerError, resolved, err)
	}

	c.registry.Update(resolved, hash)
	c.markDirty()

	return AppendResult{
		Outcome:   OutcomeOk,
		Path:      resolved,
		Hash:      hash,
		TotalSize: info.Size(),
		Timestamp: time.Now().UTC(),
	}, nil
}
