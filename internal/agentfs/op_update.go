package agentfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
	"github.com/calvinalkan/agentfs/internal/diffengine"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Update replaces req.Path's content, either wholesale (req.Content) or via
// sequential patches (req.Patches), but only if the file's current hash
// still matches req.ExpectedHash. A mismatch returns a ContentionResult
// instead of an error and leaves the file untouched; exactly one of the
// three return values is populated on any given call: (result, nil, nil) on
// success, (nil, contention, nil) on contention, (nil, nil, err) on error.
func (c *Core) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, *ContentionResult, error) {
	if (req.Content == nil) == (len(req.Patches) == 0) {
		return nil, nil, newOpError(CodeContentOrPatchesRequired, req.Path, ErrContentOrPatchesRequired)
	}

	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return nil, nil, mapError(req.Path, err)
	}

	if !c.policy.Allowed(resolved, accesspolicy.OpUpdate) {
		return nil, nil, newOpError(CodeAccessDenied, resolved, ErrAccessDenied)
	}

	if exists, err := c.fsys.Exists(resolved); err != nil {
		return nil, nil, newOpError(CodeServerError, resolved, err)
	} else if !exists {
		return nil, nil, newOpError(CodeFileNotFound, resolved, ErrFileNotFound)
	}

	release, err := c.locks.AcquireWrite(ctx, resolved, c.timeout(req.Timeout))
	if err != nil {
		return nil, nil, mapError(resolved, err)
	}
	defer release()

	raw, err := readFileEnforcingLimit(c.fsys, resolved, c.cfg.MaxFileSizeBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, newOpError(CodeFileNotFound, resolved, ErrFileNotFound)
		}

		return nil, nil, newOpError(CodeServerError, resolved, err)
	}

	currentHash := agentfsio.Hash(raw)

	encoding := c.resolveEncoding(req.Encoding)

	currentText, err := decodeText(raw, encoding)
	if err != nil {
		return nil, nil, mapError(resolved, err)
	}

	diffFormat := req.DiffFormat
	if diffFormat == "" {
		diffFormat = diffengine.FormatJSON
	}

	if currentHash != req.ExpectedHash {
		contention, err := buildContention(resolved, req.ExpectedHash, currentHash, currentText, req.Content, req.Patches, diffFormat, c.cfg.DiffContextLines)
		if err != nil {
			return nil, nil, newOpError(CodeServerError, resolved, err)
		}

		return nil, &contention, nil
	}

	var newText string

	if req.Content != nil {
		newText = *req.Content
	} else {
		newText, err = diffengine.Apply(currentText, req.Patches)
		if err != nil {
			return nil, nil, mapError(resolved, err)
		}
	}

	data, err := encodeText(newText, encoding)
	if err != nil {
		return nil, nil, mapError(resolved, err)
	}

	if err := c.writer.Write(resolved, bytes.NewReader(data), c.writer.DefaultOptions()); err != nil {
		return nil, nil, newOpError(CodeWriteError, resolved, fmt.Errorf("atomic write: %w", err))
	}

	newHash := agentfsio.Hash(data)
	c.registry.Update(resolved, newHash)
	c.markDirty()

	return &UpdateResult{
		Outcome:      OutcomeOk,
		Path:         resolved,
		PreviousHash: currentHash,
		Hash:         newHash,
		Timestamp:    time.Now().UTC(),
	}, nil, nil
}
