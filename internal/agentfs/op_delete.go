package agentfs

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/calvinalkan/agentfs/internal/accesspolicy"
	"github.com/calvinalkan/agentfs/internal/diffengine"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Delete removes req.Path. If req.ExpectedHash is empty the delete is
// unconditional; otherwise a hash mismatch returns a ContentionResult and
// leaves the file in place. Exactly one of the three return values is
// populated, as with [Core.Update].
func (c *Core) Delete(ctx context.Context, req DeleteRequest) (*DeleteResult, *ContentionResult, error) {
	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return nil, nil, mapError(req.Path, err)
	}

	if !c.policy.Allowed(resolved, accesspolicy.OpDelete) {
		return nil, nil, newOpError(CodeAccessDenied, resolved, ErrAccessDenied)
	}

	release, err := c.locks.AcquireWrite(ctx, resolved, c.timeout(req.Timeout))
	if err != nil {
		return nil, nil, mapError(resolved, err)
	}
	defer release()

	raw, err := readFileEnforcingLimit(c.fsys, resolved, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, newOpError(CodeFileNotFound, resolved, ErrFileNotFound)
		}

		return nil, nil, newOpError(CodeServerError, resolved, err)
	}

	currentHash := agentfsio.Hash(raw)

	if req.ExpectedHash != "" && currentHash != req.ExpectedHash {
		diffFormat := req.DiffFormat
		if diffFormat == "" {
			diffFormat = diffengine.FormatJSON
		}

		currentText, err := decodeText(raw, c.cfg.DefaultEncoding)
		if err != nil {
			// A binary or non-UTF-8 file under contention still needs a
			// reportable outcome; fall back to an empty diff body rather
			// than failing the whole delete on a decode error.
			currentText = ""
		}

		contention, err := buildContention(resolved, req.ExpectedHash, currentHash, currentText, nil, nil, diffFormat, c.cfg.DiffContextLines)
		if err != nil {
			return nil, nil, newOpError(CodeServerError, resolved, err)
		}

		return nil, &contention, nil
	}

	if err := c.fsys.Remove(resolved); err != nil {
		return nil, nil, newOpError(CodeDeleteError, resolved, err)
	}

	c.registry.Remove(resolved)
	c.markDirty()

	return &DeleteResult{
		Outcome:     OutcomeOk,
		Path:        resolved,
		DeletedHash: currentHash,
		Timestamp:   time.Now().UTC(),
	}, nil, nil
}
