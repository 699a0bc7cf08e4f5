package agentfs

import (
	"context"
	"strings"
	"time"

	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Read validates req.Path, takes a shared read lock, reads and hashes the
// full file, decodes it to text, and returns the requested line slice. The
// returned hash is always of the full file, never of the returned slice.
func (c *Core) Read(ctx context.Context, req ReadRequest) (ReadResult, error) {
	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return ReadResult{}, mapError(req.Path, err)
	}

	release, err := c.locks.AcquireRead(ctx, resolved)
	if err != nil {
		return ReadResult{}, mapError(resolved, err)
	}
	defer release()

	raw, err := readFileEnforcingLimit(c.fsys, resolved, c.cfg.MaxFileSizeBytes)
	if err != nil {
		return ReadResult{}, mapError(resolved, err)
	}

	hash := agentfsio.Hash(raw)

	text, err := decodeText(raw, c.resolveEncoding(req.Encoding))
	if err != nil {
		return ReadResult{}, mapError(resolved, err)
	}

	lines := splitLinesDroppingTrailingEmpty(text)
	totalLines := len(lines)

	start := req.Offset
	if start < 0 {
		start = 0
	}

	if start > totalLines {
		start = totalLines
	}

	end := totalLines
	if req.Limit != nil {
		limited := start + *req.Limit
		if limited < end {
			end = limited
		}
	}

	selected := lines[start:end]

	content := strings.Join(selected, "\n")
	if len(selected) > 0 {
		content += "\n"
	}

	return ReadResult{
		Outcome:       OutcomeOk,
		Content:       content,
		TotalLines:    totalLines,
		Offset:        req.Offset,
		Limit:         req.Limit,
		LinesReturned: len(selected),
		Hash:          hash,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// splitLinesDroppingTrailingEmpty splits text on "\n" and drops the final
// phantom empty element produced when text itself ends with a newline, so
// total_lines counts logical lines rather than newline-delimited segments.
func splitLinesDroppingTrailingEmpty(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
