package agentfs

import (
	"context"
	"path/filepath"
	"time"
)

// List enumerates req.Path's directory contents, optionally recursing into
// subdirectories and filtering by req.Pattern (a [filepath.Match] glob
// matched against each entry's base name, default "*").
//
// List is read-only and, like [Core.Read], is not gated by the access
// policy: [accesspolicy] only governs the mutating operations.
func (c *Core) List(ctx context.Context, req ListRequest) (ListResult, error) {
	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return ListResult{}, mapError(req.Path, err)
	}

	info, err := c.fsys.Stat(resolved)
	if err != nil {
		return ListResult{}, newOpError(CodeDirNotFound, resolved, ErrDirNotFound)
	}

	if !info.IsDir() {
		return ListResult{}, newOpError(CodeDirNotFound, resolved, ErrDirNotFound)
	}

	pattern := req.Pattern
	if pattern == "" {
		pattern = "*"
	}

	entries, err := c.listDir(resolved, pattern, req.Recursive, req.IncludeHashes)
	if err != nil {
		return ListResult{}, newOpError(CodeServerError, resolved, err)
	}

	return ListResult{
		Outcome:   OutcomeOk,
		Path:      resolved,
		Entries:   entries,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (c *Core) listDir(dir, pattern string, recursive, includeHashes bool) ([]ListEntry, error) {
	dirEntries, err := c.fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []ListEntry

	for _, de := range dirEntries {
		matched, err := filepath.Match(pattern, de.Name())
		if err != nil {
			return nil, err
		}

		full := filepath.Join(dir, de.Name())

		if de.IsDir() {
			if matched {
				info, err := de.Info()
				if err != nil {
					return nil, err
				}

				out = append(out, ListEntry{
					Name:     de.Name(),
					Type:     EntryDirectory,
					Modified: info.ModTime(),
				})
			}

			if recursive {
				nested, err := c.listDir(full, pattern, recursive, includeHashes)
				if err != nil {
					return nil, err
				}

				out = append(out, nested...)
			}

			continue
		}

		if !matched {
			continue
		}

		info, err := de.Info()
		if err != nil {
			return nil, err
		}

		size := info.Size()

		entry := ListEntry{
			Name:     de.Name(),
			Type:     EntryFile,
			Size:     &size,
			Modified: info.ModTime(),
		}

		if includeHashes {
			if hash, ok := c.registry.Get(full); ok {
				entry.Hash = &hash
			}
		}

		out = append(out, entry)
	}

	return out, nil
}
