package agentfs

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Search scans files under req.Path for lines matching req.Pattern,
// descending into subdirectories only when req.Recursive is set, the way
// List enumerates names for a directory. Unlike List,
// Search looks inside file content: Glob narrows which files are read (by
// base name, default "*"), Pattern is matched line by line against each
// file's decoded text.
//
// Search is read-only and, like [Core.Read] and [Core.List], is not gated
// by the access policy.
func (c *Core) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if !c.cfg.Search.Enabled {
		return SearchResult{}, newOpError(CodeSearchDisabled, req.Path, ErrSearchDisabled)
	}

	resolved, err := c.validate.Validate(req.Path)
	if err != nil {
		return SearchResult{}, mapError(req.Path, err)
	}

	info, err := c.fsys.Stat(resolved)
	if err != nil || !info.IsDir() {
		return SearchResult{}, newOpError(CodeDirNotFound, resolved, ErrDirNotFound)
	}

	pattern := req.Pattern
	if req.CaseInsensitive {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return SearchResult{}, newOpError(CodeInvalidPattern, resolved, fmt.Errorf("%w: %w", ErrInvalidPattern, err))
	}

	glob := req.Glob
	if glob == "" {
		glob = "*"
	}

	outputMode := req.OutputMode
	if outputMode == "" {
		outputMode = SearchOutputContent
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = c.cfg.Search.MaxResults
	}

	s := &searchScan{
		fsys:         c.fsys,
		re:           re,
		glob:         glob,
		outputMode:   outputMode,
		contextLines: req.ContextLines,
		maxResults:   maxResults,
		maxFileSize:  c.cfg.Search.MaxFileSizeBytes,
		encoding:     c.resolveEncoding(""),
	}

	if err := s.walk(resolved, req.Recursive); err != nil {
		return SearchResult{}, newOpError(CodeServerError, resolved, err)
	}

	return SearchResult{
		Outcome:       OutcomeOk,
		Matches:       s.matches,
		TotalMatches:  s.totalMatches,
		FilesSearched: s.filesSearched,
		OutputMode:    outputMode,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// searchScan carries one Search call's immutable settings plus its
// accumulating results across the directory walk.
type searchScan struct {
	fsys         agentfsio.FS
	re           *regexp.Regexp
	glob         string
	outputMode   SearchOutputMode
	contextLines int
	maxResults   int
	maxFileSize  int64
	encoding     string

	matches       []SearchMatch
	totalMatches  int
	filesSearched int
}

// walk scans dir's files matching s.glob, recursing into subdirectories
// when recursive is true. content/files_with_matches modes stop descending
// further once s.maxResults entries have been collected; count mode keeps
// scanning everything, since its whole purpose is a true total.
func (s *searchScan) walk(dir string, recursive bool) error {
	if s.outputMode != SearchOutputCount && len(s.matches) >= s.maxResults {
		return nil
	}

	entries, err := s.fsys.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, de := range entries {
		full := filepath.Join(dir, de.Name())

		if de.IsDir() {
			if recursive {
				if err := s.walk(full, recursive); err != nil {
					return err
				}
			}

			continue
		}

		matched, err := doublestar.Match(s.glob, de.Name())
		if err != nil {
			return err
		}

		if !matched {
			continue
		}

		if err := s.scanFile(full); err != nil {
			return err
		}

		if s.outputMode != SearchOutputCount && len(s.matches) >= s.maxResults {
			return nil
		}
	}

	return nil
}

// scanFile reads one candidate file and records its matching lines. Files
// over the configured size limit, and files that don't decode as text, are
// silently skipped rather than failing the whole scan, the same way a
// content search tool skips binaries.
func (s *searchScan) scanFile(path string) error {
	info, err := s.fsys.Stat(path)
	if err != nil {
		return err
	}

	if info.Size() > s.maxFileSize {
		return nil
	}

	raw, err := s.fsys.ReadFile(path)
	if err != nil {
		return err
	}

	text, err := decodeText(raw, s.encoding)
	if err != nil {
		return nil
	}

	s.filesSearched++

	lines := strings.Split(text, "\n")

	fileHasMatch := false

	for i, line := range lines {
		if !s.re.MatchString(line) {
			continue
		}

		s.totalMatches++

		if s.outputMode == SearchOutputCount {
			continue
		}

		if s.outputMode == SearchOutputFilesWithMatches {
			if !fileHasMatch {
				fileHasMatch = true
				s.matches = append(s.matches, SearchMatch{File: path})
			}

			continue
		}

		if len(s.matches) >= s.maxResults {
			return nil
		}

		s.matches = append(s.matches, SearchMatch{
			File:          path,
			LineNumber:    i + 1,
			LineContent:   line,
			ContextBefore: contextSlice(lines, i-s.contextLines, i),
			ContextAfter:  contextSlice(lines, i+1, i+1+s.contextLines),
		})
	}

	return nil
}

// contextSlice returns lines[start:end], clamped to lines' bounds, or nil
// if the clamped range is empty.
func contextSlice(lines []string, start, end int) []string {
	if start < 0 {
		start = 0
	}

	if end > len(lines) {
		end = len(lines)
	}

	if start >= end {
		return nil
	}

	return lines[start:end]
}
