// Package diffengine computes structured and unified diffs between two text
// bodies and determines which of a set of candidate patches still apply to a
// given body.
//
// Line splitting is logical: JSON-mode diffing ignores line terminators
// entirely (two bodies differing only in a trailing newline still diff
// correctly), while unified-mode rendering keeps them, matching the textual
// convention of a real unified diff.
package diffengine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ErrInvalidPatch is returned when a patch's old_string cannot be found in
// the text it is applied against.
var ErrInvalidPatch = errors.New("patch old_string not found in content")

// Format selects the shape of a computed Diff.
type Format string

const (
	FormatJSON    Format = "json"
	FormatUnified Format = "unified"
)

// ChangeKind tags a structured change region.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Removed  ChangeKind = "removed"
	Modified ChangeKind = "modified"
)

// Change is one structured, non-equal region between two texts.
type Change struct {
	Kind ChangeKind

	// StartLine and EndLine are 1-based and inclusive, counted against the
	// old side for Removed/Modified and the new side for Added.
	StartLine int
	EndLine   int

	OldContent string
	NewContent string

	ContextBefore []string
	ContextAfter  []string
}

// Summary carries the counts an agent uses to gauge the size of a diff
// without reading every change region.
type Summary struct {
	LinesAdded    int
	LinesRemoved  int
	LinesModified int
	TotalRegions  int
}

// Diff is the result of [Compute]. Exactly one of Changes or Content is
// populated, matching Format.
type Diff struct {
	Format  Format
	Changes []Change // populated for FormatJSON
	Content string   // populated for FormatUnified
	Summary Summary
}

// Compute produces a diff between expected and current. contextLines bounds
// how many lines of surrounding context each change carries (JSON mode) or
// how wide each unified hunk is (unified mode); values <= 0 fall back to 3.
func Compute(expected, current string, format Format, contextLines int) (Diff, error) {
	if contextLines <= 0 {
		contextLines = 3
	}

	switch format {
	case FormatUnified:
		return computeUnified(expected, current, contextLines)
	case FormatJSON, "":
		return computeJSON(expected, current, contextLines)
	default:
		return Diff{}, fmt.Errorf("diffengine: unknown format %q", format)
	}
}

func splitLogical(s string) []string {
	return strings.Split(s, "\n")
}

func computeJSON(expected, current string, contextLines int) (Diff, error) {
	oldLines := splitLogical(expected)
	newLines := splitLogical(current)

	matcher := difflib.NewMatcher(oldLines, newLines)
	opcodes := matcher.GetOpCodes()

	var changes []Change
	var summary Summary

	for idx, op := range opcodes {
		if op.Tag == 'e' {
			continue
		}

		change := Change{
			ContextBefore: contextBefore(opcodes, idx, oldLines, contextLines),
			ContextAfter:  contextAfter(opcodes, idx, oldLines, contextLines),
		}

		switch op.Tag {
		case 'i':
			change.Kind = Added
			change.StartLine = op.J1 + 1
			change.EndLine = op.J2
			change.NewContent = strings.Join(newLines[op.J1:op.J2], "\n")
			summary.LinesAdded += op.J2 - op.J1
		case 'd':
			change.Kind = Removed
			change.StartLine = op.I1 + 1
			change.EndLine = op.I2
			change.OldContent = strings.Join(oldLines[op.I1:op.I2], "\n")
			summary.LinesRemoved += op.I2 - op.I1
		case 'r':
			change.Kind = Modified
			change.StartLine = op.I1 + 1
			oldExtent := op.I2 - op.I1
			newExtent := op.J2 - op.J1
			extent := oldExtent
			if newExtent > extent {
				extent = newExtent
			}
			change.EndLine = op.I1 + extent
			change.OldContent = strings.Join(oldLines[op.I1:op.I2], "\n")
			change.NewContent = strings.Join(newLines[op.J1:op.J2], "\n")
			summary.LinesModified += extent
		}

		changes = append(changes, change)
		summary.TotalRegions++
	}

	return Diff{Format: FormatJSON, Changes: changes, Summary: summary}, nil
}

// contextBefore returns up to n lines preceding opcodes[idx], drawn from the
// equal block immediately before it (nil if idx is the first opcode).
func contextBefore(opcodes []difflib.OpCode, idx int, oldLines []string, n int) []string {
	if idx == 0 {
		return nil
	}

	prev := opcodes[idx-1]
	if prev.Tag != 'e' {
		return nil
	}

	start := prev.I2 - n
	if start < prev.I1 {
		start = prev.I1
	}

	return append([]string(nil), oldLines[start:prev.I2]...)
}

// contextAfter returns up to n lines following opcodes[idx], drawn from the
// equal block immediately after it (nil if idx is the last opcode).
func contextAfter(opcodes []difflib.OpCode, idx int, oldLines []string, n int) []string {
	if idx == len(opcodes)-1 {
		return nil
	}

	next := opcodes[idx+1]
	if next.Tag != 'e' {
		return nil
	}

	end := next.I1 + n
	if end > next.I2 {
		end = next.I2
	}

	return append([]string(nil), oldLines[next.I1:end]...)
}

func computeUnified(expected, current string, contextLines int) (Diff, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(current),
		FromFile: "expected",
		ToFile:   "current",
		Context:  contextLines,
	}

	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return Diff{}, fmt.Errorf("diffengine: render unified diff: %w", err)
	}

	return Diff{
		Format:  FormatUnified,
		Content: text,
		Summary: summarizeUnified(text),
	}, nil
}

// summarizeUnified parses a rendered unified diff back into summary counts,
// per the textual counting rule: each hunk header is one region, each
// non-marker +/- line counts as raw added/removed, and lines_modified is the
// min of the two raw counts within a hunk, deducted from both.
func summarizeUnified(text string) Summary {
	var summary Summary

	var hunkAdded, hunkRemoved int
	flushHunk := func() {
		modified := hunkAdded
		if hunkRemoved < modified {
			modified = hunkRemoved
		}

		summary.LinesAdded += hunkAdded - modified
		summary.LinesRemoved += hunkRemoved - modified
		summary.LinesModified += modified

		hunkAdded, hunkRemoved = 0, 0
	}

	started := false

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			if started {
				flushHunk()
			}

			started = true
			summary.TotalRegions++
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			// file headers, not content lines
		case strings.HasPrefix(line, "+"):
			hunkAdded++
		case strings.HasPrefix(line, "-"):
			hunkRemoved++
		}
	}

	if started {
		flushHunk()
	}

	return summary
}

// Patch is one candidate textual substitution: the first occurrence of
// OldString is replaced with NewString.
type Patch struct {
	OldString string
	NewString string
}

// Conflict explains why a patch can no longer apply.
type Conflict struct {
	PatchIndex int
	Reason     string
}

// Applicability is the result of checking a list of patches against a body
// of text, without mutating anything.
type Applicability struct {
	AllApplicable bool
	Applicable    []int // indices into the submitted patch list, in order
	Conflicts     []Conflict
}

// CheckApplicability reports, for each patch, whether its OldString is
// present in current. The check is purely textual (substring membership)
// against the text as submitted; it does not account for patches
// interacting with each other's replacements.
func CheckApplicability(current string, patches []Patch) Applicability {
	result := Applicability{AllApplicable: true}

	for i, p := range patches {
		if strings.Contains(current, p.OldString) {
			result.Applicable = append(result.Applicable, i)
			continue
		}

		result.AllApplicable = false
		result.Conflicts = append(result.Conflicts, Conflict{
			PatchIndex: i,
			Reason:     "old_string not found",
		})
	}

	return result
}

// Apply sequentially replaces the first occurrence of each patch's
// OldString with its NewString, in list order. It fails with ErrInvalidPatch
// identifying the first patch whose OldString is missing from the
// then-current text.
func Apply(current string, patches []Patch) (string, error) {
	text := current

	for i, p := range patches {
		idx := strings.Index(text, p.OldString)
		if idx < 0 {
			return "", fmt.Errorf("patch %d: %w", i, ErrInvalidPatch)
		}

		text = text[:idx] + p.NewString + text[idx+len(p.OldString):]
	}

	return text, nil
}

// ApplyBestEffort sequentially replaces the first occurrence of each
// patch's OldString with its NewString, in list order, skipping (rather
// than failing on) any patch whose OldString is absent from the then-current
// text. It is used to synthesize the hypothetical post-patch text shown as
// the "expected" side of a contention diff, where some submitted patches are
// expected not to apply.
func ApplyBestEffort(current string, patches []Patch) string {
	text := current

	for _, p := range patches {
		idx := strings.Index(text, p.OldString)
		if idx < 0 {
			continue
		}

		text = text[:idx] + p.NewString + text[idx+len(p.OldString):]
	}

	return text
}
