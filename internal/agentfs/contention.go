package agentfs

import (
	"time"

	"github.com/calvinalkan/agentfs/internal/diffengine"
)

// buildContention assembles the common shape of a contention response: a
// diff between the hypothetical post-mutation text and the file's actual
// current text, plus (in patch mode) per-patch applicability.
//
// For content-mode callers, expectedContent is the content the caller asked
// to write verbatim. For patch-mode callers (patches non-nil), expectedContent
// is ignored and the hypothetical text is instead synthesized by applying
// every patch that still matches the current text and skipping the rest —
// the same best-effort application a caller could compute themselves, shown
// so an agent can see what its patch set would have produced.
func buildContention(
	path, expectedHash, currentHash, currentText string,
	expectedContent *string,
	patches []Patch,
	format diffengine.Format,
	contextLines int,
) (ContentionResult, error) {
	var expectedText string

	var patchesApplicable *bool

	var conflicts []diffengine.Conflict

	var nonConflicting []int

	if len(patches) > 0 {
		applicability := diffengine.CheckApplicability(currentText, patches)
		all := applicability.AllApplicable
		patchesApplicable = &all
		conflicts = applicability.Conflicts
		nonConflicting = applicability.Applicable
		expectedText = diffengine.ApplyBestEffort(currentText, patches)
	} else if expectedContent != nil {
		expectedText = *expectedContent
	}

	diff, err := diffengine.Compute(expectedText, currentText, format, contextLines)
	if err != nil {
		return ContentionResult{}, err
	}

	return ContentionResult{
		Outcome:               OutcomeContention,
		Path:                  path,
		ExpectedHash:          expectedHash,
		CurrentHash:           currentHash,
		Message:               "the file's current hash does not match expected_hash; the file was not modified",
		Diff:                  toDiffResult(diff),
		PatchesApplicable:     patchesApplicable,
		Conflicts:             conflicts,
		NonConflictingPatches: nonConflicting,
		Timestamp:             time.Now().UTC(),
	}, nil
}
