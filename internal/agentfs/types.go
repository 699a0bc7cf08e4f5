package agentfs

import (
	"time"

	"github.com/calvinalkan/agentfs/internal/diffengine"
)

// Outcome discriminates the two non-error terminal states a Tool Operation
// can reach. A true Go error (never this type) is the third branch of the
// wire envelope's `status` union; see [OpError].
type Outcome string

const (
	OutcomeOk         Outcome = "ok"
	OutcomeContention Outcome = "contention"
)

// Patch is a textual substitution candidate: {old_string, new_string}.
type Patch = diffengine.Patch

// DiffResult is the wire shape of a computed diff: exactly one of Changes or
// Content is populated, matching Format.
type DiffResult struct {
	Format  diffengine.Format
	Changes []diffengine.Change
	Content string
	Summary diffengine.Summary
}

func toDiffResult(d diffengine.Diff) DiffResult {
	return DiffResult{
		Format:  d.Format,
		Changes: d.Changes,
		Content: d.Content,
		Summary: d.Summary,
	}
}

// ContentionResult is returned, instead of an error, when a
// contention-capable mutating operation's expected_hash does not match the
// file's current hash. The file is left unchanged.
type ContentionResult struct {
	Outcome      Outcome
	Path         string
	ExpectedHash string
	CurrentHash  string
	Message      string
	Diff         DiffResult

	// PatchesApplicable, Conflicts, and NonConflictingPatches are populated
	// only when the operation was in patch mode.
	PatchesApplicable     *bool
	Conflicts             []diffengine.Conflict
	NonConflictingPatches []int

	Timestamp time.Time
}

// ReadRequest is the read operation's request envelope.
type ReadRequest struct {
	Path     string
	Offset   int
	Limit    *int
	Encoding string
}

// ReadResult is read's ok-branch response.
type ReadResult struct {
	Outcome       Outcome
	Content       string
	TotalLines    int
	Offset        int
	Limit         *int
	LinesReturned int
	Hash          string
	Timestamp     time.Time
}

// WriteRequest is the create-only write operation's request envelope.
type WriteRequest struct {
	Path       string
	Content    string
	Encoding   string
	CreateDirs bool
	Timeout    time.Duration
}

// WriteResult is write's ok-branch response.
type WriteResult struct {
	Outcome      Outcome
	Path         string
	Hash         string
	BytesWritten int
	Timestamp    time.Time
}

// UpdateRequest is the update operation's request envelope. Exactly one of
// Content or Patches must be set.
type UpdateRequest struct {
	Path         string
	ExpectedHash string
	Content      *string
	Patches      []Patch
	Encoding     string
	Timeout      time.Duration
	DiffFormat   diffengine.Format
}

// UpdateResult is update's ok-branch response.
type UpdateResult struct {
	Outcome      Outcome
	Path         string
	PreviousHash string
	Hash         string
	Timestamp    time.Time
}

// DeleteRequest is the delete operation's request envelope.
type DeleteRequest struct {
	Path         string
	ExpectedHash string // empty means unconditional delete
	Timeout      time.Duration
	DiffFormat   diffengine.Format
}

// DeleteResult is delete's ok-branch response.
type DeleteResult struct {
	Outcome     Outcome
	Path        string
	DeletedHash string
	Timestamp   time.Time
}

// RenameRequest is the rename operation's request envelope.
type RenameRequest struct {
	OldPath      string
	NewPath      string
	ExpectedHash string // empty means unconditional rename
	Overwrite    bool
	CreateDirs   bool
	Timeout      time.Duration
	DiffFormat   diffengine.Format
}

// RenameResult is rename's ok-branch response.
type RenameResult struct {
	Outcome         Outcome
	OldPath         string
	NewPath         string
	Hash            string
	CrossFilesystem bool
	Timestamp       time.Time
}

// AppendRequest is the append operation's request envelope.
type AppendRequest struct {
	Path            string
	Content         string
	Encoding        string
	CreateIfMissing bool
	CreateDirs      bool
	Separator       string
	Timeout         time.Duration
}

// AppendResult is append's ok-branch response.
type AppendResult struct {
	Outcome   Outcome
	Path      string
	Hash      string
	TotalSize int64
	Timestamp time.Time
}

// ListRequest is the list operation's request envelope.
type ListRequest struct {
	Path          string
	Pattern       string // default "*"
	Recursive     bool
	IncludeHashes bool
}

// EntryType distinguishes files from directories in a [ListEntry].
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// ListEntry is one directory entry reported by list.
type ListEntry struct {
	Name     string
	Type     EntryType
	Size     *int64 // nil for directories
	Modified time.Time
	Hash     *string // nil when include_hashes is false or the path isn't registered
}

// ListResult is list's ok-branch response.
type ListResult struct {
	Outcome   Outcome
	Path      string
	Entries   []ListEntry
	Timestamp time.Time
}

// SearchOutputMode controls how much detail search reports per match.
type SearchOutputMode string

const (
	// SearchOutputContent reports every matching line with its content and
	// surrounding context. The default.
	SearchOutputContent SearchOutputMode = "content"
	// SearchOutputFilesWithMatches reports at most one entry per file that
	// contains a match, with no line content.
	SearchOutputFilesWithMatches SearchOutputMode = "files_with_matches"
	// SearchOutputCount suppresses per-match entries entirely; only
	// TotalMatches/FilesSearched are populated.
	SearchOutputCount SearchOutputMode = "count"
)

// SearchRequest is the search operation's request envelope. Pattern is a Go
// regular expression ([regexp/syntax]); Glob filters candidate files by base
// name before Pattern is matched against their content.
type SearchRequest struct {
	Path            string
	Pattern         string
	Glob            string // default "*"
	CaseInsensitive bool
	Recursive       bool
	OutputMode      SearchOutputMode // default SearchOutputContent
	ContextLines    int
	MaxResults      int // 0 means use the configured default
}

// SearchMatch is one reported match. ContextBefore/ContextAfter are empty
// unless req.ContextLines > 0 and OutputMode is SearchOutputContent.
type SearchMatch struct {
	File          string
	LineNumber    int
	LineContent   string
	ContextBefore []string
	ContextAfter  []string
}

// SearchResult is search's ok-branch response.
type SearchResult struct {
	Outcome       Outcome
	Matches       []SearchMatch
	TotalMatches  int
	FilesSearched int
	OutputMode    SearchOutputMode
	Timestamp     time.Time
}

// StatusRequest is the status operation's request envelope. An empty Path
// requests server-wide status.
type StatusRequest struct {
	Path string
}

// LockState summarizes a single path's current lock state for status.
type LockState string

const (
	LockUnlocked    LockState = "unlocked"
	LockReadLocked  LockState = "read_locked"
	LockWriteLocked LockState = "write_locked"
)

// ServerStatus is status's response when no path is requested.
type ServerStatus struct {
	Outcome            Outcome
	UptimeSeconds      float64
	Transport          string
	PersistenceEnabled bool
	BaseDirectories    []string
	RegisteredFiles    int
	ActiveReaders      int
	ActiveWriters      int
	Timestamp          time.Time
}

// PathStatus is status's response when a path is requested.
type PathStatus struct {
	Outcome       Outcome
	Path          string
	Exists        bool
	Hash          *string
	LockState     LockState
	ActiveReaders int
	QueueDepth    int
	Timestamp     time.Time
}

// BatchItemOutcome tags one batch item's per-item result: exactly one of
// Result, Contention (update only), or Err is set.
type BatchItemOutcome[T any] struct {
	Result     *T
	Contention *ContentionResult
	Err        *OpError
}

// BatchSummary is the aggregate count the batch response carries alongside
// per-item outcomes.
type BatchSummary struct {
	Total      int
	Succeeded  int
	Failed     int
	Contention int // only meaningful for batch_update
}

// BatchReadRequest is the batch_read operation's request envelope.
type BatchReadRequest struct {
	Items []ReadRequest
}

// BatchReadResponse is batch_read's response.
type BatchReadResponse struct {
	Items   []BatchItemOutcome[ReadResult]
	Summary BatchSummary
}

// BatchWriteRequest is the batch_write operation's request envelope.
type BatchWriteRequest struct {
	Items []WriteRequest
}

// BatchWriteResponse is batch_write's response.
type BatchWriteResponse struct {
	Items   []BatchItemOutcome[WriteResult]
	Summary BatchSummary
}

// BatchUpdateRequest is the batch_update operation's request envelope.
type BatchUpdateRequest struct {
	Items []UpdateRequest
}

// BatchUpdateResponse is batch_update's response.
type BatchUpdateResponse struct {
	Items   []BatchItemOutcome[UpdateResult]
	Summary BatchSummary
}
