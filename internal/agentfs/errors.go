package agentfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/agentfs/internal/diffengine"
	"github.com/calvinalkan/agentfs/internal/lockmgr"
	"github.com/calvinalkan/agentfs/internal/pathvalidate"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// Code is a stable string token identifying an operation failure. Codes are
// part of the wire contract and must never be renamed or reused for a
// different meaning.
type Code string

const (
	CodeFileNotFound             Code = "FILE_NOT_FOUND"
	CodeFileExists               Code = "FILE_EXISTS"
	CodeAccessDenied             Code = "ACCESS_DENIED"
	CodePathOutsideBase          Code = "PATH_OUTSIDE_BASE"
	CodeLockTimeout              Code = "LOCK_TIMEOUT"
	CodeEncodingError            Code = "ENCODING_ERROR"
	CodeInvalidPatch             Code = "INVALID_PATCH"
	CodeContentOrPatchesRequired Code = "CONTENT_OR_PATCHES_REQUIRED"
	CodeFileTooLarge             Code = "FILE_TOO_LARGE"
	CodeWriteError               Code = "WRITE_ERROR"
	CodeDeleteError              Code = "DELETE_ERROR"
	CodeRenameError              Code = "RENAME_ERROR"
	CodeDirNotFound              Code = "DIR_NOT_FOUND"
	CodeServerError              Code = "SERVER_ERROR"
	CodeSearchDisabled           Code = "SEARCH_DISABLED"
	CodeInvalidPattern           Code = "INVALID_PATTERN"
)

// sentinel errors for conditions this package itself detects, not
// originating from a lower component.
var (
	ErrAccessDenied             = errors.New("access denied by policy")
	ErrFileExists               = errors.New("file already exists")
	ErrFileNotFound             = errors.New("file not found")
	ErrDirNotFound              = errors.New("directory not found")
	ErrEncodingError            = errors.New("encoding error")
	ErrContentOrPatchesRequired = errors.New("exactly one of content or patches is required")
	ErrSearchDisabled           = errors.New("content search is disabled")
	ErrInvalidPattern           = errors.New("invalid search pattern")
)

// OpError is the error type every Tool Operation returns on failure. It
// pairs a stable Code with the path it concerns (if any) and the underlying
// cause.
type OpError struct {
	code Code
	path string
	err  error
}

func newOpError(code Code, path string, err error) *OpError {
	return &OpError{code: code, path: path, err: err}
}

func (e *OpError) Error() string {
	if e.path == "" {
		return fmt.Sprintf("%s: %v", e.code, e.err)
	}

	return fmt.Sprintf("%s: %s: %v", e.code, e.path, e.err)
}

func (e *OpError) Unwrap() error { return e.err }

// Code reports the stable error-code token, for serialization onto the
// `error_code` field of an error response envelope.
func (e *OpError) Code() Code { return e.code }

// Path reports the path the error concerns, if any.
func (e *OpError) Path() string { return e.path }

// mapError classifies err, originating from some lower component, into an
// *OpError carrying the appropriate stable code. Callers that already know
// the precise code for their own failure (e.g. a bare I/O error during the
// WRITE/DELETE/RENAME mutation step) should construct an *OpError directly
// with newOpError instead of going through this catch-all classifier.
func mapError(path string, err error) *OpError {
	if err == nil {
		return nil
	}

	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}

	switch {
	case errors.Is(err, pathvalidate.ErrOutsideBase):
		return newOpError(CodePathOutsideBase, path, err)
	case errors.Is(err, ErrAccessDenied):
		return newOpError(CodeAccessDenied, path, err)
	case errors.Is(err, ErrFileExists), errors.Is(err, os.ErrExist):
		return newOpError(CodeFileExists, path, err)
	case errors.Is(err, ErrFileNotFound), errors.Is(err, os.ErrNotExist):
		return newOpError(CodeFileNotFound, path, err)
	case errors.Is(err, ErrDirNotFound):
		return newOpError(CodeDirNotFound, path, err)
	case errors.Is(err, ErrEncodingError):
		return newOpError(CodeEncodingError, path, err)
	case errors.Is(err, ErrContentOrPatchesRequired):
		return newOpError(CodeContentOrPatchesRequired, path, err)
	case errors.Is(err, diffengine.ErrInvalidPatch):
		return newOpError(CodeInvalidPatch, path, err)
	case errors.Is(err, agentfsio.ErrFileTooLarge):
		return newOpError(CodeFileTooLarge, path, err)
	case errors.Is(err, lockmgr.ErrLockTimeout), errors.Is(err, lockmgr.ErrPurged), errors.Is(err, lockmgr.ErrInvalidTimeout):
		return newOpError(CodeLockTimeout, path, err)
	default:
		return newOpError(CodeServerError, path, err)
	}
}
