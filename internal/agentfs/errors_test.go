package agentfs_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/calvinalkan/agentfs/internal/agentfs"
)

func TestOpError_UnwrapExposesUnderlyingCause(t *testing.T) {
	t.Parallel()

	core, base := newTestCore(t)

	_, err := core.Read(context.TODO(), agentfs.ReadRequest{Path: base + "/missing.txt"})

	var opErr *agentfs.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *OpError, got %T", err)
	}

	if opErr.Code() != agentfs.CodeFileNotFound {
		t.Fatalf("Code() = %s, want FILE_NOT_FOUND", opErr.Code())
	}

	if !errors.Is(opErr, os.ErrNotExist) {
		t.Fatal("expected errors.Is to see through to os.ErrNotExist via Unwrap")
	}
}
