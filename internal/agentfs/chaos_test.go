package agentfs_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/calvinalkan/agentfs/internal/agentfs"
	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// newChaosCore builds a Core whose underlying filesystem is wrapped in
// pkg/fs's Chaos decorator, already set to inject faults per config.
func newChaosCore(t *testing.T, seed int64, config *agentfsio.ChaosConfig) (*agentfs.Core, string) {
	t.Helper()

	base := t.TempDir()

	chaosFS := agentfsio.NewChaos(agentfsio.NewReal(), seed, config)
	chaosFS.SetMode(agentfsio.ChaosModeActive)

	cfg := agentfs.DefaultConfig()
	cfg.BaseDirectories = []string{base}
	cfg.Watcher.Enabled = false

	core, err := agentfs.New(cfg, chaosFS, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := core.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	t.Cleanup(func() {
		if err := core.Close(context.Background()); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	return core, base
}

// TestCore_Write_InjectedWriteFailure_NeverDeadlocksOrLeavesPartialFile mirrors
// the teacher's own chaos regression pattern: a write that always faults at
// the File.Write step must return promptly (no lock held forever by a goroutine
// stuck retrying) and must not leave the destination path behind, since the
// atomic writer only renames over it after a fully successful temp-file write.
func TestCore_Write_InjectedWriteFailure_NeverDeadlocksOrLeavesPartialFile(t *testing.T) {
	t.Parallel()

	core, base := newChaosCore(t, 1, &agentfsio.ChaosConfig{WriteFailRate: 1.0})

	path := filepath.Join(base, "doc.txt")

	done := make(chan error, 1)

	go func() {
		_, err := core.Write(context.Background(), agentfs.WriteRequest{Path: path, Content: "hello"})
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Write unexpectedly succeeded under WriteFailRate: 1.0")
		}

		var opErr *agentfs.OpError
		if !errors.As(err, &opErr) || opErr.Code() != agentfs.CodeWriteError {
			t.Fatalf("got %v, want *OpError with CodeWriteError", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Write hung under injected write failures (possible deadlock)")
	}

	if _, err := core.Read(context.Background(), agentfs.ReadRequest{Path: path}); err == nil {
		t.Fatal("expected the never-completed write to have left no file behind")
	}
}

// TestCore_Read_InjectedReadFailure_SurfacesAsServerError verifies a faulting
// FS.ReadFile is classified as a server error rather than silently swallowed
// or misreported as FILE_NOT_FOUND.
func TestCore_Read_InjectedReadFailure_SurfacesAsServerError(t *testing.T) {
	t.Parallel()

	core, base := newChaosCore(t, 2, &agentfsio.ChaosConfig{ReadFailRate: 1.0})

	path := filepath.Join(base, "doc.txt")

	// Write the file before arming read faults, so Read's failure is isolated
	// to the read path rather than a missing file.
	cfg := agentfs.DefaultConfig()
	cfg.BaseDirectories = []string{base}
	cfg.Watcher.Enabled = false

	plainCore, err := agentfs.New(cfg, agentfsio.NewReal(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := plainCore.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := plainCore.Write(context.Background(), agentfs.WriteRequest{Path: path, Content: "hello"}); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	if err := plainCore.Close(context.Background()); err != nil {
		t.Fatalf("close seed core: %v", err)
	}

	_, err = core.Read(context.Background(), agentfs.ReadRequest{Path: path})
	if err == nil {
		t.Fatal("Read unexpectedly succeeded under ReadFailRate: 1.0")
	}

	var opErr *agentfs.OpError
	if !errors.As(err, &opErr) || opErr.Code() != agentfs.CodeServerError {
		t.Fatalf("got %v, want *OpError with CodeServerError", err)
	}
}

// TestCore_Write_InjectedStatFailure_SurfacesAsServerError verifies that a
// faulting FS.Exists pre-check (backed by FS.Stat) is classified as a server
// error instead of being mistaken for FILE_EXISTS/FILE_NOT_FOUND.
func TestCore_Write_InjectedStatFailure_SurfacesAsServerError(t *testing.T) {
	t.Parallel()

	core, base := newChaosCore(t, 3, &agentfsio.ChaosConfig{StatFailRate: 1.0})

	path := filepath.Join(base, "doc.txt")

	_, err := core.Write(context.Background(), agentfs.WriteRequest{Path: path, Content: "hello"})
	if err == nil {
		t.Fatal("Write unexpectedly succeeded under StatFailRate: 1.0")
	}

	var opErr *agentfs.OpError
	if !errors.As(err, &opErr) || opErr.Code() != agentfs.CodeServerError {
		t.Fatalf("got %v, want *OpError with CodeServerError", err)
	}
}
