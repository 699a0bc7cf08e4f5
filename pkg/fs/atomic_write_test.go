package fs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/agentfs/pkg/fs"
)

const testContentHello = "hello"

func TestAtomicWriter_Write_ReplacesFileContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("content=%q, want %q", string(got), testContentHello)
	}
}

func TestAtomicWriter_Write_LeavesNoTempFileOnSuccess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "final.txt")

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(testContentHello)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 || entries[0].Name() != "final.txt" {
		t.Fatalf("dir entries=%v, want exactly [final.txt]", entries)
	}
}

func TestAtomicWriter_Write_RejectsZeroPerm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer := fs.NewAtomicWriter(fs.NewReal())

	err := writer.Write(filepath.Join(dir, "f.txt"), strings.NewReader(""), fs.AtomicWriteOptions{SyncDir: true})
	if err == nil {
		t.Fatal("Write: want error for zero Perm, got nil")
	}
}

func TestSafeRename_SameFilesystem_IsNotCrossFilesystem(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")

	if err := os.WriteFile(src, []byte(testContentHello), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	crossFS, err := fs.SafeRename(fs.NewReal(), src, dst)
	if err != nil {
		t.Fatalf("SafeRename: %v", err)
	}

	if crossFS {
		t.Fatal("crossFilesystem=true, want false for a rename within the same directory")
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile(dst): %v", err)
	}

	if string(got) != testContentHello {
		t.Fatalf("dst content=%q, want %q", string(got), testContentHello)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("src still exists after rename, err=%v", err)
	}
}

func TestHash_EmptyBytes(t *testing.T) {
	t.Parallel()

	want := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := fs.Hash(nil); got != want {
		t.Fatalf("Hash(nil)=%q, want %q", got, want)
	}
}

func TestHashFile_RejectsFilesLargerThanMax(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")

	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := fs.HashFile(fs.NewReal(), path, 5)
	if err == nil {
		t.Fatal("HashFile: want error for oversized file, got nil")
	}
}

func TestHashFile_MatchesHashOfBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")

	content := []byte(testContentHello)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := fs.HashFile(fs.NewReal(), path, 0)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}

	if want := fs.Hash(content); got != want {
		t.Fatalf("HashFile=%q, want %q", got, want)
	}
}
