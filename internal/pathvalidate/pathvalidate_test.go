package pathvalidate_test

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/calvinalkan/agentfs/internal/pathvalidate"
)

func TestValidator_Validate_AcceptsPathUnderBase(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	v, err := pathvalidate.New([]string{base})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	target := filepath.Join(base, "sub", "file.txt")

	resolved, err := v.Validate(target)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	wantBase, err := pathvalidate.Canonicalize(base)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}

	if !isUnder(resolved, wantBase) {
		t.Fatalf("resolved=%q, want under %q", resolved, wantBase)
	}
}

func TestValidator_Validate_RejectsSiblingWithSharedPrefix(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	basePath := filepath.Join(base, "foo", "bar")
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}

	v, err := pathvalidate.New([]string{basePath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sibling := filepath.Join(base, "foo", "barbaz", "file.txt")

	_, err = v.Validate(sibling)
	if !errors.Is(err, pathvalidate.ErrOutsideBase) {
		t.Fatalf("err=%v, want ErrOutsideBase", err)
	}
}

func TestValidator_Validate_RejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}

	t.Parallel()

	base := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(base, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("setup symlink: %v", err)
	}

	v, err := pathvalidate.New([]string{base})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = v.Validate(filepath.Join(link, "file.txt"))
	if !errors.Is(err, pathvalidate.ErrOutsideBase) {
		t.Fatalf("err=%v, want ErrOutsideBase", err)
	}
}

func TestValidator_Validate_NoBasesAcceptsEverything(t *testing.T) {
	t.Parallel()

	v, err := pathvalidate.New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := v.Validate(filepath.Join(t.TempDir(), "anywhere.txt")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidator_Validate_AcceptsNonExistentFileUnderBase(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	v, err := pathvalidate.New([]string{base})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := v.Validate(filepath.Join(base, "does", "not", "exist.txt")); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func isUnder(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}

	return rel == "." || (len(rel) > 0 && rel[0] != '.')
}
