package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// SafeRename moves src to dst, atomically when both live on the same
// filesystem, or via copy-then-remove when they don't.
//
// The returned bool reports whether the cross-filesystem fallback was used.
// The same-filesystem path gets the Windows retry and parent-directory fsync
// discipline described in [AtomicWriter.Write]. The cross-filesystem path
// copies bytes and permissions to dst, fsyncs dst and dst's parent
// directory, and only then removes src.
func SafeRename(fsys FS, src, dst string) (crossFilesystem bool, err error) {
	sameDevice, err := onSameDevice(fsys, src, dst)
	if err != nil {
		return false, fmt.Errorf("compare devices for rename: %w", err)
	}

	if sameDevice {
		if err := renameWithRetry(fsys, src, dst); err != nil {
			return false, fmt.Errorf("rename %q to %q: %w", src, dst, err)
		}

		if dirSyncSupported() {
			if err := fsyncDir(fsys, filepath.Dir(dst)); err != nil {
				return false, err
			}
		}

		return false, nil
	}

	if err := copyAcrossDevices(fsys, src, dst); err != nil {
		return true, fmt.Errorf("copy %q to %q across filesystems: %w", src, dst, err)
	}

	if err := fsys.Remove(src); err != nil {
		return true, fmt.Errorf("remove source %q after cross-filesystem rename: %w", src, err)
	}

	return true, nil
}

// onSameDevice reports whether src and dst's parent directory live on the
// same filesystem, comparing device identifiers the way stat(2) exposes
// them. dst need not exist yet; its parent directory is checked instead.
func onSameDevice(fsys FS, src, dst string) (bool, error) {
	srcInfo, err := fsys.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", src, err)
	}

	dstDir := filepath.Dir(dst)

	dstInfo, err := fsys.Stat(dst)
	if errors.Is(err, os.ErrNotExist) {
		dstInfo, err = fsys.Stat(dstDir)
	}

	if err != nil {
		return false, fmt.Errorf("stat %q: %w", dst, err)
	}

	srcDev, ok := deviceOf(srcInfo)
	if !ok {
		return true, nil // can't determine devices; assume same and let rename fail loudly if wrong
	}

	dstDev, ok := deviceOf(dstInfo)
	if !ok {
		return true, nil
	}

	return srcDev == dstDev, nil
}

func deviceOf(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return 0, false
	}

	return uint64(stat.Dev), true
}

// copyAcrossDevices copies src's bytes and permission bits to dst, then
// fsyncs dst and its parent directory so the copy is durable before the
// caller removes src.
func copyAcrossDevices(fsys FS, src, dst string) error {
	srcInfo, err := fsys.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy bytes: %w", err)
	}

	if err := out.Chmod(srcInfo.Mode().Perm()); err != nil {
		_ = out.Close()
		return fmt.Errorf("chmod destination: %w", err)
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("sync destination: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	if dirSyncSupported() {
		if err := fsyncDir(fsys, filepath.Dir(dst)); err != nil {
			return err
		}
	}

	return nil
}
