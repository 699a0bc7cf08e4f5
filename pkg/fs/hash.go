package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// HashPrefix is prepended to every content hash produced by this package.
const HashPrefix = "sha256:"

// ErrFileTooLarge is returned by HashFile when the file exceeds the
// caller-supplied maximum byte count. The file is read at most one byte
// past the limit.
var ErrFileTooLarge = errors.New("file too large")

// Hash computes the content hash of data: "sha256:" followed by the
// lowercase hex SHA-256 digest of the exact bytes, with no normalization.
// The empty byte slice hashes to the SHA-256 of the empty string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// HashFile streams path through SHA-256 without loading it fully into
// memory, rejecting files larger than maxBytes before reading their
// contents.
//
// maxBytes <= 0 means no limit.
func HashFile(fsys FS, path string, maxBytes int64) (string, error) {
	if maxBytes > 0 {
		info, err := fsys.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %q: %w", path, err)
		}

		if info.Size() > maxBytes {
			return "", fmt.Errorf("%w: %q is %d bytes, limit is %d", ErrFileTooLarge, path, info.Size(), maxBytes)
		}
	}

	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()

	var reader io.Reader = f
	if maxBytes > 0 {
		// Defense in depth: the Stat check above can race with a concurrent
		// writer that grows the file. LimitReader plus the +1 sentinel byte
		// below still only reads one byte past the limit before bailing.
		reader = io.LimitReader(f, maxBytes+1)
	}

	n, err := io.Copy(h, reader)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}

	if maxBytes > 0 && n > maxBytes {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrFileTooLarge, path, maxBytes)
	}

	return HashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
