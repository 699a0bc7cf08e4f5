package agentfs

import (
	"fmt"

	agentfsio "github.com/calvinalkan/agentfs/pkg/fs"
)

// readFileEnforcingLimit reads path fully into memory, rejecting it before
// reading if its size exceeds maxBytes. maxBytes <= 0 means no limit.
func readFileEnforcingLimit(fsys agentfsio.FS, path string, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		info, err := fsys.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", path, err)
		}

		if info.Size() > maxBytes {
			return nil, fmt.Errorf("%w: %q is %d bytes, limit is %d", agentfsio.ErrFileTooLarge, path, info.Size(), maxBytes)
		}
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", agentfsio.ErrFileTooLarge, path, maxBytes)
	}

	return data, nil
}
