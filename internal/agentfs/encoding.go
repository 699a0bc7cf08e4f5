package agentfs

import (
	"fmt"
	"unicode/utf8"
)

// resolveEncoding returns requested, or the core's configured default when
// requested is empty.
func (c *Core) resolveEncoding(requested string) string {
	if requested == "" {
		return c.cfg.DefaultEncoding
	}

	return requested
}

// decodeText converts raw file bytes to text under encoding. Only "utf-8"
// is supported; any other token, or invalid UTF-8 bytes, is an encoding
// error. Non-UTF-8 encodings are not part of this implementation's scope
// (see DESIGN.md).
func decodeText(data []byte, encoding string) (string, error) {
	if encoding != "utf-8" {
		return "", fmt.Errorf("%w: unsupported encoding %q", ErrEncodingError, encoding)
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not valid utf-8", ErrEncodingError)
	}

	return string(data), nil
}

// encodeText converts text to raw bytes under encoding.
func encodeText(text, encoding string) ([]byte, error) {
	if encoding != "utf-8" {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrEncodingError, encoding)
	}

	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: content is not valid utf-8", ErrEncodingError)
	}

	return []byte(text), nil
}
