package agentfs

import "log"

// Logger is the narrow logging surface Core and its background components
// need. A nil Logger passed to [New] is replaced with a no-op
// implementation, so callers never need to nil-check before logging.
//
// [watcher.Logger] and [persistence.Logger] declare the same Debugf/Warnf
// shape independently; any Logger implementation satisfies all three
// without those packages importing this one.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// StdLogger adapts the standard library's *log.Logger to Logger, prefixing
// each line with its level.
type StdLogger struct {
	*log.Logger
}

func (s StdLogger) Debugf(format string, args ...any) { s.Printf("DEBUG "+format, args...) }
func (s StdLogger) Warnf(format string, args ...any)  { s.Printf("WARN "+format, args...) }
func (s StdLogger) Errorf(format string, args ...any) { s.Printf("ERROR "+format, args...) }
