package toolclient

import "github.com/relaylabs/pdfqa-server/internal/logger"

// stderrRelay forwards the child's stderr line-by-line into the
// proxy's own logger, so a crash reason surfaces in one log stream
// instead of being swallowed by a dangling pipe.
type stderrRelay struct{}

func newStderrRelay() *stderrRelay { return &stderrRelay{} }

func (r *stderrRelay) Write(p []byte) (int, error) {
	logger.Warn("tool server stderr: %s", string(p))
	return len(p), nil
}
