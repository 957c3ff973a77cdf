package workflow

import (
	"strings"
	"time"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// StoreLogWriter persists log lines for one log_id through a Store,
// immediately and durably — logs must survive crashes and cancellations,
// not just live in memory until the job returns. The level is inferred
// from markers in the message rather than passed explicitly, matching
// the job library's own "error: "/"success: " prefix convention.
type StoreLogWriter struct {
	store storage.Store
	logID string
}

// NewStoreLogWriter returns a LogWriter bound to logID.
func NewStoreLogWriter(store storage.Store, logID string) *StoreLogWriter {
	return &StoreLogWriter{store: store, logID: logID}
}

// WriteLog implements LogWriter.
func (w *StoreLogWriter) WriteLog(message string) error {
	entry := &types.LogEntry{
		LogID:     w.logID,
		Level:     detectLevel(message),
		Message:   message,
		CreatedAt: time.Now(),
	}
	return w.store.AppendLogEntry(entry)
}

// detectLevel infers a LogEntry's level from its message prefix: "error:"
// and "success:" are the two markers the job library writes; everything
// else is informational.
func detectLevel(message string) types.LogLevel {
	switch {
	case strings.HasPrefix(message, "error:"):
		return types.LogLevelError
	case strings.HasPrefix(message, "success:"):
		return types.LogLevelSuccess
	default:
		return types.LogLevelInfo
	}
}
