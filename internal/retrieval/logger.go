package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type QueryLogEntry struct {
	Timestamp       time.Time     `json:"timestamp"`
	Question        string        `json:"question"`
	ChapterContext  string        `json:"chapter_context,omitempty"`
	UnitsConsidered int           `json:"units_considered"`
	Confidence      float64       `json:"confidence"`
	Model           string        `json:"model,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	LatencyMs       int64         `json:"latency_ms"`
	CorrelationID   string        `json:"correlation_id"`
}

type QueryLogger struct {
	writer io.Writer
	closer io.Closer
	mu     sync.Mutex
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{writer: w}
}

// NewFileQueryLogger writes entries to path, rotating at maxSizeMB and keeping
// maxBackups old files, and mirrors them to stdout.
func NewFileQueryLogger(path string, maxSizeMB, maxBackups int) (*QueryLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Clean(path),
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	return &QueryLogger{
		writer: io.MultiWriter(os.Stdout, rotator),
		closer: rotator,
	}, nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	entry.Timestamp = time.Now()
	entry.LatencyMs = entry.Duration.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.writer).Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
