package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	log = newLogger(os.Stderr)
)

type contextKey struct{}

const requestIDKey = "request_id"

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "ts",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Init configures JSONL logging into log/app.log.
func Init(baseDir string) error {
	logDir := filepath.Join(baseDir, "log")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "app.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	SetOutput(f)
	return nil
}

// SetOutput redirects all log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(w)
}

func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

func Debug(msg string, fields map[string]any) {
	log.WithFields(fields).Debug(msg)
}

func Info(msg string, fields map[string]any) {
	log.WithFields(fields).Info(msg)
}

func Warn(msg string, fields map[string]any) {
	log.WithFields(fields).Warn(msg)
}

func Error(msg string, fields map[string]any) {
	log.WithFields(fields).Error(msg)
}

// WithRequest returns a context carrying a request-scoped entry with a fresh request id.
// A context that already carries an entry is returned unchanged.
func WithRequest(ctx context.Context) (context.Context, *logrus.Entry) {
	if ctx == nil {
		ctx = context.Background()
	}
	if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
		return ctx, entry
	}
	entry := log.WithField(requestIDKey, uuid.NewString())
	return context.WithValue(ctx, contextKey{}, entry), entry
}

// FromContext returns the request entry stored in ctx, or a default entry.
func FromContext(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(log)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	entry := FromContext(ctx)
	if id, ok := entry.Data[requestIDKey].(string); ok {
		return id
	}
	return ""
}
