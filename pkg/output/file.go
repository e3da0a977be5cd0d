package output

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const headerLayout = "2006-01-02 15:04:05"

// FileSink appends each result to a file under a timestamp header.
type FileSink struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileSink creates the sink. A leading ~ in path is expanded to the home
// directory.
func NewFileSink(path string) (*FileSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("output method is file but output.file is not set")
	}
	expanded, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{path: expanded, now: time.Now}, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Name implements Sink.
func (f *FileSink) Name() string { return string(MethodFile) }

// Target implements Targeted.
func (f *FileSink) Target() string { return f.path }

// Deliver implements Sink.
func (f *FileSink) Deliver(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}

	_, err = fmt.Fprintf(file, "\n--- %s ---\n%s\n", f.now().Format(headerLayout), text)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append to %s: %w", f.path, err)
	}
	return nil
}
