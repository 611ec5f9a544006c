// Package artifacts stores failure screenshots on disk.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// TimestampLayout formats the capture time in screenshot names, e.g. 20240501_120115.
const TimestampLayout = "20060102_150405"

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Writer saves screenshots below a directory, creating it on first use.
type Writer struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewWriter returns a writer for dir. A leading ~ is expanded.
func NewWriter(dir string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand screenshot directory %q: %w", dir, err)
	}
	return &Writer{dir: expanded, now: time.Now, logger: logger.Named("artifacts")}, nil
}

// Dir is the directory screenshots are written to.
func (w *Writer) Dir() string { return w.dir }

// FileName is the name a screenshot of scenario taken at t is stored under.
func FileName(scenario string, t time.Time) string {
	name := unsafeName.ReplaceAllString(scenario, "_")
	if name == "" {
		name = "scenario"
	}
	return name + "_" + t.Format(TimestampLayout) + ".png"
}

// SaveScreenshot writes png and returns its path.
func (w *Writer) SaveScreenshot(scenario string, png []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory %s: %w", w.dir, err)
	}
	path := filepath.Join(w.dir, FileName(scenario, w.now()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}
	w.logger.Info("Screenshot captured.", zap.String("path", path))
	return path, nil
}
