package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/syncutil"
	"go.uber.org/zap"
)

// Capture appends records to a JSON-lines file.
type Capture struct {
	mu    syncutil.Mutex
	path  string
	file  *os.File
	count int
}

// NewCapture creates dir if needed and opens a new
// capture-YYYYMMDD-HHMMSS.jsonl file in it.
func NewCapture(dir string) (*Capture, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	logging.Info("Capturing packets", zap.String("filename", path))
	return &Capture{path: path, file: f}, nil
}

// Path returns the capture file path.
func (c *Capture) Path() string {
	return c.path
}

// Count returns how many records were written.
func (c *Capture) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Publish appends rec as one line.
func (c *Capture) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return os.ErrClosed
	}
	if _, err := c.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}
	c.count++
	return nil
}

// Close closes the file.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}
