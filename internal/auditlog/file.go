// File: internal/auditlog/file.go
package auditlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunDirLayout is the timestamp layout of a run directory name.
const RunDirLayout = "20060102_150405"

// FileSink writes each record to <dir>/<ai_name>/<run start>/<cycle>_<channel>.json.
// A record for a cycle and channel that already exists replaces it.
type FileSink struct {
	dir string
	mu  sync.Mutex
}

// NewFileSink creates the base directory.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// PathFor returns where rec would be written.
func (f *FileSink) PathFor(rec schemas.AuditRecord) (string, error) {
	name := strings.TrimSpace(rec.AIName)
	if name == "" {
		name = "agent"
	}
	runDir, err := securejoin.SecureJoin(f.dir, filepath.Join(name, rec.RunStarted.Format(RunDirLayout)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve audit directory: %w", err)
	}
	return filepath.Join(runDir, fmt.Sprintf("%03d_%s.json", rec.Cycle, rec.Channel)), nil
}

// Append writes the record's payload as indented JSON.
func (f *FileSink) Append(ctx context.Context, rec schemas.AuditRecord) error {
	path, err := f.PathFor(rec)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec.Payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write audit record %s: %w", path, err)
	}
	return nil
}

func (f *FileSink) Close() error { return nil }
