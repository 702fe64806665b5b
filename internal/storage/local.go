package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores files in a directory on disk
type Local struct {
	dir string
}

// NewLocal creates the upload directory if needed
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	return &Local{dir: abs}, nil
}

func (l *Local) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	p := filepath.Join(l.dir, objectName(name))
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return p, nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	if !strings.HasPrefix(filepath.Clean(path), l.dir+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the upload directory", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
