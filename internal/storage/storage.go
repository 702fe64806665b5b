package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Martian-dev/brain-connectors/internal/config"
)

// Provider persists file bytes and returns a path that identifies them
type Provider interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// New builds the provider selected by cfg
func New(ctx context.Context, cfg config.Storage) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "local":
		return NewLocal(cfg.LocalDir)
	case "azure":
		return NewAzure(cfg.AzureConnectionString, cfg.AzureContainer)
	case "gcs":
		return NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

// objectName keeps only the base name so callers cannot escape the
// provider's root
func objectName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}
	return name
}
