package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// Azure stores files as block blobs in one container
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure connects with an account connection string
func NewAzure(connectionString, container string) (*Azure, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &Azure{client: client, container: container}, nil
}

func (a *Azure) containerURL() string {
	return strings.TrimRight(a.client.URL(), "/") + "/" + a.container
}

// Upload returns the blob URL
func (a *Azure) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	name = objectName(name)
	_, err := a.client.UploadBuffer(ctx, a.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	return a.containerURL() + "/" + name, nil
}

func (a *Azure) Delete(ctx context.Context, path string) error {
	name, ok := strings.CutPrefix(path, a.containerURL()+"/")
	if !ok {
		return fmt.Errorf("path %q is not in container %s", path, a.container)
	}
	if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
