package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
)

// DownloadedFile is the content of one remote file
type DownloadedFile struct {
	Content     []byte
	Name        string
	ContentType string
	// DetectedType is sniffed from the content and may differ from the
	// declared ContentType.
	DetectedType string
}

// DownloadFile fetches the item's metadata, then its content through the
// pre-signed download URL the metadata carries.
func (c *Client) DownloadFile(ctx context.Context, endpoint, driveID, itemID string) (*DownloadedFile, error) {
	resp, err := c.do(ctx, request{
		method:     http.MethodGet,
		url:        itemURL(endpoint, driveID, itemID),
		timeout:    apiTimeout,
		maxRetries: DefaultMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrMetadataFetchFailed, resp.Body)
	}

	var item driveItem
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrMetadataFetchFailed, err)
	}

	name := item.Name
	if name == "" {
		name = "unknown"
	}
	downloadURL := item.GraphDownloadURL
	if downloadURL == "" {
		downloadURL = item.ContentDownloadURL
	}
	if downloadURL == "" {
		return nil, ErrDownloadURLMissing
	}

	// The download URL is pre-signed, so no bearer token is sent.
	content, err := c.do(ctx, request{
		method:     http.MethodGet,
		url:        downloadURL,
		anonymous:  true,
		timeout:    downloadTimeout,
		maxRetries: DefaultMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if content.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrDownloadFailed, content.Body)
	}

	contentType := content.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultMimeType
	}

	return &DownloadedFile{
		Content:      content.Body,
		Name:         name,
		ContentType:  contentType,
		DetectedType: mimetype.Detect(content.Body).String(),
	}, nil
}
