package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultMimeType = "application/octet-stream"

// RemoteFile describes one file found under a synced folder
type RemoteFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModifiedDateTime"`
	MimeType     string `json:"mimeType"`
	ParentPath   string `json:"parentPath"`
}

type driveItem struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	ParentReference struct {
		Path string `json:"path"`
	} `json:"parentReference"`
	GraphDownloadURL   string `json:"@microsoft.graph.downloadUrl"`
	ContentDownloadURL string `json:"@content.downloadUrl"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// folderFrame is one folder being walked: the page being consumed and the
// link to the page after it
type folderFrame struct {
	next  string
	items []driveItem
	pos   int
}

// ListFolder returns every file below itemID, walking subfolders depth first.
// Sibling order is kept and a subfolder's files appear where the subfolder
// was met. Any failure aborts the whole listing.
func (c *Client) ListFolder(ctx context.Context, endpoint, driveID, itemID string) ([]RemoteFile, error) {
	files := []RemoteFile{}
	stack := []*folderFrame{{next: childrenURL(endpoint, driveID, itemID)}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.pos == len(top.items) {
			if top.next == "" {
				stack = stack[:len(stack)-1]
				continue
			}
			page, err := c.fetchChildren(ctx, top.next)
			if err != nil {
				return nil, err
			}
			top.items, top.pos, top.next = page.Value, 0, page.NextLink
			continue
		}

		item := top.items[top.pos]
		top.pos++

		switch {
		case item.Folder != nil:
			stack = append(stack, &folderFrame{next: childrenURL(endpoint, driveID, item.ID)})
		case item.File != nil:
			mimeType := item.File.MimeType
			if mimeType == "" {
				mimeType = defaultMimeType
			}
			files = append(files, RemoteFile{
				ID:           item.ID,
				Name:         item.Name,
				Size:         item.Size,
				LastModified: item.LastModifiedDateTime,
				MimeType:     mimeType,
				ParentPath:   item.ParentReference.Path,
			})
		}
	}

	return files, nil
}

func (c *Client) fetchChildren(ctx context.Context, pageURL string) (*childrenPage, error) {
	resp, err := c.do(ctx, request{
		method:     http.MethodGet,
		url:        pageURL,
		timeout:    apiTimeout,
		maxRetries: DefaultMaxRetries,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrListingFailed, resp.Body)
	}

	var page childrenPage
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode page: %v", ErrListingFailed, err)
	}
	return &page, nil
}

func childrenURL(endpoint, driveID, itemID string) string {
	return itemURL(endpoint, driveID, itemID) + "/children"
}

func itemURL(endpoint, driveID, itemID string) string {
	return fmt.Sprintf("%s/drives/%s/items/%s",
		strings.TrimRight(endpoint, "/"), url.PathEscape(driveID), url.PathEscape(itemID))
}
