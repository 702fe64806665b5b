package models

// Metadata keys written onto files that came from a SharePoint sync
const (
	MetaSharePointItemID       = "sharepoint_item_id"
	MetaSharePointDriveID      = "sharepoint_drive_id"
	MetaSharePointSyncID       = "sharepoint_sync_id"
	MetaSharePointLastModified = "sharepoint_last_modified"
	MetaSharePointParentPath   = "sharepoint_parent_path"
)

// File is a stored upload tracked by the service
type File struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path"`
	Meta      map[string]any `json:"meta"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// FileForm is the payload for inserting a file record
type FileForm struct {
	ID       string
	Filename string
	Path     string
	Meta     map[string]any
}

// SyncedFile is what a previous sync run recorded about a remote item
type SyncedFile struct {
	FileID       string
	LastModified string
}

// Knowledge is a collection of files used for retrieval
type Knowledge struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	FileIDs       []string       `json:"file_ids"`
	AccessControl *AccessControl `json:"access_control"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
}
