package models

// SyncStatus is the run state of a SharePoint sync job
type SyncStatus string

const (
	SyncStatusIdle         SyncStatus = "idle"
	SyncStatusSyncing      SyncStatus = "syncing"
	SyncStatusSynced       SyncStatus = "synced"
	SyncStatusError        SyncStatus = "error"
	SyncStatusCancelled    SyncStatus = "cancelled"
	SyncStatusTokenExpired SyncStatus = "token_expired"
)

// MaxSyncLogs bounds the persisted rolling log of a sync job
const MaxSyncLogs = 100

// LogLevel of a sync log entry
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
	LogSkip    LogLevel = "skip"
)

// LogEntry is one line of a sync job's persisted log
type LogEntry struct {
	Timestamp int64    `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
	FileName  *string  `json:"file_name"`
}

// SharePointSync maps a SharePoint folder onto a knowledge collection and
// carries the state of its latest run
type SharePointSync struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	KnowledgeID string `json:"knowledge_id"`

	DriveID            string `json:"drive_id"`
	ItemID             string `json:"item_id"`
	FolderPath         string `json:"folder_path"`
	SharePointEndpoint string `json:"sharepoint_endpoint"`

	LastSyncAt   *int64     `json:"last_sync_at"`
	FileCount    int64      `json:"file_count"`
	SyncStatus   SyncStatus `json:"sync_status"`
	SyncError    *string    `json:"sync_error"`
	SyncLogs     []LogEntry `json:"sync_logs"`
	SyncProgress int64      `json:"sync_progress"`
	SyncTotal    int64      `json:"sync_total"`

	AccessControl *AccessControl `json:"access_control"`

	// Revision increases on every write to the record
	Revision  int64 `json:"revision"`
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// SharePointSyncForm is the payload for creating a sync
type SharePointSyncForm struct {
	Name               string         `json:"name" binding:"required"`
	KnowledgeID        string         `json:"knowledge_id" binding:"required"`
	DriveID            string         `json:"drive_id" binding:"required"`
	ItemID             string         `json:"item_id" binding:"required"`
	FolderPath         string         `json:"folder_path"`
	SharePointEndpoint string         `json:"sharepoint_endpoint" binding:"required"`
	AccessControl      *AccessControl `json:"access_control"`
}

// SharePointSyncUpdate is a partial update; nil fields are left untouched
type SharePointSyncUpdate struct {
	Name          *string
	AccessControl *AccessControl
	LastSyncAt    *int64
	FileCount     *int64
	SyncStatus    *SyncStatus
	SyncError     *string
	// ClearSyncError sets sync_error to NULL
	ClearSyncError bool
	SyncLogs       *[]LogEntry
	SyncProgress   *int64
	SyncTotal      *int64
}
