package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Martian-dev/brain-connectors/internal/models"
	"github.com/Martian-dev/brain-connectors/internal/sharepoint"
	"github.com/Martian-dev/brain-connectors/internal/storage"
)

// TokenExpiredMessage is stored as the sync error when the user has to sign in again
const TokenExpiredMessage = "Access token expired. Please click Sync again to re-authenticate."

// maxReportedErrors bounds how many item failures end up in sync_error
const maxReportedErrors = 5

// JobStore reads and writes the sync record
type JobStore interface {
	GetSync(ctx context.Context, id string) (*models.SharePointSync, error)
	UpdateSync(ctx context.Context, id string, upd models.SharePointSyncUpdate) (*models.SharePointSync, error)
	UpdateSyncIfStatus(ctx context.Context, id string, want models.SyncStatus, upd models.SharePointSyncUpdate) (bool, error)
	TryStartSync(ctx context.Context, id string) (bool, error)
	AppendSyncLog(ctx context.Context, id string, entry models.LogEntry) error
}

// FileStore records synced files
type FileStore interface {
	SyncedFiles(ctx context.Context, syncID string) (map[string]models.SyncedFile, error)
	InsertFile(ctx context.Context, userID string, form models.FileForm) (*models.File, error)
}

// KnowledgeStore attaches files to knowledge collections
type KnowledgeStore interface {
	AddFileToKnowledge(ctx context.Context, knowledgeID, fileID, userID string) (bool, error)
}

// Remote lists and downloads from the document store
type Remote interface {
	ListFolder(ctx context.Context, endpoint, driveID, itemID string) ([]sharepoint.RemoteFile, error)
	DownloadFile(ctx context.Context, endpoint, driveID, itemID string) (*sharepoint.DownloadedFile, error)
}

// Job is one run of a sync
type Job struct {
	SyncID      string
	UserID      string
	AccessToken string
	Endpoint    string
	DriveID     string
	ItemID      string
	KnowledgeID string
}

// JobFromSync builds the run for sync, executed as userID
func JobFromSync(sync *models.SharePointSync, userID, accessToken string) Job {
	return Job{
		SyncID:      sync.ID,
		UserID:      userID,
		AccessToken: accessToken,
		Endpoint:    sync.SharePointEndpoint,
		DriveID:     sync.DriveID,
		ItemID:      sync.ItemID,
		KnowledgeID: sync.KnowledgeID,
	}
}

// Runner copies the files of a remote folder into a knowledge collection
type Runner struct {
	Jobs      JobStore
	Files     FileStore
	Knowledge KnowledgeStore
	Storage   storage.Provider
	// Connect returns a remote client authenticated with the run's token
	Connect func(accessToken string) Remote
	Now     func() time.Time
}

// NewRunner wires a runner that talks to SharePoint through Microsoft Graph
func NewRunner(jobs JobStore, files FileStore, knowledge KnowledgeStore, store storage.Provider) *Runner {
	return &Runner{
		Jobs:      jobs,
		Files:     files,
		Knowledge: knowledge,
		Storage:   store,
		Connect: func(accessToken string) Remote {
			return sharepoint.NewClient(accessToken)
		},
		Now: time.Now,
	}
}

// itemFailure is a per-item error. It is recorded and the run moves on.
type itemFailure struct {
	summary  string
	message  string
	fileName string
	err      error
}

func (f *itemFailure) Error() string { return f.summary }
func (f *itemFailure) Unwrap() error { return f.err }

// Run executes one sync run. The record must already be in syncing.
// Cancellation is cooperative: the record's status is re-read before each
// item and the run stops once it reads cancelled.
func (r *Runner) Run(ctx context.Context, job Job) error {
	prefix := fmt.Sprintf("[sync %s]", job.SyncID)
	remote := r.Connect(job.AccessToken)

	empty := []models.LogEntry{}
	if _, err := r.Jobs.UpdateSync(ctx, job.SyncID, models.SharePointSyncUpdate{SyncLogs: &empty}); err != nil {
		return r.abort(ctx, job, err)
	}
	r.appendLog(ctx, job.SyncID, models.LogInfo, "Sync started", nil)

	existing, err := r.Files.SyncedFiles(ctx, job.SyncID)
	if err != nil {
		return r.abort(ctx, job, err)
	}
	log.Printf("%s Found %d existing synced files", prefix, len(existing))

	files, err := remote.ListFolder(ctx, job.Endpoint, job.DriveID, job.ItemID)
	if err != nil {
		return r.abort(ctx, job, err)
	}
	log.Printf("%s Found %d files in SharePoint folder", prefix, len(files))

	total, zero := int64(len(files)), int64(0)
	if _, err := r.Jobs.UpdateSync(ctx, job.SyncID, models.SharePointSyncUpdate{SyncTotal: &total, SyncProgress: &zero}); err != nil {
		return r.abort(ctx, job, err)
	}

	var (
		synced   int
		skipped  int
		failures []string
	)

	for i, file := range files {
		if ctx.Err() != nil {
			return r.abort(ctx, job, ctx.Err())
		}

		current, err := r.Jobs.GetSync(ctx, job.SyncID)
		if err != nil {
			return r.abort(ctx, job, err)
		}
		if current == nil {
			log.Printf("%s Sync record was deleted, stopping", prefix)
			return nil
		}
		if current.SyncStatus == models.SyncStatusCancelled {
			log.Printf("%s Sync was cancelled by user", prefix)
			r.appendLog(ctx, job.SyncID, models.LogInfo, "Sync cancelled by user", nil)
			return nil
		}

		progress := int64(i + 1)
		if _, err := r.Jobs.UpdateSync(ctx, job.SyncID, models.SharePointSyncUpdate{SyncProgress: &progress}); err != nil {
			log.Printf("%s Error saving progress: %v", prefix, err)
		}

		name := file.Name
		if prev, ok := existing[file.ID]; ok {
			skipped++
			if prev.LastModified == file.LastModified {
				r.appendLog(ctx, job.SyncID, models.LogSkip, "Skipped (unchanged)", &name)
				continue
			}
			log.Printf("%s File modified but skipping update: %s", prefix, name)
			r.appendLog(ctx, job.SyncID, models.LogSkip, "Skipped (already exists)", &name)
			continue
		}

		storedName, err := r.syncFile(ctx, job, remote, file)
		if err != nil {
			if errors.Is(err, sharepoint.ErrTokenExpired) || errors.Is(err, sharepoint.ErrAuthFailed) {
				return r.abort(ctx, job, err)
			}
			if ctx.Err() != nil {
				return r.abort(ctx, job, ctx.Err())
			}

			var fail *itemFailure
			if !errors.As(err, &fail) {
				fail = &itemFailure{
					summary:  fmt.Sprintf("Error syncing %s: %v", name, err),
					message:  "Error: " + truncate(err.Error(), 100),
					fileName: name,
				}
			}
			log.Printf("%s Error syncing file %s: %v", prefix, name, err)
			failures = append(failures, fail.summary)
			r.appendLog(ctx, job.SyncID, models.LogError, fail.message, &fail.fileName)
			continue
		}

		synced++
		log.Printf("%s Synced new file: %s", prefix, storedName)
		r.appendLog(ctx, job.SyncID, models.LogSuccess, "Synced successfully", &storedName)
	}

	completion := fmt.Sprintf("Completed: %d new, %d skipped, %d errors", synced, skipped, len(failures))
	r.appendLog(ctx, job.SyncID, models.LogInfo, completion, nil)

	status := models.SyncStatusSynced
	fileCount := int64(synced + skipped)
	lastSync := r.now().Unix()
	upd := models.SharePointSyncUpdate{
		SyncStatus: &status,
		LastSyncAt: &lastSync,
		FileCount:  &fileCount,
	}
	if len(failures) > 0 {
		status = models.SyncStatusError
		msg := strings.Join(failures[:min(len(failures), maxReportedErrors)], "; ")
		upd.SyncError = &msg
	} else {
		upd.ClearSyncError = true
	}
	r.finish(ctx, job.SyncID, upd)

	log.Printf("%s %s", prefix, completion)
	return nil
}

// syncFile downloads one new file, stores it and attaches it to the
// collection. It returns the stored file name.
func (r *Runner) syncFile(ctx context.Context, job Job, remote Remote, file sharepoint.RemoteFile) (string, error) {
	downloaded, err := remote.DownloadFile(ctx, job.Endpoint, job.DriveID, file.ID)
	if err != nil {
		return "", err
	}
	name := downloaded.Name

	fileID := uuid.NewString()
	path, err := r.Storage.Upload(ctx, fileID+"_"+name, downloaded.Content, downloaded.ContentType)
	if err != nil {
		return "", err
	}

	record, err := r.Files.InsertFile(ctx, job.UserID, models.FileForm{
		ID:       fileID,
		Filename: name,
		Path:     path,
		Meta: map[string]any{
			"name":                            name,
			"content_type":                    downloaded.ContentType,
			"detected_type":                   downloaded.DetectedType,
			"size":                            len(downloaded.Content),
			models.MetaSharePointItemID:       file.ID,
			models.MetaSharePointDriveID:      job.DriveID,
			models.MetaSharePointSyncID:       job.SyncID,
			models.MetaSharePointLastModified: file.LastModified,
			models.MetaSharePointParentPath:   file.ParentPath,
		},
	})
	if err != nil {
		if delErr := r.Storage.Delete(ctx, path); delErr != nil {
			log.Printf("[sync %s] Error removing orphaned upload %s: %v", job.SyncID, path, delErr)
		}
		return "", err
	}
	if record == nil {
		return "", &itemFailure{
			summary:  fmt.Sprintf("Failed to create file record for %s", name),
			message:  "Failed to create file record",
			fileName: name,
		}
	}

	added, err := r.Knowledge.AddFileToKnowledge(ctx, job.KnowledgeID, record.ID, job.UserID)
	if err != nil {
		return "", &itemFailure{
			summary:  fmt.Sprintf("Failed to add %s: %v", name, err),
			message:  "Error: " + truncate(err.Error(), 100),
			fileName: name,
			err:      err,
		}
	}
	if !added {
		return "", &itemFailure{
			summary:  fmt.Sprintf("Failed to add %s to knowledge base", name),
			message:  "Failed to add to knowledge base",
			fileName: name,
		}
	}
	return name, nil
}

// abort ends the run on a failure that is fatal to it. A cancelled ctx
// still gets its terminal state written.
func (r *Runner) abort(ctx context.Context, job Job, err error) error {
	prefix := fmt.Sprintf("[sync %s]", job.SyncID)
	if ctx.Err() != nil {
		ctx = context.WithoutCancel(ctx)
		err = fmt.Errorf("sync interrupted: %w", err)
	}

	if errors.Is(err, sharepoint.ErrTokenExpired) {
		log.Printf("%s Token expired during sync", prefix)
		r.appendLog(ctx, job.SyncID, models.LogError, "Token expired - please click Sync to re-authenticate", nil)
		status, msg := models.SyncStatusTokenExpired, TokenExpiredMessage
		r.finish(ctx, job.SyncID, models.SharePointSyncUpdate{SyncStatus: &status, SyncError: &msg})
		return err
	}

	log.Printf("%s Background sync failed: %v", prefix, err)
	r.appendLog(ctx, job.SyncID, models.LogError, "Sync failed: "+truncate(err.Error(), 200), nil)
	status, msg := models.SyncStatusError, err.Error()
	r.finish(ctx, job.SyncID, models.SharePointSyncUpdate{SyncStatus: &status, SyncError: &msg})
	return err
}

// finish writes the terminal state unless the record left syncing meanwhile,
// which keeps a concurrent cancel intact
func (r *Runner) finish(ctx context.Context, syncID string, upd models.SharePointSyncUpdate) {
	ok, err := r.Jobs.UpdateSyncIfStatus(ctx, syncID, models.SyncStatusSyncing, upd)
	if err != nil {
		log.Printf("[sync %s] Error saving final status: %v", syncID, err)
		return
	}
	if !ok {
		log.Printf("[sync %s] Status changed during the run, keeping it", syncID)
	}
}

func (r *Runner) appendLog(ctx context.Context, syncID string, level models.LogLevel, message string, fileName *string) {
	entry := models.LogEntry{
		Timestamp: r.now().Unix(),
		Level:     level,
		Message:   message,
		FileName:  fileName,
	}
	if err := r.Jobs.AppendSyncLog(ctx, syncID, entry); err != nil {
		log.Printf("[sync %s] Error appending log: %v", syncID, err)
	}
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
