package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSync(t *testing.T, s *Store) *models.SharePointSync {
	t.Helper()
	sync, err := s.InsertSync(context.Background(), "user-1", models.SharePointSyncForm{
		Name:               "Policies",
		KnowledgeID:        "kb-1",
		DriveID:            "drive-1",
		ItemID:             "root-1",
		FolderPath:         "/Shared Documents/Policies",
		SharePointEndpoint: "https://graph.microsoft.com/v1.0/",
	})
	require.NoError(t, err)
	return sync
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestInsertAndGetSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := newTestSync(t, s)

	got, err := s.GetSync(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "https://graph.microsoft.com/v1.0", got.SharePointEndpoint)
	assert.Equal(t, models.SyncStatusIdle, got.SyncStatus)
	assert.Nil(t, got.SyncError)
	assert.Nil(t, got.LastSyncAt)
	assert.Nil(t, got.AccessControl)

	missing, err := s.GetSync(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateSyncBumpsRevision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := newTestSync(t, store)

	msg := "boom"
	status := models.SyncStatusError
	got, err := store.UpdateSync(ctx, created.ID, models.SharePointSyncUpdate{SyncStatus: &status, SyncError: &msg})
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "boom", *got.SyncError)
	assert.Equal(t, created.Revision+1, got.Revision)

	got, err = store.UpdateSync(ctx, created.ID, models.SharePointSyncUpdate{ClearSyncError: true})
	require.NoError(t, err)
	assert.Nil(t, got.SyncError)
	assert.Equal(t, created.Revision+2, got.Revision)
}

func TestTryStartSyncIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := newTestSync(t, store)

	progress, total := int64(3), int64(9)
	_, err := store.UpdateSync(ctx, created.ID, models.SharePointSyncUpdate{SyncProgress: &progress, SyncTotal: &total})
	require.NoError(t, err)

	started, err := store.TryStartSync(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, started)

	again, err := store.TryStartSync(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, again)

	got, err := store.GetSync(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSyncing, got.SyncStatus)
	assert.Zero(t, got.SyncProgress)
	assert.Zero(t, got.SyncTotal)
}

func TestUpdateSyncIfStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := newTestSync(t, store)

	synced := models.SyncStatusSynced
	ok, err := store.UpdateSyncIfStatus(ctx, created.ID, models.SyncStatusSyncing, models.SharePointSyncUpdate{SyncStatus: &synced})
	require.NoError(t, err)
	assert.False(t, ok, "idle record must not be finished")

	_, err = store.TryStartSync(ctx, created.ID)
	require.NoError(t, err)

	ok, err = store.UpdateSyncIfStatus(ctx, created.ID, models.SyncStatusSyncing, models.SharePointSyncUpdate{SyncStatus: &synced})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFailInterruptedSyncs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	running := newTestSync(t, s)
	idle := newTestSync(t, s)

	started, err := s.TryStartSync(ctx, running.ID)
	require.NoError(t, err)
	require.True(t, started)

	n, err := s.FailInterruptedSyncs(ctx, "sync interrupted")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.GetSync(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.SyncError)
	assert.Equal(t, "sync interrupted", *got.SyncError)

	got, err = s.GetSync(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, got.SyncStatus)
}

func TestAppendSyncLogKeepsMostRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created := newTestSync(t, store)

	for i := 0; i < 152; i++ {
		require.NoError(t, store.AppendSyncLog(ctx, created.ID, models.LogEntry{
			Timestamp: time.Now().Unix(),
			Level:     models.LogInfo,
			Message:   fmt.Sprintf("entry %d", i),
		}))
	}

	got, err := store.GetSync(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.SyncLogs, models.MaxSyncLogs)
	assert.Equal(t, "entry 52", got.SyncLogs[0].Message)
	assert.Equal(t, "entry 151", got.SyncLogs[99].Message)
}

func TestAppendSyncLogMissingSync(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.AppendSyncLog(context.Background(), "missing", models.LogEntry{Message: "x"}))
}

func TestSyncedFiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, syncID := range []string{"sync-a", "sync-a", "sync-b"} {
		_, err := store.InsertFile(ctx, "user-1", models.FileForm{
			ID:       fmt.Sprintf("file-%d", i),
			Filename: fmt.Sprintf("doc-%d.pdf", i),
			Path:     "/tmp/doc.pdf",
			Meta: map[string]any{
				models.MetaSharePointItemID:       fmt.Sprintf("item-%d", i),
				models.MetaSharePointSyncID:       syncID,
				models.MetaSharePointLastModified: "2025-01-01T00:00:00Z",
			},
		})
		require.NoError(t, err)
	}
	_, err := store.InsertFile(ctx, "user-1", models.FileForm{ID: "plain", Filename: "a.txt", Path: "/tmp/a.txt"})
	require.NoError(t, err)

	existing, err := store.SyncedFiles(ctx, "sync-a")
	require.NoError(t, err)
	assert.Equal(t, map[string]models.SyncedFile{
		"item-0": {FileID: "file-0", LastModified: "2025-01-01T00:00:00Z"},
		"item-1": {FileID: "file-1", LastModified: "2025-01-01T00:00:00Z"},
	}, existing)
}

func TestAddFileToKnowledge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	k, err := store.InsertKnowledge(ctx, "user-1", "Docs", "", nil)
	require.NoError(t, err)

	ok, err := store.AddFileToKnowledge(ctx, k.ID, "file-1", "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AddFileToKnowledge(ctx, "missing", "file-1", "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetKnowledge(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"file-1"}, got.FileIDs)
}

func TestMailboxLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mb, err := store.InsertMailbox(ctx, "user-1", models.EmailMailboxForm{
		Name:           "Support",
		MailboxAddress: "support@example.com",
		ChannelID:      "chan-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MailboxPersonal, mb.MailboxType)
	assert.True(t, mb.IsActive)
	assert.NotEmpty(t, mb.WebhookToken)

	byToken, err := store.GetMailboxByWebhookToken(ctx, mb.WebhookToken)
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, mb.ID, byToken.ID)

	inactive := false
	_, err = store.UpdateMailbox(ctx, mb.ID, models.EmailMailboxUpdateForm{IsActive: &inactive})
	require.NoError(t, err)
	byToken, err = store.GetMailboxByWebhookToken(ctx, mb.WebhookToken)
	require.NoError(t, err)
	assert.Nil(t, byToken, "inactive mailboxes do not accept webhooks")

	token, err := store.RegenerateWebhookToken(ctx, mb.ID)
	require.NoError(t, err)
	assert.NotEqual(t, mb.WebhookToken, token)

	ok, err := store.IncrementEmailCount(ctx, mb.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	subject := "hello"
	_, err = store.InsertEmail(ctx, &models.EmailMessage{MailboxID: mb.ID, ChannelID: "chan-1", Subject: &subject})
	require.NoError(t, err)

	got, err := store.GetMailbox(ctx, mb.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.EmailCount)
	assert.NotNil(t, got.LastEmailAt)

	deleted, err := store.DeleteMailbox(ctx, mb.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	emails, err := store.ListEmailsByMailbox(ctx, mb.ID, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestOutboxRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueEvent(ctx, "channel.c1.events", "message", []byte(`{}`), "m1"))

	msgs, err := store.DequeueOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MsgID)

	require.NoError(t, store.MarkOutboxRetry(ctx, msgs[0].ID, time.Hour))
	msgs, err = store.DequeueOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "retried message is not due yet")
}
