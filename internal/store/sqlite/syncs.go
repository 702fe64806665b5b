package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

const syncColumns = `id, user_id, name, knowledge_id, drive_id, item_id, folder_path, sharepoint_endpoint,
	last_sync_at, file_count, sync_status, sync_error, sync_logs, sync_progress, sync_total,
	access_control, revision, created_at, updated_at`

func scanSync(row rowScanner) (*models.SharePointSync, error) {
	var (
		s          models.SharePointSync
		folderPath sql.NullString
		lastSync   sql.NullInt64
		syncErr    sql.NullString
		logs       sql.NullString
		ac         sql.NullString
	)

	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.KnowledgeID, &s.DriveID, &s.ItemID, &folderPath,
		&s.SharePointEndpoint, &lastSync, &s.FileCount, &s.SyncStatus, &syncErr, &logs,
		&s.SyncProgress, &s.SyncTotal, &ac, &s.Revision, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.FolderPath = folderPath.String
	s.LastSyncAt = int64Ptr(lastSync)
	s.SyncError = stringPtr(syncErr)
	if err := fromJSON(logs, &s.SyncLogs); err != nil {
		return nil, err
	}
	if err := fromJSON(ac, &s.AccessControl); err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSync creates an idle sync owned by userID
func (s *Store) InsertSync(ctx context.Context, userID string, form models.SharePointSyncForm) (*models.SharePointSync, error) {
	ac, err := toJSON(form.AccessControl)
	if err != nil {
		return nil, err
	}

	ts := now()
	sync := &models.SharePointSync{
		ID:                 uuid.NewString(),
		UserID:             userID,
		Name:               form.Name,
		KnowledgeID:        form.KnowledgeID,
		DriveID:            form.DriveID,
		ItemID:             form.ItemID,
		FolderPath:         form.FolderPath,
		SharePointEndpoint: strings.TrimRight(form.SharePointEndpoint, "/"),
		SyncStatus:         models.SyncStatusIdle,
		AccessControl:      form.AccessControl,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO sharepoint_sync
		(id, user_id, name, knowledge_id, drive_id, item_id, folder_path, sharepoint_endpoint,
		 file_count, sync_status, sync_progress, sync_total, access_control, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, 0, ?, 0, ?, ?)
	`, sync.ID, sync.UserID, sync.Name, sync.KnowledgeID, sync.DriveID, sync.ItemID, sync.FolderPath,
		sync.SharePointEndpoint, sync.SyncStatus, ac, sync.CreatedAt, sync.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sharepoint sync: %w", err)
	}

	return sync, nil
}

// GetSync returns the sync with id, or nil if there is none
func (s *Store) GetSync(ctx context.Context, id string) (*models.SharePointSync, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+syncColumns+` FROM sharepoint_sync WHERE id = ?`, id)
	sync, err := scanSync(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sharepoint sync: %w", err)
	}
	return sync, nil
}

// ListSyncs returns all syncs, most recently updated first
func (s *Store) ListSyncs(ctx context.Context) ([]*models.SharePointSync, error) {
	return s.querySyncs(ctx, `SELECT `+syncColumns+` FROM sharepoint_sync ORDER BY updated_at DESC`)
}

// ListSyncsByKnowledge returns the syncs feeding a knowledge collection
func (s *Store) ListSyncsByKnowledge(ctx context.Context, knowledgeID string) ([]*models.SharePointSync, error) {
	return s.querySyncs(ctx, `SELECT `+syncColumns+` FROM sharepoint_sync WHERE knowledge_id = ? ORDER BY updated_at DESC`, knowledgeID)
}

func (s *Store) querySyncs(ctx context.Context, query string, args ...any) ([]*models.SharePointSync, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sharepoint syncs: %w", err)
	}
	defer rows.Close()

	syncs := []*models.SharePointSync{}
	for rows.Next() {
		sync, err := scanSync(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sharepoint sync: %w", err)
		}
		syncs = append(syncs, sync)
	}
	return syncs, rows.Err()
}

// UpdateSync applies the non-nil fields of upd and returns the updated
// record, or nil if the sync does not exist
func (s *Store) UpdateSync(ctx context.Context, id string, upd models.SharePointSyncUpdate) (*models.SharePointSync, error) {
	if _, err := s.updateSync(ctx, id, "", upd); err != nil {
		return nil, err
	}
	return s.GetSync(ctx, id)
}

// UpdateSyncIfStatus applies upd only while the record is in status want.
// It reports whether the row was updated.
func (s *Store) UpdateSyncIfStatus(ctx context.Context, id string, want models.SyncStatus, upd models.SharePointSyncUpdate) (bool, error) {
	return s.updateSync(ctx, id, want, upd)
}

// TryStartSync moves a sync into syncing and resets its run counters unless
// it is already syncing. It reports whether this call started the run.
func (s *Store) TryStartSync(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE sharepoint_sync
		SET sync_status = ?,
		    sync_error = NULL,
		    sync_progress = 0,
		    sync_total = 0,
		    revision = revision + 1,
		    updated_at = ?
		WHERE id = ? AND sync_status != ?
	`, models.SyncStatusSyncing, now(), id, models.SyncStatusSyncing)
	if err != nil {
		return false, fmt.Errorf("failed to start sharepoint sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to start sharepoint sync: %w", err)
	}
	return n == 1, nil
}

func (s *Store) updateSync(ctx context.Context, id string, want models.SyncStatus, upd models.SharePointSyncUpdate) (bool, error) {
	sets := []string{"revision = revision + 1", "updated_at = ?"}
	args := []any{now()}

	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.AccessControl != nil {
		ac, err := toJSON(upd.AccessControl)
		if err != nil {
			return false, err
		}
		add("access_control", ac)
	}
	if upd.LastSyncAt != nil {
		add("last_sync_at", *upd.LastSyncAt)
	}
	if upd.FileCount != nil {
		add("file_count", *upd.FileCount)
	}
	if upd.SyncStatus != nil {
		add("sync_status", *upd.SyncStatus)
	}
	if upd.ClearSyncError {
		sets = append(sets, "sync_error = NULL")
	} else if upd.SyncError != nil {
		add("sync_error", *upd.SyncError)
	}
	if upd.SyncLogs != nil {
		logs, err := toJSON(*upd.SyncLogs)
		if err != nil {
			return false, err
		}
		if !logs.Valid {
			logs = sql.NullString{String: "[]", Valid: true}
		}
		add("sync_logs", logs)
	}
	if upd.SyncProgress != nil {
		add("sync_progress", *upd.SyncProgress)
	}
	if upd.SyncTotal != nil {
		add("sync_total", *upd.SyncTotal)
	}

	query := "UPDATE sharepoint_sync SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if want != "" {
		query += " AND sync_status = ?"
		args = append(args, want)
	}

	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update sharepoint sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update sharepoint sync: %w", err)
	}
	return n > 0, nil
}

// AppendSyncLog appends entry to the sync's log in one transaction, evicting
// the oldest entries beyond models.MaxSyncLogs
func (s *Store) AppendSyncLog(ctx context.Context, id string, entry models.LogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var raw sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT sync_logs FROM sharepoint_sync WHERE id = ?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load sync logs: %w", err)
		}

		var logs []models.LogEntry
		if err := fromJSON(raw, &logs); err != nil {
			return err
		}
		logs = append(logs, entry)
		if len(logs) > models.MaxSyncLogs {
			logs = logs[len(logs)-models.MaxSyncLogs:]
		}

		encoded, err := toJSON(logs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE sharepoint_sync
			SET sync_logs = ?, revision = revision + 1, updated_at = ?
			WHERE id = ?
		`, encoded, now(), id)
		if err != nil {
			return fmt.Errorf("failed to append sync log: %w", err)
		}
		return nil
	})
}

// DeleteSync removes a sync record. Files it synced are kept.
func (s *Store) DeleteSync(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM sharepoint_sync WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete sharepoint sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete sharepoint sync: %w", err)
	}
	return n > 0, nil
}

// FailInterruptedSyncs marks every syncing record as failed. Called at
// startup, when no run of this process can still own them.
func (s *Store) FailInterruptedSyncs(ctx context.Context, message string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE sharepoint_sync
		SET sync_status = ?, sync_error = ?, revision = revision + 1, updated_at = ?
		WHERE sync_status = ?
	`, models.SyncStatusError, message, now(), models.SyncStatusSyncing)
	if err != nil {
		return 0, fmt.Errorf("failed to reset interrupted syncs: %w", err)
	}
	return res.RowsAffected()
}
