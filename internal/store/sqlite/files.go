package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// InsertFile creates a file record owned by userID
func (s *Store) InsertFile(ctx context.Context, userID string, form models.FileForm) (*models.File, error) {
	meta, err := toJSON(form.Meta)
	if err != nil {
		return nil, err
	}

	ts := now()
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO file (id, user_id, filename, path, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, form.ID, userID, form.Filename, form.Path, meta, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to insert file: %w", err)
	}

	return &models.File{
		ID:        form.ID,
		UserID:    userID,
		Filename:  form.Filename,
		Path:      form.Path,
		Meta:      form.Meta,
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// GetFile returns the file with id, or nil if there is none
func (s *Store) GetFile(ctx context.Context, id string) (*models.File, error) {
	var (
		f    models.File
		meta sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, filename, path, meta, created_at, updated_at FROM file WHERE id = ?
	`, id).Scan(&f.ID, &f.UserID, &f.Filename, &f.Path, &meta, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	if err := fromJSON(meta, &f.Meta); err != nil {
		return nil, err
	}
	return &f, nil
}

// SyncedFiles indexes the files tagged with syncID by SharePoint item id
func (s *Store) SyncedFiles(ctx context.Context, syncID string) (map[string]models.SyncedFile, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id,
		       json_extract(meta, '$.sharepoint_item_id'),
		       json_extract(meta, '$.sharepoint_last_modified')
		FROM file
		WHERE json_extract(meta, '$.sharepoint_sync_id') = ?
	`, syncID)
	if err != nil {
		return nil, fmt.Errorf("failed to query synced files: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]models.SyncedFile)
	for rows.Next() {
		var (
			fileID       string
			itemID       sql.NullString
			lastModified sql.NullString
		)
		if err := rows.Scan(&fileID, &itemID, &lastModified); err != nil {
			return nil, fmt.Errorf("failed to scan synced file: %w", err)
		}
		if !itemID.Valid || itemID.String == "" {
			continue
		}
		existing[itemID.String] = models.SyncedFile{
			FileID:       fileID,
			LastModified: lastModified.String,
		}
	}
	return existing, rows.Err()
}
