package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// InsertKnowledge creates a knowledge collection owned by userID
func (s *Store) InsertKnowledge(ctx context.Context, userID, name, description string, ac *models.AccessControl) (*models.Knowledge, error) {
	acJSON, err := toJSON(ac)
	if err != nil {
		return nil, err
	}

	ts := now()
	k := &models.Knowledge{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		Description:   description,
		FileIDs:       []string{},
		AccessControl: ac,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO knowledge (id, user_id, name, description, access_control, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.UserID, k.Name, k.Description, acJSON, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert knowledge: %w", err)
	}
	return k, nil
}

// GetKnowledge returns the collection with id and its file ids, or nil
func (s *Store) GetKnowledge(ctx context.Context, id string) (*models.Knowledge, error) {
	var (
		k  models.Knowledge
		ac sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, access_control, created_at, updated_at
		FROM knowledge WHERE id = ?
	`, id).Scan(&k.ID, &k.UserID, &k.Name, &k.Description, &ac, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge: %w", err)
	}
	if err := fromJSON(ac, &k.AccessControl); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT file_id FROM knowledge_file WHERE knowledge_id = ? ORDER BY created_at, file_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge files: %w", err)
	}
	defer rows.Close()

	k.FileIDs = []string{}
	for rows.Next() {
		var fileID string
		if err := rows.Scan(&fileID); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge file: %w", err)
		}
		k.FileIDs = append(k.FileIDs, fileID)
	}
	return &k, rows.Err()
}

// AddFileToKnowledge attaches fileID to the collection. It reports false if
// the collection does not exist.
func (s *Store) AddFileToKnowledge(ctx context.Context, knowledgeID, fileID, userID string) (bool, error) {
	var added bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM knowledge WHERE id = ?`, knowledgeID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load knowledge: %w", err)
		}

		ts := now()
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO knowledge_file (knowledge_id, file_id, user_id, created_at)
			VALUES (?, ?, ?, ?)
		`, knowledgeID, fileID, userID, ts); err != nil {
			return fmt.Errorf("failed to attach file: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE knowledge SET updated_at = ? WHERE id = ?`, ts, knowledgeID); err != nil {
			return fmt.Errorf("failed to touch knowledge: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}
