package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// InsertChannel creates a channel owned by userID
func (s *Store) InsertChannel(ctx context.Context, userID, name, description string, ac *models.AccessControl) (*models.Channel, error) {
	acJSON, err := toJSON(ac)
	if err != nil {
		return nil, err
	}

	ts := nowNano()
	c := &models.Channel{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          name,
		Description:   description,
		AccessControl: ac,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO channel (id, user_id, name, description, access_control, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.Description, acJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert channel: %w", err)
	}
	return c, nil
}

// GetChannel returns the channel with id, or nil
func (s *Store) GetChannel(ctx context.Context, id string) (*models.Channel, error) {
	var (
		c  models.Channel
		ac sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, access_control, created_at, updated_at
		FROM channel WHERE id = ?
	`, id).Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &ac, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}
	if err := fromJSON(ac, &c.AccessControl); err != nil {
		return nil, err
	}
	return &c, nil
}

const messageColumns = `id, channel_id, user_id, parent_id, content, data, meta, created_at, updated_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m        models.Message
		parentID sql.NullString
		data     sql.NullString
		meta     sql.NullString
	)
	if err := row.Scan(&m.ID, &m.ChannelID, &m.UserID, &parentID, &m.Content, &data, &meta, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ParentID = stringPtr(parentID)
	if err := fromJSON(data, &m.Data); err != nil {
		return nil, err
	}
	if err := fromJSON(meta, &m.Meta); err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage posts a message into channelID as userID
func (s *Store) InsertMessage(ctx context.Context, channelID, userID string, form models.MessageForm) (*models.Message, error) {
	data, err := toJSON(form.Data)
	if err != nil {
		return nil, err
	}
	meta, err := toJSON(form.Meta)
	if err != nil {
		return nil, err
	}

	ts := nowNano()
	m := &models.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		UserID:    userID,
		ParentID:  form.ParentID,
		Content:   form.Content,
		Data:      form.Data,
		Meta:      form.Meta,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO message (id, channel_id, user_id, parent_id, content, data, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ChannelID, m.UserID, nullString(m.ParentID), m.Content, data, meta, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

// UpdateMessage replaces a message's content and merges meta into the
// existing meta. It returns nil if the message does not exist.
func (s *Store) UpdateMessage(ctx context.Context, id string, form models.MessageForm) (*models.Message, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMessage(tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM message WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load message: %w", err)
		}

		if m.Meta == nil {
			m.Meta = map[string]any{}
		}
		for k, v := range form.Meta {
			m.Meta[k] = v
		}
		meta, err := toJSON(m.Meta)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE message SET content = ?, meta = ?, updated_at = ? WHERE id = ?
		`, form.Content, meta, nowNano(), id)
		if err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetMessage(ctx, id)
}

// GetMessage returns the message with id, or nil
func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(s.DB.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM message WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return m, nil
}

// ListMessages returns a channel's messages, newest first
func (s *Store) ListMessages(ctx context.Context, channelID string, skip, limit int) ([]*models.Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM message
		WHERE channel_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, channelID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
