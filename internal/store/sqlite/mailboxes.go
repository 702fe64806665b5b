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

const mailboxColumns = `id, user_id, name, description, mailbox_address, mailbox_type, channel_id, model_id,
	webhook_token, data, meta, access_control, is_active, last_email_at, email_count, created_at, updated_at`

func scanMailbox(row rowScanner) (*models.EmailMailbox, error) {
	var (
		m           models.EmailMailbox
		description sql.NullString
		modelID     sql.NullString
		data        sql.NullString
		meta        sql.NullString
		ac          sql.NullString
		lastEmailAt sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &description, &m.MailboxAddress, &m.MailboxType, &m.ChannelID,
		&modelID, &m.WebhookToken, &data, &meta, &ac, &m.IsActive, &lastEmailAt, &m.EmailCount,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}

	m.Description = stringPtr(description)
	m.ModelID = stringPtr(modelID)
	m.LastEmailAt = int64Ptr(lastEmailAt)
	for _, col := range []struct {
		src sql.NullString
		dst any
	}{{data, &m.Data}, {meta, &m.Meta}, {ac, &m.AccessControl}} {
		if err := fromJSON(col.src, col.dst); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// InsertMailbox creates a mailbox with a fresh webhook token
func (s *Store) InsertMailbox(ctx context.Context, userID string, form models.EmailMailboxForm) (*models.EmailMailbox, error) {
	mailboxType := form.MailboxType
	if mailboxType == "" {
		mailboxType = models.MailboxPersonal
	}

	ts := nowNano()
	m := &models.EmailMailbox{
		ID:             uuid.NewString(),
		UserID:         userID,
		Name:           form.Name,
		Description:    form.Description,
		MailboxAddress: form.MailboxAddress,
		MailboxType:    mailboxType,
		ChannelID:      form.ChannelID,
		ModelID:        form.ModelID,
		WebhookToken:   uuid.NewString(),
		Data:           form.Data,
		Meta:           form.Meta,
		AccessControl:  form.AccessControl,
		IsActive:       true,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}

	data, err := toJSON(m.Data)
	if err != nil {
		return nil, err
	}
	meta, err := toJSON(m.Meta)
	if err != nil {
		return nil, err
	}
	ac, err := toJSON(m.AccessControl)
	if err != nil {
		return nil, err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO email_mailbox
		(id, user_id, name, description, mailbox_address, mailbox_type, channel_id, model_id,
		 webhook_token, data, meta, access_control, is_active, email_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?)
	`, m.ID, m.UserID, m.Name, nullString(m.Description), m.MailboxAddress, m.MailboxType, m.ChannelID,
		nullString(m.ModelID), m.WebhookToken, data, meta, ac, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert mailbox: %w", err)
	}
	return m, nil
}

// ListMailboxes returns every mailbox
func (s *Store) ListMailboxes(ctx context.Context) ([]*models.EmailMailbox, error) {
	return s.queryMailboxes(ctx, `SELECT `+mailboxColumns+` FROM email_mailbox ORDER BY created_at`)
}

// ListMailboxesForUser returns mailboxes owned by userID or public ones
func (s *Store) ListMailboxesForUser(ctx context.Context, userID string) ([]*models.EmailMailbox, error) {
	return s.queryMailboxes(ctx, `
		SELECT `+mailboxColumns+` FROM email_mailbox
		WHERE user_id = ? OR access_control IS NULL
		ORDER BY created_at
	`, userID)
}

func (s *Store) queryMailboxes(ctx context.Context, query string, args ...any) ([]*models.EmailMailbox, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mailboxes: %w", err)
	}
	defer rows.Close()

	mailboxes := []*models.EmailMailbox{}
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, m)
	}
	return mailboxes, rows.Err()
}

func (s *Store) getMailbox(ctx context.Context, where string, args ...any) (*models.EmailMailbox, error) {
	m, err := scanMailbox(s.DB.QueryRowContext(ctx, `SELECT `+mailboxColumns+` FROM email_mailbox WHERE `+where+` LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mailbox: %w", err)
	}
	return m, nil
}

// GetMailbox returns the mailbox with id, or nil
func (s *Store) GetMailbox(ctx context.Context, id string) (*models.EmailMailbox, error) {
	return s.getMailbox(ctx, `id = ?`, id)
}

// GetMailboxByWebhookToken returns the active mailbox holding token, or nil
func (s *Store) GetMailboxByWebhookToken(ctx context.Context, token string) (*models.EmailMailbox, error) {
	return s.getMailbox(ctx, `webhook_token = ? AND is_active = 1`, token)
}

// GetMailboxByChannel returns the mailbox bound to channelID, or nil
func (s *Store) GetMailboxByChannel(ctx context.Context, channelID string) (*models.EmailMailbox, error) {
	return s.getMailbox(ctx, `channel_id = ?`, channelID)
}

// UpdateMailbox applies the non-nil fields of form. It returns nil if the
// mailbox does not exist.
func (s *Store) UpdateMailbox(ctx context.Context, id string, form models.EmailMailboxUpdateForm) (*models.EmailMailbox, error) {
	sets := []string{"updated_at = ?"}
	args := []any{nowNano()}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if form.Name != nil {
		add("name", *form.Name)
	}
	if form.Description != nil {
		add("description", *form.Description)
	}
	if form.ModelID != nil {
		add("model_id", *form.ModelID)
	}
	if form.IsActive != nil {
		add("is_active", *form.IsActive)
	}
	for _, col := range []struct {
		name string
		v    any
		set  bool
	}{
		{"data", form.Data, form.Data != nil},
		{"meta", form.Meta, form.Meta != nil},
		{"access_control", form.AccessControl, form.AccessControl != nil},
	} {
		if !col.set {
			continue
		}
		encoded, err := toJSON(col.v)
		if err != nil {
			return nil, err
		}
		add(col.name, encoded)
	}

	args = append(args, id)
	if _, err := s.DB.ExecContext(ctx, `UPDATE email_mailbox SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update mailbox: %w", err)
	}
	return s.GetMailbox(ctx, id)
}

// RegenerateWebhookToken issues a new webhook token. It returns "" if the
// mailbox does not exist.
func (s *Store) RegenerateWebhookToken(ctx context.Context, id string) (string, error) {
	token := uuid.NewString()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE email_mailbox SET webhook_token = ?, updated_at = ? WHERE id = ?
	`, token, nowNano(), id)
	if err != nil {
		return "", fmt.Errorf("failed to regenerate webhook token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", nil
	}
	return token, nil
}

// IncrementEmailCount bumps the mailbox's counter and last-email timestamp
func (s *Store) IncrementEmailCount(ctx context.Context, id string) (bool, error) {
	ts := nowNano()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE email_mailbox
		SET email_count = email_count + 1, last_email_at = ?, updated_at = ?
		WHERE id = ?
	`, ts, ts, id)
	if err != nil {
		return false, fmt.Errorf("failed to increment email count: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteMailbox removes a mailbox and every email received through it
func (s *Store) DeleteMailbox(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM email_message WHERE mailbox_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete mailbox emails: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM email_mailbox WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete mailbox: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}
