package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

const emailColumns = `id, mailbox_id, channel_id, message_id, email_id, subject, sender, sender_name,
	recipients, cc, body_preview, has_attachments, attachments, received_at, importance,
	processed, agent_response, data, meta, created_at, updated_at`

func scanEmail(row rowScanner) (*models.EmailMessage, error) {
	var (
		e                                               models.EmailMessage
		messageID, emailID, subject, sender, senderName sql.NullString
		recipients, cc, bodyPreview, attachments        sql.NullString
		importance, agentResponse, data, meta           sql.NullString
		receivedAt                                      sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.MailboxID, &e.ChannelID, &messageID, &emailID, &subject, &sender, &senderName,
		&recipients, &cc, &bodyPreview, &e.HasAttachments, &attachments, &receivedAt, &importance,
		&e.Processed, &agentResponse, &data, &meta, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.MessageID = stringPtr(messageID)
	e.EmailID = stringPtr(emailID)
	e.Subject = stringPtr(subject)
	e.Sender = stringPtr(sender)
	e.SenderName = stringPtr(senderName)
	e.BodyPreview = stringPtr(bodyPreview)
	e.ReceivedAt = int64Ptr(receivedAt)
	e.Importance = stringPtr(importance)
	e.AgentResponse = stringPtr(agentResponse)
	for _, col := range []struct {
		src sql.NullString
		dst any
	}{{recipients, &e.Recipients}, {cc, &e.Cc}, {attachments, &e.Attachments}, {data, &e.Data}, {meta, &e.Meta}} {
		if err := fromJSON(col.src, col.dst); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// InsertEmail records an email delivered to mailboxID. The caller shapes the
// record; id and timestamps are assigned here.
func (s *Store) InsertEmail(ctx context.Context, e *models.EmailMessage) (*models.EmailMessage, error) {
	ts := nowNano()
	e.ID = uuid.NewString()
	e.CreatedAt = ts
	e.UpdatedAt = ts

	recipients, err := toJSON(e.Recipients)
	if err != nil {
		return nil, err
	}
	cc, err := toJSON(e.Cc)
	if err != nil {
		return nil, err
	}
	attachments, err := toJSON(e.Attachments)
	if err != nil {
		return nil, err
	}
	data, err := toJSON(e.Data)
	if err != nil {
		return nil, err
	}
	meta, err := toJSON(e.Meta)
	if err != nil {
		return nil, err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO email_message (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.MailboxID, e.ChannelID, nullString(e.MessageID), nullString(e.EmailID), nullString(e.Subject),
		nullString(e.Sender), nullString(e.SenderName), recipients, cc, nullString(e.BodyPreview),
		e.HasAttachments, attachments, nullInt64(e.ReceivedAt), nullString(e.Importance), e.Processed,
		nullString(e.AgentResponse), data, meta, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert email: %w", err)
	}
	return e, nil
}

// GetEmail returns the email with id, or nil
func (s *Store) GetEmail(ctx context.Context, id string) (*models.EmailMessage, error) {
	e, err := scanEmail(s.DB.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM email_message WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email: %w", err)
	}
	return e, nil
}

// ListEmailsByMailbox returns a page of a mailbox's emails, newest first
func (s *Store) ListEmailsByMailbox(ctx context.Context, mailboxID string, skip, limit int) ([]*models.EmailMessage, error) {
	return s.queryEmails(ctx, `mailbox_id = ?`, mailboxID, skip, limit)
}

// ListEmailsByChannel returns a page of a channel's emails, newest first
func (s *Store) ListEmailsByChannel(ctx context.Context, channelID string, skip, limit int) ([]*models.EmailMessage, error) {
	return s.queryEmails(ctx, `channel_id = ?`, channelID, skip, limit)
}

func (s *Store) queryEmails(ctx context.Context, where, arg string, skip, limit int) ([]*models.EmailMessage, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+emailColumns+` FROM email_message
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, arg, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	emails := []*models.EmailMessage{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// SetEmailMessageID links an email to the channel message that announced it
func (s *Store) SetEmailMessageID(ctx context.Context, id, messageID string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE email_message SET message_id = ?, updated_at = ? WHERE id = ?
	`, messageID, nowNano(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set email message id: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkEmailProcessed records the outcome of AI processing. An empty
// agentResponse keeps the previous value.
func (s *Store) MarkEmailProcessed(ctx context.Context, id string, processed bool, agentResponse string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE email_message
		SET processed = ?,
		    agent_response = CASE WHEN ? != '' THEN ? ELSE agent_response END,
		    updated_at = ?
		WHERE id = ?
	`, processed, agentResponse, agentResponse, nowNano(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark email processed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteEmail removes one email record
func (s *Store) DeleteEmail(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM email_message WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete email: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
