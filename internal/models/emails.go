package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EmailMailbox watches one mailbox and posts its emails into a channel
type EmailMailbox struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Name        string  `json:"name"`
	Description *string `json:"description"`

	MailboxAddress string `json:"mailbox_address"`
	MailboxType    string `json:"mailbox_type"`

	ChannelID string  `json:"channel_id"`
	ModelID   *string `json:"model_id"`

	WebhookToken string `json:"webhook_token"`

	Data          map[string]any `json:"data"`
	Meta          map[string]any `json:"meta"`
	AccessControl *AccessControl `json:"access_control"`

	IsActive bool `json:"is_active"`

	LastEmailAt *int64 `json:"last_email_at"`
	EmailCount  int64  `json:"email_count"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// EmailMailboxResponse adds computed fields for API responses
type EmailMailboxResponse struct {
	EmailMailbox
	ChannelName *string `json:"channel_name"`
}

// EmailMailboxForm is the payload for creating a mailbox
type EmailMailboxForm struct {
	Name           string         `json:"name" binding:"required"`
	Description    *string        `json:"description"`
	MailboxAddress string         `json:"mailbox_address" binding:"required"`
	MailboxType    string         `json:"mailbox_type"`
	ChannelID      string         `json:"channel_id" binding:"required"`
	ModelID        *string        `json:"model_id"`
	Data           map[string]any `json:"data"`
	Meta           map[string]any `json:"meta"`
	AccessControl  *AccessControl `json:"access_control"`
}

// EmailMailboxUpdateForm only applies non-nil fields
type EmailMailboxUpdateForm struct {
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	ModelID       *string        `json:"model_id"`
	IsActive      *bool          `json:"is_active"`
	Data          map[string]any `json:"data"`
	Meta          map[string]any `json:"meta"`
	AccessControl *AccessControl `json:"access_control"`
}

const (
	MailboxPersonal = "personal"
	MailboxShared   = "shared"
)

// MaxEmailPreview bounds body previews and stored agent responses
const MaxEmailPreview = 500

// EmailMessage records one email delivered through a mailbox webhook
type EmailMessage struct {
	ID        string  `json:"id"`
	MailboxID string  `json:"mailbox_id"`
	ChannelID string  `json:"channel_id"`
	MessageID *string `json:"message_id"`

	EmailID    *string `json:"email_id"`
	Subject    *string `json:"subject"`
	Sender     *string `json:"sender"`
	SenderName *string `json:"sender_name"`
	Recipients []any   `json:"recipients"`
	Cc         []any   `json:"cc"`

	BodyPreview    *string          `json:"body_preview"`
	HasAttachments bool             `json:"has_attachments"`
	Attachments    []map[string]any `json:"attachments"`

	ReceivedAt *int64  `json:"received_at"`
	Importance *string `json:"importance"`

	Processed     bool    `json:"processed"`
	AgentResponse *string `json:"agent_response"`

	Data map[string]any `json:"data"`
	Meta map[string]any `json:"meta"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// IncomingEmail is the body Power Automate posts to a mailbox webhook
type IncomingEmail struct {
	EmailID           *string          `json:"email_id"`
	Subject           *string          `json:"subject"`
	Sender            *string          `json:"sender"`
	SenderName        *string          `json:"sender_name"`
	Recipients        []any            `json:"recipients"`
	Cc                []any            `json:"cc"`
	Body              *string          `json:"body"`
	BodyPreview       *string          `json:"body_preview"`
	HTMLBody          *string          `json:"html_body"`
	HasAttachments    FlexBool         `json:"has_attachments"`
	Attachments       []map[string]any `json:"attachments"`
	ReceivedAt        *string          `json:"received_at"`
	Importance        *string          `json:"importance"`
	ConversationID    *string          `json:"conversation_id"`
	InternetMessageID *string          `json:"internet_message_id"`
}

// FlexBool accepts JSON booleans and the "True"/"false" strings Power
// Automate templates produce
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = FlexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return err
	}
	*b = FlexBool(v)
	return nil
}
