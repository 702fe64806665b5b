package models

// Channel is a chat channel that messages are posted into
type Channel struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	AccessControl *AccessControl `json:"access_control"`
	CreatedAt     int64          `json:"created_at"`
	UpdatedAt     int64          `json:"updated_at"`
}

// Message is a chat message in a channel
type Message struct {
	ID        string         `json:"id"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	ParentID  *string        `json:"parent_id"`
	Content   string         `json:"content"`
	Data      map[string]any `json:"data"`
	Meta      map[string]any `json:"meta"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// MessageForm is the payload for inserting or updating a message
type MessageForm struct {
	Content  string
	ParentID *string
	Data     map[string]any
	Meta     map[string]any
}
