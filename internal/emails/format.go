package emails

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

const systemPromptTemplate = `You are %s, an email assistant monitoring the mailbox %s.

When you receive an email, analyze it and provide:
1. A brief summary of what the email is about
2. Any action items or requests identified
3. Suggested response or next steps
4. Priority assessment (urgent, high, normal, low)

Be concise and actionable in your analysis. If there are any calls to action (like calling someone, checking a file, scheduling a meeting), clearly highlight them.

Users can reply to ask follow-up questions about the email content.`

// SystemPrompt instructs the model summarizing mail for address
func SystemPrompt(modelName, address string) string {
	return fmt.Sprintf(systemPromptTemplate, modelName, address)
}

// ChannelMessage renders an inbound email as a channel post
func ChannelMessage(in *models.IncomingEmail) string {
	var attachments string
	if in.HasAttachments && len(in.Attachments) > 0 {
		names := make([]string, 0, len(in.Attachments))
		for _, a := range in.Attachments {
			name, _ := a["name"].(string)
			if name == "" {
				name = "attachment"
			}
			names = append(names, name)
		}
		attachments = "\n📎 **Attachments:** " + strings.Join(names, ", ")
	}

	return fmt.Sprintf(`📧 **New Email Received**

**From:** %s
**Subject:** %s
**Importance:** %s%s

---
%s
`,
		firstNonEmpty(in.SenderName, in.Sender),
		orDefault(firstNonEmpty(in.Subject), "(No subject)"),
		orDefault(firstNonEmpty(in.Importance), "normal"),
		attachments,
		orDefault(firstNonEmpty(in.BodyPreview, in.Body), "(No content)"),
	)
}

// AgentPrompt renders a stored email for the summarizing model
func AgentPrompt(e *models.EmailMessage) string {
	hasAttachments := "No"
	if e.HasAttachments {
		hasAttachments = "Yes"
	}

	body, _ := e.Data["body"].(string)
	if body == "" {
		body = orDefault(firstNonEmpty(e.BodyPreview), "No content")
	}

	return fmt.Sprintf(`
New email received:

**From:** %s <%s>
**Subject:** %s
**Importance:** %s
**Has Attachments:** %s

**Body:**
%s
`,
		firstNonEmpty(e.SenderName, e.Sender),
		firstNonEmpty(e.Sender),
		firstNonEmpty(e.Subject),
		orDefault(firstNonEmpty(e.Importance), "normal"),
		hasAttachments,
		body,
	)
}

// NewEmailRecord shapes the stored record for an inbound email
func NewEmailRecord(mailboxID, channelID string, in *models.IncomingEmail, now time.Time) *models.EmailMessage {
	preview := truncate(firstNonEmpty(in.BodyPreview, in.Body), models.MaxEmailPreview)

	return &models.EmailMessage{
		MailboxID:      mailboxID,
		ChannelID:      channelID,
		EmailID:        in.EmailID,
		Subject:        in.Subject,
		Sender:         in.Sender,
		SenderName:     in.SenderName,
		Recipients:     in.Recipients,
		Cc:             in.Cc,
		BodyPreview:    &preview,
		HasAttachments: bool(in.HasAttachments),
		Attachments:    in.Attachments,
		ReceivedAt:     parseReceivedAt(in.ReceivedAt, now),
		Importance:     in.Importance,
		Data:           payloadMap(in),
	}
}

var receivedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseReceivedAt returns unix nanoseconds. Unparseable values fall back to
// now; a missing value stays nil.
func parseReceivedAt(s *string, now time.Time) *int64 {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range receivedLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			ns := t.UnixNano()
			return &ns
		}
	}
	ns := now.UnixNano()
	return &ns
}

func payloadMap(in *models.IncomingEmail) map[string]any {
	b, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
