package emails

import (
	"encoding/json"
	"strings"

	"github.com/Martian-dev/brain-connectors/internal/models"
)

// WebhookInfo tells a mailbox owner how to point Power Automate at the webhook
type WebhookInfo struct {
	WebhookURL   string       `json:"webhook_url"`
	WebhookToken string       `json:"webhook_token"`
	Instructions Instructions `json:"instructions"`
}

type Instructions struct {
	Title            string       `json:"title"`
	Steps            []string     `json:"steps"`
	BodyTemplate     BodyTemplate `json:"body_template"`
	BodyTemplateText string       `json:"body_template_text"`
}

// BodyTemplate is the flow's HTTP action body. Field order is the order
// shown to users.
type BodyTemplate struct {
	EmailID        string `json:"email_id"`
	Subject        string `json:"subject"`
	Sender         string `json:"sender"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	BodyPreview    string `json:"body_preview"`
	HasAttachments string `json:"has_attachments"`
	ReceivedAt     string `json:"received_at"`
	Importance     string `json:"importance"`
}

var powerAutomateBody = BodyTemplate{
	EmailID:        "@{triggerOutputs()?['body/id']}",
	Subject:        "@{triggerOutputs()?['body/subject']}",
	Sender:         "@{triggerOutputs()?['body/from']}",
	SenderName:     "@{triggerOutputs()?['body/from']}",
	Body:           "@{triggerOutputs()?['body/body']}",
	BodyPreview:    "@{triggerOutputs()?['body/bodyPreview']}",
	HasAttachments: "@{triggerOutputs()?['body/hasAttachments']}",
	ReceivedAt:     "@{triggerOutputs()?['body/receivedDateTime']}",
	Importance:     "@{triggerOutputs()?['body/importance']}",
}

// WebhookPath is where inbound email is posted for token
func WebhookPath(token string) string {
	return "/api/v1/emails/webhook/" + token
}

// NewWebhookInfo builds setup instructions for a mailbox served at baseURL
func NewWebhookInfo(baseURL string, mailbox *models.EmailMailbox) WebhookInfo {
	url := strings.TrimRight(baseURL, "/") + WebhookPath(mailbox.WebhookToken)
	text, _ := json.MarshalIndent(powerAutomateBody, "", "  ")

	return WebhookInfo{
		WebhookURL:   url,
		WebhookToken: mailbox.WebhookToken,
		Instructions: Instructions{
			Title: "Power Automate Setup Instructions",
			Steps: []string{
				"1. Create a new Flow in Power Automate",
				"2. Select trigger: 'When a new email arrives (V3)' from Office 365 Outlook",
				"3. Configure the trigger for mailbox: " + mailbox.MailboxAddress,
				"4. Add action: 'HTTP' and configure as POST request",
				"5. Set URL to: " + url,
				"6. Set Content-Type header to: application/json",
				"7. Use the following body template (copy and customize):",
			},
			BodyTemplate:     powerAutomateBody,
			BodyTemplateText: string(text),
		},
	}
}
