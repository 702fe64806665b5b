package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martian-dev/brain-connectors/internal/emails"
	"github.com/Martian-dev/brain-connectors/internal/models"
)

func (e *testEnv) createMailbox(t *testing.T, ac *models.AccessControl) *models.EmailMailbox {
	t.Helper()
	channel, err := e.store.InsertChannel(context.Background(), e.admin.ID, "support", "", ac)
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/v1/emails/create", e.adminToken, models.EmailMailboxForm{
		Name:           "Support",
		MailboxAddress: "support@example.com",
		ChannelID:      channel.ID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	m := decode[models.EmailMailbox](t, w)
	return &m
}

func TestCreateMailbox(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/emails/create", env.adminToken, models.EmailMailboxForm{
		Name: "x", MailboxAddress: "x@example.com", ChannelID: "missing",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Channel not found", decode[map[string]string](t, w)["detail"])

	mailbox := env.createMailbox(t, nil)
	assert.NotEmpty(t, mailbox.WebhookToken)
	assert.True(t, mailbox.IsActive)
	assert.Equal(t, models.MailboxPersonal, mailbox.MailboxType)

	w = env.do(t, http.MethodPost, "/api/v1/emails/create", env.adminToken, models.EmailMailboxForm{
		Name: "dup", MailboxAddress: "dup@example.com", ChannelID: mailbox.ChannelID,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "A mailbox already exists for this channel", decode[map[string]string](t, w)["detail"])

	w = env.do(t, http.MethodGet, "/api/v1/emails/", env.otherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[[]models.EmailMailboxResponse](t, w)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].ChannelName)
	assert.Equal(t, "support", *listed[0].ChannelName)
}

func TestWebhookFlow(t *testing.T) {
	env := newTestEnv(t)
	mailbox := env.createMailbox(t, nil)

	w := env.do(t, http.MethodPost, "/api/v1/emails/webhook/nope", "", map[string]any{"subject": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Invalid webhook token or mailbox inactive", decode[map[string]string](t, w)["detail"])

	w = env.do(t, http.MethodPost, "/api/v1/emails/webhook/"+mailbox.WebhookToken, "", map[string]any{
		"subject":         "Hello",
		"sender":          "alice@example.com",
		"body":            "Hi team",
		"has_attachments": "False",
		"received_at":     "2024-03-01T10:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[emails.WebhookResult](t, w)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.EmailID)
	assert.NotEmpty(t, result.MessageID)

	w = env.do(t, http.MethodGet, "/api/v1/emails/"+mailbox.ID+"/emails?limit=10", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[[]models.EmailMessage](t, w)
	require.Len(t, listed, 1)
	assert.Equal(t, result.EmailID, listed[0].ID)

	w = env.do(t, http.MethodGet, "/api/v1/channels/"+mailbox.ChannelID+"/messages", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := decode[[]models.Message](t, w)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "**Subject:** Hello")

	w = env.do(t, http.MethodGet, "/api/v1/emails/"+mailbox.ID, env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[models.EmailMailboxResponse](t, w).EmailCount)
}

func TestWebhookMissingTargets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	orphan, err := env.store.InsertMailbox(ctx, env.admin.ID, models.EmailMailboxForm{
		Name: "Orphan", MailboxAddress: "orphan@example.com", ChannelID: "no-such-channel",
	})
	require.NoError(t, err)
	w := env.do(t, http.MethodPost, "/api/v1/emails/webhook/"+orphan.WebhookToken, "", map[string]any{"subject": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Associated channel not found", decode[map[string]string](t, w)["detail"])

	channel, err := env.store.InsertChannel(ctx, env.admin.ID, "ghost", "", nil)
	require.NoError(t, err)
	ownerless, err := env.store.InsertMailbox(ctx, "no-such-user", models.EmailMailboxForm{
		Name: "Ownerless", MailboxAddress: "ghost@example.com", ChannelID: channel.ID,
	})
	require.NoError(t, err)
	w = env.do(t, http.MethodPost, "/api/v1/emails/webhook/"+ownerless.WebhookToken, "", map[string]any{"subject": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Mailbox owner not found", decode[map[string]string](t, w)["detail"])
}

func TestMailboxEmailsRequireChannelAccess(t *testing.T) {
	env := newTestEnv(t)
	mailbox := env.createMailbox(t, &models.AccessControl{Read: &models.AccessGrant{UserIDs: []string{}}})

	w := env.do(t, http.MethodGet, "/api/v1/emails/"+mailbox.ID+"/emails", env.otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/emails/"+mailbox.ID+"/emails", env.adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMailboxManagement(t *testing.T) {
	env := newTestEnv(t)
	mailbox := env.createMailbox(t, nil)
	base := "/api/v1/emails/" + mailbox.ID

	// public mailboxes are readable but not writable
	w := env.do(t, http.MethodGet, base+"/webhook-info", env.otherToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[emails.WebhookInfo](t, w)
	assert.Equal(t, "https://brain.example.com/api/v1/emails/webhook/"+mailbox.WebhookToken, info.WebhookURL)
	assert.Equal(t, "Power Automate Setup Instructions", info.Instructions.Title)

	w = env.do(t, http.MethodPost, base+"/regenerate-token", env.otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, base+"/regenerate-token", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	token := decode[map[string]string](t, w)["webhook_token"]
	assert.NotEqual(t, mailbox.WebhookToken, token)

	w = env.do(t, http.MethodPost, "/api/v1/emails/webhook/"+mailbox.WebhookToken, "", map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code, "old token is revoked")

	inactive := false
	w = env.do(t, http.MethodPost, base+"/update", env.adminToken, models.EmailMailboxUpdateForm{IsActive: &inactive})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[models.EmailMailbox](t, w).IsActive)

	w = env.do(t, http.MethodPost, "/api/v1/emails/webhook/"+token, "", map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code, "inactive mailboxes reject mail")

	w = env.do(t, http.MethodDelete, base+"/delete", env.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Body.String())

	w = env.do(t, http.MethodGet, base, env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
