package emails

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Martian-dev/brain-connectors/internal/ai"
	"github.com/Martian-dev/brain-connectors/internal/events"
	"github.com/Martian-dev/brain-connectors/internal/models"
	"github.com/Martian-dev/brain-connectors/internal/store/sqlite"
)

var (
	ErrInvalidToken    = errors.New("invalid webhook token or mailbox inactive")
	ErrChannelNotFound = errors.New("associated channel not found")
	ErrOwnerNotFound   = errors.New("mailbox owner not found")
)

// Assistant is the chat-completion backend used to summarize mail
type Assistant interface {
	GetModel(ctx context.Context, id string) (*ai.Model, error)
	ChatCompletion(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error)
}

// WebhookResult is returned to the webhook caller
type WebhookResult struct {
	Success   bool   `json:"success"`
	EmailID   string `json:"email_id"`
	MessageID string `json:"message_id"`
}

// Service ingests webhook deliveries into mailboxes and channels
type Service struct {
	store     *sqlite.Store
	emitter   *events.Emitter
	assistant Assistant
	now       func() time.Time

	wg sync.WaitGroup
}

// NewService creates the email service. A nil assistant disables summaries.
func NewService(store *sqlite.Store, emitter *events.Emitter, assistant Assistant) *Service {
	return &Service{
		store:     store,
		emitter:   emitter,
		assistant: assistant,
		now:       time.Now,
	}
}

// ReceiveWebhook records an inbound email for the mailbox owning token and
// posts it into the mailbox's channel
func (s *Service) ReceiveWebhook(ctx context.Context, token string, in *models.IncomingEmail) (*WebhookResult, error) {
	mailbox, err := s.store.GetMailboxByWebhookToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if mailbox == nil {
		return nil, ErrInvalidToken
	}

	channel, err := s.store.GetChannel(ctx, mailbox.ChannelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}

	owner, err := s.store.GetUser(ctx, mailbox.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}

	email, err := s.store.InsertEmail(ctx, NewEmailRecord(mailbox.ID, channel.ID, in, s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to store email: %w", err)
	}

	msg, err := s.store.InsertMessage(ctx, channel.ID, owner.ID, models.MessageForm{
		Content: ChannelMessage(in),
		Data:    map[string]any{"email_id": email.ID, "mailbox_id": mailbox.ID},
		Meta: map[string]any{
			"type":     "email",
			"email_id": email.ID,
			"from":     in.Sender,
			"subject":  in.Subject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post channel message: %w", err)
	}

	if _, err := s.store.SetEmailMessageID(ctx, email.ID, msg.ID); err != nil {
		return nil, err
	}
	email.MessageID = &msg.ID

	if err := s.emitter.EmitMessage(ctx, events.TypeMessage, msg, owner); err != nil {
		log.Printf("[emails] failed to emit message %s: %v", msg.ID, err)
	}

	if _, err := s.store.IncrementEmailCount(ctx, mailbox.ID); err != nil {
		log.Printf("[emails] failed to update counters for mailbox %s: %v", mailbox.ID, err)
	}

	if mailbox.ModelID != nil && *mailbox.ModelID != "" && s.assistant != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.summarize(context.WithoutCancel(ctx), mailbox, email, msg, owner)
		}()
	}

	return &WebhookResult{Success: true, EmailID: email.ID, MessageID: msg.ID}, nil
}

// Wait blocks until background summaries finish
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) summarize(ctx context.Context, mailbox *models.EmailMailbox, email *models.EmailMessage, parent *models.Message, owner *models.User) {
	modelID := *mailbox.ModelID

	model, err := s.assistant.GetModel(ctx, modelID)
	if err != nil {
		log.Printf("[emails] failed to look up model %s: %v", modelID, err)
		return
	}
	if model == nil {
		log.Printf("[emails] model %s not found, skipping summary for email %s", modelID, email.ID)
		return
	}

	reply, err := s.store.InsertMessage(ctx, parent.ChannelID, owner.ID, models.MessageForm{
		ParentID: &parent.ID,
		Meta: map[string]any{
			"model_id":   model.ID,
			"model_name": model.DisplayName(),
			"email_id":   email.ID,
		},
	})
	if err != nil {
		log.Printf("[emails] failed to create reply for email %s: %v", email.ID, err)
		return
	}
	if err := s.emitter.EmitMessage(ctx, events.TypeMessage, reply, owner); err != nil {
		log.Printf("[emails] failed to emit reply %s: %v", reply.ID, err)
	}

	content := s.complete(ctx, model, mailbox, email)

	updated, err := s.store.UpdateMessage(ctx, reply.ID, models.MessageForm{
		Content: content,
		Meta:    map[string]any{"done": true},
	})
	if err != nil {
		log.Printf("[emails] failed to update reply %s: %v", reply.ID, err)
		return
	}
	if updated != nil {
		if err := s.emitter.EmitMessage(ctx, events.TypeMessageUpdate, updated, owner); err != nil {
			log.Printf("[emails] failed to emit reply update %s: %v", reply.ID, err)
		}
	}

	if _, err := s.store.MarkEmailProcessed(ctx, email.ID, true, truncate(content, models.MaxEmailPreview)); err != nil {
		log.Printf("[emails] failed to mark email %s processed: %v", email.ID, err)
	}
}

func (s *Service) complete(ctx context.Context, model *ai.Model, mailbox *models.EmailMailbox, email *models.EmailMessage) string {
	resp, err := s.assistant.ChatCompletion(ctx, ai.ChatRequest{
		Model: model.ID,
		Messages: []ai.Message{
			{Role: "system", Content: SystemPrompt(model.DisplayName(), mailbox.MailboxAddress)},
			{Role: "user", Content: AgentPrompt(email)},
		},
	})
	if err != nil {
		log.Printf("[emails] completion failed for email %s: %v", email.ID, err)
		return "Error analyzing email: " + err.Error()
	}
	return resp.Content()
}
