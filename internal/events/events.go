package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Martian-dev/brain-connectors/internal/models"
	natsjs "github.com/Martian-dev/brain-connectors/internal/nats"
	"github.com/Martian-dev/brain-connectors/internal/store/sqlite"
)

// Event types carried on channel subjects
const (
	TypeMessage       = "message"
	TypeMessageUpdate = "message:update"
)

// ChannelEvent is published whenever a channel message changes
type ChannelEvent struct {
	ChannelID string         `json:"channel_id"`
	MessageID string         `json:"message_id"`
	Data      EventData      `json:"data"`
	User      map[string]any `json:"user"`
}

// EventData wraps the message with its event type
type EventData struct {
	Type string          `json:"type"`
	Data *models.Message `json:"data"`
}

// Outbox stores events until they are published
type Outbox interface {
	EnqueueEvent(ctx context.Context, subject, eventType string, payload []byte, msgID string) error
	DequeueOutbox(ctx context.Context, limit int) ([]sqlite.OutboxMessage, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkOutboxRetry(ctx context.Context, id int64, backoff time.Duration) error
}

// Publisher delivers an event to the broker
type Publisher interface {
	Publish(subject string, payload []byte, msgID string) error
}

// Emitter records channel events in the outbox. A nil outbox drops them,
// which is how the service runs without a broker.
type Emitter struct {
	outbox Outbox
}

// NewEmitter creates an emitter writing to outbox
func NewEmitter(outbox Outbox) *Emitter {
	return &Emitter{outbox: outbox}
}

// EmitMessage records a message event for msg posted by user
func (e *Emitter) EmitMessage(ctx context.Context, eventType string, msg *models.Message, user *models.User) error {
	if e == nil || e.outbox == nil {
		return nil
	}

	event := ChannelEvent{
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		Data:      EventData{Type: eventType, Data: msg},
	}
	if user != nil {
		event.User = map[string]any{"id": user.ID, "name": user.Name, "email": user.Email, "role": user.Role}
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode channel event: %w", err)
	}
	msgID := fmt.Sprintf("%s|%s|%d", eventType, msg.ID, msg.UpdatedAt)
	return e.outbox.EnqueueEvent(ctx, natsjs.ChannelSubject(msg.ChannelID), eventType, payload, msgID)
}

// Dispatcher moves outbox entries to the broker
type Dispatcher struct {
	Outbox    Outbox
	Publisher Publisher
	// Idle is the pause when the outbox is empty
	Idle time.Duration
	// RetryAfter delays an entry that failed to publish
	RetryAfter time.Duration
}

// NewDispatcher creates a dispatcher with the default pacing
func NewDispatcher(outbox Outbox, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		Outbox:     outbox,
		Publisher:  publisher,
		Idle:       500 * time.Millisecond,
		RetryAfter: 10 * time.Second,
	}
}

// Run dispatches until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		n, err := d.DispatchOnce(ctx)
		if err != nil {
			log.Printf("Error dequeuing outbox: %v", err)
		}

		wait := time.Duration(0)
		switch {
		case err != nil:
			wait = time.Second
		case n == 0:
			wait = d.Idle
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// DispatchOnce publishes one batch and returns how many entries it handled
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	messages, err := d.Outbox.DequeueOutbox(ctx, 100)
	if err != nil {
		return 0, err
	}

	for _, msg := range messages {
		if err := d.Publisher.Publish(msg.Subject, msg.Payload, msg.MsgID); err != nil {
			log.Printf("Error publishing message %d: %v", msg.ID, err)
			_ = d.Outbox.MarkOutboxRetry(ctx, msg.ID, d.RetryAfter)
			continue
		}

		if err := d.Outbox.MarkPublished(ctx, msg.ID); err != nil {
			log.Printf("Error marking message %d as published: %v", msg.ID, err)
		}
	}
	return len(messages), nil
}
