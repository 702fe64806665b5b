package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martian-dev/brain-connectors/internal/models"
	"github.com/Martian-dev/brain-connectors/internal/store/sqlite"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	fail     bool
}

func (p *recordingPublisher) Publish(subject string, payload []byte, msgID string) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return nil
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEmitAndDispatch(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	pub := &recordingPublisher{}

	msg := &models.Message{ID: "m1", ChannelID: "c1", Content: "hello", UpdatedAt: 42}
	user := &models.User{ID: "u1", Name: "Ada", Role: models.RoleUser}
	require.NoError(t, NewEmitter(st).EmitMessage(ctx, TypeMessage, msg, user))

	n, err := NewDispatcher(st, pub).DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"channel.c1.events"}, pub.subjects)

	var event ChannelEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &event))
	assert.Equal(t, "m1", event.MessageID)
	assert.Equal(t, TypeMessage, event.Data.Type)
	assert.Equal(t, "hello", event.Data.Data.Content)
	assert.Equal(t, "u1", event.User["id"])

	n, err = NewDispatcher(st, pub).DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "published entries are not sent again")
}

func TestDispatchRetriesLater(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, NewEmitter(st).EmitMessage(ctx, TypeMessageUpdate, &models.Message{ID: "m1", ChannelID: "c1"}, nil))

	n, err := NewDispatcher(st, &recordingPublisher{fail: true}).DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := st.DequeueOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "failed entry waits for its retry time")
}

func TestNilEmitterDrops(t *testing.T) {
	var e *Emitter
	assert.NoError(t, e.EmitMessage(context.Background(), TypeMessage, &models.Message{ID: "m"}, nil))
	assert.NoError(t, NewEmitter(nil).EmitMessage(context.Background(), TypeMessage, &models.Message{ID: "m"}, nil))
}
