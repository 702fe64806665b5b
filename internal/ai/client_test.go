package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Martian-dev/brain-connectors/internal/config"
)

func TestChatCompletion(t *testing.T) {
	var got ChatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Summary: all good"}}]}`))
	}))
	defer srv.Close()

	c := New(config.AI{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Timeout: time.Second})
	resp, err := c.ChatCompletion(context.Background(), ChatRequest{
		Model:    "gpt-test",
		Messages: []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Summary: all good", resp.Content())
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-test", got.Model)
	assert.False(t, got.Stream)
	assert.Len(t, got.Messages, 2)
}

func TestChatCompletionErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"model not loaded"}}`))
	}))
	defer srv.Close()

	resp, err := New(config.AI{BaseURL: srv.URL}).ChatCompletion(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "Error analyzing email: model not loaded", resp.Content())
}

func TestGetModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"a"},{"id":"b","name":"Bee"}]}`))
	}))
	defer srv.Close()

	c := New(config.AI{BaseURL: srv.URL})

	m, err := c.GetModel(context.Background(), "b")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Bee", m.DisplayName())

	m, err = c.GetModel(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestDisabledClient(t *testing.T) {
	c := New(config.AI{})
	assert.False(t, c.Enabled())
	_, err := c.ChatCompletion(context.Background(), ChatRequest{})
	assert.Error(t, err)
}
