package messaging_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm/journey/pkg/capabilities/messaging"
	"github.com/autocrm/journey/pkg/log"
	"github.com/autocrm/journey/pkg/protocol"
)

func TestAdapter_Send(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-42"})
	}))
	defer server.Close()

	adapter := messaging.NewAdapter(server.URL, "test-key", "message", log.WithModule("test"))

	delivery, err := adapter.Send(t.Context(), "subject-1", "Welcome!", protocol.MessageExtras{})
	require.NoError(t, err)

	assert.Equal(t, "msg-42", delivery.ProviderID)
	assert.Equal(t, "subject-1", captured["recipient"])
	assert.Equal(t, "Welcome!", captured["text"])
	assert.Equal(t, "message", captured["channel"])
}

func TestAdapter_Send_ExtrasOverrideChannel(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "msg-1"})
	}))
	defer server.Close()

	adapter := messaging.NewAdapter(server.URL, "test-key", "message", log.WithModule("test"))

	_, err := adapter.Send(t.Context(), "subject-1", "hi", protocol.MessageExtras{
		Channel:   "chat",
		StickerID: "sticker-9",
	})
	require.NoError(t, err)

	assert.Equal(t, "chat", captured["channel"])
	assert.Equal(t, "sticker-9", captured["sticker_id"])
}

func TestAdapter_Send_RejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "recipient opted out", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	adapter := messaging.NewAdapter(server.URL, "test-key", "message", log.WithModule("test"))

	_, err := adapter.Send(t.Context(), "subject-1", "hi", protocol.MessageExtras{})
	require.Error(t, err)
	assert.ErrorIs(t, err, messaging.ErrDeliveryRejected)
	assert.Contains(t, err.Error(), "recipient opted out")
}

func TestAdapter_Send_ServerUnreachable(t *testing.T) {
	adapter := messaging.NewAdapter("http://127.0.0.1:1", "test-key", "message", log.WithModule("test"))

	_, err := adapter.Send(t.Context(), "subject-1", "hi", protocol.MessageExtras{})
	assert.Error(t, err)
}
