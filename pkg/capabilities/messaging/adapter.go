// Package messaging provides the HTTP adapter for outbound CRM messages.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/autocrm/journey/pkg/protocol"
)

const defaultTimeoutSeconds = 30

// ErrDeliveryRejected is returned when the messaging service refuses a
// message.
var ErrDeliveryRejected = errors.New("messaging service rejected delivery")

// Adapter sends messages through the CRM messaging service. It implements
// protocol.MessageSender for both direct messages and chat, selected by the
// channel carried in the extras.
type Adapter struct {
	baseURL string
	apiKey  string
	channel string
	client  *http.Client
	logger  *slog.Logger
}

func NewAdapter(baseURL, apiKey, channel string, logger *slog.Logger) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		channel: channel,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger:  logger.With("module", "messaging_adapter", "channel", channel),
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
	StickerID string `json:"sticker_id,omitempty"`
}

type sendResponse struct {
	ID string `json:"id"`
}

func (a *Adapter) Send(ctx context.Context, recipient, text string, extras protocol.MessageExtras) (protocol.Delivery, error) {
	channel := extras.Channel
	if channel == "" {
		channel = a.channel
	}

	payload, err := json.Marshal(sendRequest{
		Recipient: recipient,
		Text:      text,
		Channel:   channel,
		StickerID: extras.StickerID,
	})
	if err != nil {
		return protocol.Delivery{}, fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return protocol.Delivery{}, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return protocol.Delivery{}, fmt.Errorf("messaging request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return protocol.Delivery{}, fmt.Errorf("%w: status %d: %s", ErrDeliveryRejected, resp.StatusCode, body)
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return protocol.Delivery{}, fmt.Errorf("failed to decode delivery response: %w", err)
	}

	a.logger.Debug("Message delivered", "recipient", recipient, "provider_id", decoded.ID)

	return protocol.Delivery{ProviderID: decoded.ID}, nil
}
