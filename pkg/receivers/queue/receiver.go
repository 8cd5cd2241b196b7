// Package queue provides the Redis-backed receiver for CRM subject events.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/autocrm/journey/pkg/events"
)

// EventCallback handles one decoded CRM subject event.
type EventCallback func(ctx context.Context, event events.SubjectEventReceived) error

// Receiver consumes CRM subject events from a Redis queue and hands them to
// a callback. The CRM pushes JSON documents with kind, subject_id, and an
// optional payload object.
type Receiver struct {
	Connection map[string]string
	Queue      string

	client   redis.UniversalClient
	callback EventCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReceiver(config map[string]any, logger *slog.Logger) (*Receiver, error) {
	queue, _ := config["queue"].(string)
	if queue == "" {
		return nil, errors.New("queue receiver queue name is required")
	}

	connectionConfig, _ := config["connection"].(map[string]any)

	connection := make(map[string]string)
	for k, v := range connectionConfig {
		if str, ok := v.(string); ok {
			connection[k] = str
		}
	}

	return &Receiver{
		Connection: connection,
		Queue:      queue,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "queue_receiver",
			"queue", queue,
		),
	}, nil
}

func (r *Receiver) Start(ctx context.Context, callback EventCallback) error {
	r.logger.InfoContext(ctx, "Starting queue receiver")
	r.callback = callback

	if err := r.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) initializeClient(ctx context.Context) error {
	addr := r.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	password := r.Connection["password"]
	db := 0

	if dbStr := r.Connection["db"]; dbStr != "" {
		if _, err := fmt.Sscanf(dbStr, "%d", &db); err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := r.processMessage(ctx); err != nil {
				r.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

type queueMessage struct {
	Kind      string         `json:"kind"`
	SubjectID string         `json:"subject_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, 1*time.Second, r.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var message queueMessage
	if err := json.Unmarshal([]byte(result[1]), &message); err != nil {
		r.logger.WarnContext(ctx, "Discarding malformed queue message", "error", err)

		return nil
	}

	if message.Kind == "" || message.SubjectID == "" {
		r.logger.WarnContext(ctx, "Discarding queue message without kind or subject_id")

		return nil
	}

	event := events.SubjectEventReceived{
		BaseEvent: events.NewBaseEvent(events.SubjectEventReceivedEvent),
		Kind:      message.Kind,
		SubjectID: message.SubjectID,
		Payload:   message.Payload,
	}

	go func() {
		if err := r.callback(ctx, event); err != nil {
			r.logger.ErrorContext(ctx, "Error handling subject event", "error", err)
		}
	}()

	return nil
}

func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping queue receiver")

	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
