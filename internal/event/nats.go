// internal/event/nats.go
// Package event provides NATS JetStream publishing of gift lifecycle events.
// Every publish is fire-and-forget from the state machine's perspective:
// failures are logged by the caller and never roll back a transition.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Publisher defines the lifecycle-event operations the gift service emits.
type Publisher interface {
	PublishGiftCompleted(ctx context.Context, g model.Gift) error
	PublishGiftRejected(ctx context.Context, g model.Gift) error
	PublishGiftDeleted(ctx context.Context, g model.Gift) error
	PublishAccessChanged(ctx context.Context, g model.Gift) error

	// Close closes the publisher connection.
	Close() error
}

// noop is used when NATS is not configured. The service functions without
// event streaming.
type noop struct{}

func (n *noop) Close() error                                                 { return nil }
func (n *noop) PublishGiftCompleted(ctx context.Context, g model.Gift) error { return nil }
func (n *noop) PublishGiftRejected(ctx context.Context, g model.Gift) error  { return nil }
func (n *noop) PublishGiftDeleted(ctx context.Context, g model.Gift) error   { return nil }
func (n *noop) PublishAccessChanged(ctx context.Context, g model.Gift) error { return nil }

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewPublisher connects to NATS and initializes the gift event stream. An
// empty URL, a failed connection, or a failed stream setup all degrade to
// the no-op publisher with a logged warning.
func NewPublisher(url string) Publisher {
	if url == "" {
		return &noop{}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return &noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	if err := initStream(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return &noop{}
	}

	return &natsPub{nc: nc, js: js}
}

// initStream creates the MH_GIFTS stream carrying all gift lifecycle events.
func initStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      "MH_GIFTS",
		Subjects:  []string{"gifts.*"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create MH_GIFTS stream: %w", err)
	}
	return nil
}

// Envelope is the standard event envelope wrapping every published payload.
type Envelope struct {
	Type          string      `json:"type"`
	Version       string      `json:"version"`
	OccurredAt    time.Time   `json:"occurredAt"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// giftEventPayload is the slim event body. Full asset references stay out of
// the stream; consumers that need them load the gift by id.
type giftEventPayload struct {
	GiftID    string       `json:"giftId"`
	UserID    string       `json:"userId"`
	Status    model.Status `json:"status"`
	Plan      model.Plan   `json:"plan"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
	Enabled   bool         `json:"accessEnabled"`
}

func (p *natsPub) publish(subject string, g model.Gift) error {
	envelope := Envelope{
		Type:          subject,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: uuid.New().String(),
		Payload: giftEventPayload{
			GiftID:    g.ID,
			UserID:    g.UserID,
			Status:    g.Status,
			Plan:      g.Plan,
			ExpiresAt: g.ExpiresAt,
			Enabled:   g.AccessEnabled,
		},
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(subject, b)
	return err
}

// PublishGiftCompleted publishes a gift completed event.
func (p *natsPub) PublishGiftCompleted(ctx context.Context, g model.Gift) error {
	return p.publish("gifts.completed", g)
}

// PublishGiftRejected publishes a gift rejected event.
func (p *natsPub) PublishGiftRejected(ctx context.Context, g model.Gift) error {
	return p.publish("gifts.rejected", g)
}

// PublishGiftDeleted publishes a gift permanently-deleted event.
func (p *natsPub) PublishGiftDeleted(ctx context.Context, g model.Gift) error {
	return p.publish("gifts.deleted", g)
}

// PublishAccessChanged publishes an access toggled event.
func (p *natsPub) PublishAccessChanged(ctx context.Context, g model.Gift) error {
	return p.publish("gifts.access_changed", g)
}
