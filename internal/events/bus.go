package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

const (
	TopicNotifications = "approvalflow.notifications"
	TopicHistory       = "approvalflow.history"
)

// Bus is the in-process event bus. It accepts notification intents and
// committed history entries and fans them out to router handlers.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	wl := watermill.NewSlogLogger(logger)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		wl,
	)
	return &Bus{pubsub: pubsub, logger: wl}
}

func (b *Bus) Publisher() message.Publisher   { return b.pubsub }
func (b *Bus) Subscriber() message.Subscriber { return b.pubsub }
func (b *Bus) Logger() watermill.LoggerAdapter { return b.logger }

// Notify publishes the intents. Failures are logged and dropped; delivery
// belongs to the notification subsystem.
func (b *Bus) Notify(ctx context.Context, intents ...domain.NotificationIntent) {
	for _, intent := range intents {
		msg, err := newMessage(intent)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode notification intent", "instance_id", intent.InstanceID, "error", err)
			continue
		}
		msg.Metadata.Set("kind", string(intent.Kind))
		msg.Metadata.Set("instance_id", intent.InstanceID)
		msg.Metadata.Set("tenant_id", intent.TenantID)
		if err := b.pubsub.Publish(TopicNotifications, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish notification intent", "instance_id", intent.InstanceID, "kind", intent.Kind, "error", err)
		}
	}
}

// PublishHistory feeds committed history entries to read models.
func (b *Bus) PublishHistory(ctx context.Context, entries ...domain.HistoryEntry) {
	for _, h := range entries {
		msg, err := newMessage(h)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode history entry", "instance_id", h.InstanceID, "error", err)
			continue
		}
		msg.Metadata.Set("action", string(h.Action))
		msg.Metadata.Set("instance_id", h.InstanceID)
		msg.Metadata.Set("sequence", strconv.FormatInt(h.Sequence, 10))
		if err := b.pubsub.Publish(TopicHistory, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish history entry", "instance_id", h.InstanceID, "sequence", h.Sequence, "error", err)
		}
	}
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

func newMessage(v any) (*message.Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("timestamp", time.Now().UTC().Format(time.RFC3339Nano))
	return msg, nil
}

// DecodeHistory reads a history entry published by PublishHistory.
func DecodeHistory(msg *message.Message) (domain.HistoryEntry, error) {
	var h domain.HistoryEntry
	if err := json.Unmarshal(msg.Payload, &h); err != nil {
		return h, fmt.Errorf("decode history entry %s: %w", msg.UUID, err)
	}
	return h, nil
}

// DecodeNotification reads an intent published by Notify.
func DecodeNotification(msg *message.Message) (domain.NotificationIntent, error) {
	var n domain.NotificationIntent
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return n, fmt.Errorf("decode notification %s: %w", msg.UUID, err)
	}
	return n, nil
}
