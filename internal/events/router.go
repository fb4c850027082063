package events

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// HistoryHandler consumes committed history entries.
type HistoryHandler interface {
	HandleHistory(msg *message.Message) error
}

// NewRouter wires the bus topics to their consumers: the notification log
// and, when given, a history consumer such as the stats projector.
func NewRouter(bus *Bus, history HistoryHandler) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, bus.Logger())
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(middleware.Recoverer)

	router.AddNoPublisherHandler(
		"notification_log_handler",
		TopicNotifications,
		bus.Subscriber(),
		logNotification,
	)
	if history != nil {
		router.AddNoPublisherHandler(
			"history_projection_handler",
			TopicHistory,
			bus.Subscriber(),
			history.HandleHistory,
		)
	}
	return router, nil
}

// logNotification stands in for a delivery subsystem.
func logNotification(msg *message.Message) error {
	n, err := DecodeNotification(msg)
	if err != nil {
		slog.Error("Dropping undecodable notification", "message_id", msg.UUID, "error", err)
		return nil
	}
	slog.Info("Notification intent", "kind", n.Kind, "instance_id", n.InstanceID, "step", n.StepNumber,
		"recipients", n.Recipients, "tenant_id", n.TenantID)
	return nil
}
