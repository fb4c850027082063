package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

type historyRecorder struct {
	got chan domain.HistoryEntry
}

func (h historyRecorder) HandleHistory(msg *message.Message) error {
	e, err := DecodeHistory(msg)
	if err != nil {
		return err
	}
	h.got <- e
	return nil
}

func TestBus_NotifyPublishesIntents(t *testing.T) {
	bus := NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := bus.Subscriber().Subscribe(ctx, TopicNotifications)
	require.NoError(t, err)

	bus.Notify(ctx, domain.NotificationIntent{
		Kind:       domain.NotifyStepActivated,
		TenantID:   "acme",
		InstanceID: "inst-1",
		StepNumber: 2,
		Recipients: []string{"alice"},
	})

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, string(domain.NotifyStepActivated), msg.Metadata.Get("kind"))
		assert.Equal(t, "inst-1", msg.Metadata.Get("instance_id"))
		n, err := DecodeNotification(msg)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, n.Recipients)
		assert.Equal(t, 2, n.StepNumber)
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not published")
	}
}

// Delivery order across messages is not guaranteed by the gochannel
// pubsub; consumers re-read instance state and must not depend on it.
func TestRouter_DeliversEveryHistoryEntry(t *testing.T) {
	bus := NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })
	recorder := historyRecorder{got: make(chan domain.HistoryEntry, 4)}
	router, err := NewRouter(bus, recorder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	bus.PublishHistory(ctx,
		domain.HistoryEntry{InstanceID: "inst-1", Sequence: 1, Action: domain.ActionInstanceStarted},
		domain.HistoryEntry{InstanceID: "inst-1", Sequence: 2, Action: domain.ActionDecisionRecorded},
	)

	got := map[int64]domain.HistoryAction{}
	for len(got) < 2 {
		select {
		case e := <-recorder.got:
			assert.Equal(t, "inst-1", e.InstanceID)
			got[e.Sequence] = e.Action
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of 2 history entries delivered", len(got))
		}
	}
	assert.Equal(t, map[int64]domain.HistoryAction{
		1: domain.ActionInstanceStarted,
		2: domain.ActionDecisionRecorded,
	}, got)
}

func TestDecodeHistory_RejectsGarbage(t *testing.T) {
	_, err := DecodeHistory(message.NewMessage(watermill.NewUUID(), []byte("{not json")))
	assert.Error(t, err)
}
