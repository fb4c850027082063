package engine

import (
	"context"

	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/domain"
)

// Directory resolves approver specs to concrete user ids within a tenant.
// repository.UserRepository satisfies it.
type Directory interface {
	ResolveRole(ctx context.Context, tenantID string, role string) ([]string, error)
	ActiveUsers(ctx context.Context, tenantID string, userIDs []string) ([]string, error)
	ManagersOf(ctx context.Context, tenantID string, userIDs []string) ([]string, error)
}

// Notifier receives notification intents after the producing transaction
// committed. Delivery is fire and forget.
type Notifier interface {
	Notify(ctx context.Context, intents ...domain.NotificationIntent)
}

// HistorySink receives committed history entries, e.g. for read models.
type HistorySink interface {
	PublishHistory(ctx context.Context, entries ...domain.HistoryEntry)
}

// Escalator is the part of the orchestrator the scheduler drives.
type Escalator interface {
	Escalate(ctx context.Context, instanceID string, stepNumber int, expectedVersion int64) (bool, error)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, ...domain.NotificationIntent) {}

type noopHistorySink struct{}

func (noopHistorySink) PublishHistory(context.Context, ...domain.HistoryEntry) {}
