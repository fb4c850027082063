package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/RealZimboGuy/approvalflow/internal/repository"
	"github.com/RealZimboGuy/approvalflow/pkg/approvalflow/core"
)

const reconcileBatch = 500

// Reconciler rebuilds facts for recently modified instances from the
// source tables, repairing anything the projector dropped.
type Reconciler struct {
	store    *repository.Store
	clock    core.Clock
	lookback time.Duration
}

func NewReconciler(store *repository.Store, clock core.Clock, lookback time.Duration) *Reconciler {
	if clock == nil {
		clock = core.NewRealClock()
	}
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Reconciler{store: store, clock: clock, lookback: lookback}
}

// Start runs RunOnce on the cron schedule until ctx is done.
func (r *Reconciler) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := r.RunOnce(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Stats reconcile failed", "error", err)
			return
		}
		slog.DebugContext(ctx, "Stats reconciled", "instances", n)
	})
	if err != nil {
		return err
	}
	c.Start()
	slog.InfoContext(ctx, "Stats reconciler started", "schedule", schedule, "lookback", r.lookback.String())
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce reconciles instances modified within the lookback window and
// returns how many were processed.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	since := r.clock.Now().Add(-r.lookback)
	instances, err := r.store.Instances.FindModifiedSince(ctx, since, reconcileBatch)
	if err != nil {
		return 0, err
	}
	for i := range instances {
		inst := &instances[i]
		def, err := r.store.Definitions.FindVersion(ctx, inst.DefinitionID, inst.DefinitionVersion)
		if err != nil {
			return i, err
		}
		if err := r.store.Facts.UpsertInstanceFact(ctx, InstanceFactOf(inst, def)); err != nil {
			return i, err
		}
		approvals, err := r.store.Approvals.FindAllByInstanceID(ctx, inst.ID)
		if err != nil {
			return i, err
		}
		for j := range approvals {
			if approvals[j].AfterResolution {
				continue
			}
			if err := r.store.Facts.UpsertResponseFact(ctx, ResponseFactOf(inst, &approvals[j])); err != nil {
				return i, err
			}
		}
	}
	return len(instances), nil
}
